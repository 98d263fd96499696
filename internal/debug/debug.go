// Package debug holds the process-wide verbose/debug-log toggle used by
// the engine's adaptive-sizing log line and the CLI. Precedence is
// ADAPIPE_DEBUG first, falling back to the generic DEBUG/LOG_LEVEL
// variables.
package debug

import (
	"os"
	"sync"
)

var (
	enabled bool
	mu      sync.RWMutex
)

func init() {
	// Initialize from environment variables on package load
	// This ensures debug works even when not going through main.go (e.g., in tests)
	InitFromEnv()
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetEnabled sets whether debug logging is enabled.
func SetEnabled(value bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = value
}

// InitFromEnv initializes debug logging from environment variables.
// ADAPIPE_DEBUG=true takes precedence; if unset, it falls back to
// DEBUG=true, then to LOG_LEVEL=debug.
func InitFromEnv() {
	if v, ok := os.LookupEnv("ADAPIPE_DEBUG"); ok {
		SetEnabled(v == "true")
		return
	}
	if os.Getenv("DEBUG") == "true" {
		SetEnabled(true)
		return
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		SetEnabled(true)
		return
	}
	SetEnabled(false)
}

// InitFromLogLevel initializes debug logging from a log level string.
// This will only set the flag if no environment variable is already set.
func InitFromLogLevel(logLevel string) {
	// Only override if no environment variable already decided this.
	if os.Getenv("ADAPIPE_DEBUG") == "" && os.Getenv("DEBUG") == "" && os.Getenv("LOG_LEVEL") == "" {
		SetEnabled(logLevel == "debug")
	}
}

