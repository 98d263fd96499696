// Package config loads adapipe's runtime configuration from environment
// variables and, optionally, a YAML file: plain struct fields, an
// env-first Load, and a file watcher (Watch) that reloads the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kenneth/adapipe/internal/resource"
)

// Config is the process-wide configuration. Numeric overrides are
// hints: the sizer and resource manager still validate them.
type Config struct {
	SQLitePath    string               `yaml:"sqlite_path"`
	LogLevel      string               `yaml:"log_level"`
	WorkerCount   int                  `yaml:"worker_count"`
	ChunkSize     int                  `yaml:"chunk_size"`
	StorageType   resource.StorageType `yaml:"storage_type"`
	CPUPermits    int                  `yaml:"cpu_permits"`
	TraceExporter string               `yaml:"trace_exporter"`
	ListenAddr    string               `yaml:"listen_addr"`
}

// Default returns the baseline configuration before env/file overrides.
func Default() Config {
	return Config{
		SQLitePath:    "./pipeline.db",
		LogLevel:      "info",
		StorageType:   resource.StorageAuto,
		TraceExporter: "none",
		ListenAddr:    ":8080",
	}
}

// Load builds a Config starting from Default, applying an optional YAML
// file first and then ADAPIPE_-prefixed environment variables, so env
// vars always win: config file for defaults, env to override.
func Load(yamlPath string) (Config, error) {
	cfg := Default()
	if yamlPath != "" {
		if err := cfg.mergeYAML(yamlPath); err != nil {
			return Config{}, err
		}
	}
	cfg.mergeEnv()
	return cfg, nil
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	if v := os.Getenv("ADAPIPE_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := os.Getenv("ADAPIPE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ADAPIPE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorkerCount = n
		}
	}
	if v := os.Getenv("ADAPIPE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChunkSize = n
		}
	}
	if v := os.Getenv("ADAPIPE_STORAGE_TYPE"); v != "" {
		c.StorageType = resource.StorageType(v)
	}
	if v := os.Getenv("ADAPIPE_CPU_PERMITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CPUPermits = n
		}
	}
	if v := os.Getenv("ADAPIPE_TRACE_EXPORTER"); v != "" {
		c.TraceExporter = v
	}
	if v := os.Getenv("ADAPIPE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
}

// LogrusLevel parses LogLevel, falling back to InfoLevel on a bad value.
func (c Config) LogrusLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Watch reloads the YAML file at path on every write or create event and
// invokes onChange with the newly merged config. It starts its own
// goroutine, which runs until stop is closed, and returns once the
// watcher is set up.
func Watch(path string, logger *logrus.Logger, onChange func(Config), stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config file %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.WithError(err).Warn("config reload failed, keeping previous configuration")
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("config watcher error")
			}
		}
	}()
	return nil
}
