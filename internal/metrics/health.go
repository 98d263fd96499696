package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/kenneth/adapipe/internal/resource"
)

// EngineStatus reports the serving process's readiness to accept new
// process/restore runs: how long it has been up, how many goroutines
// are active (a proxy for in-flight chunk tasks), and the capacity of
// the process-wide CPU/IO permit pools a new run would have to acquire.
// How many permits are currently held is not reported.
type EngineStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Goroutines    int       `json:"goroutines"`
	CPUPermits    int       `json:"cpu_permits_total"`
	IOPermits     int       `json:"io_permits_total"`
}

var (
	startTime = time.Now()
	version   = "dev"
)

// SetVersion sets the application version.
func SetVersion(v string) {
	version = v
}

func currentStatus(status string) EngineStatus {
	mgr := resource.Get()
	return EngineStatus{
		Status:        status,
		Timestamp:     time.Now(),
		Version:       version,
		UptimeSeconds: time.Since(startTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPermits:    mgr.CPUCapacity(),
		IOPermits:     mgr.IOCapacity(),
	}
}

func writeStatus(w http.ResponseWriter, code int, status EngineStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// HealthHandler reports the resource manager's permit-pool sizes and
// current goroutine count alongside a fixed "healthy" verdict: the
// process is up and its semaphores were initialised.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, currentStatus("healthy"))
	}
}

// ReadinessHandler reports whether the engine can accept a new
// process/restore run. If a KeyManager health checker is supplied (the
// `serve` subcommand wires the active KMS manager's HealthCheck), its
// failure makes the process not-ready: no
// encryption stage can run without a reachable key manager.
func ReadinessHandler(keyManagerHealthCheck func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if keyManagerHealthCheck != nil {
			if err := keyManagerHealthCheck(r.Context()); err != nil {
				status := currentStatus("not_ready")
				writeStatus(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		writeStatus(w, http.StatusOK, currentStatus("ready"))
	}
}

// LivenessHandler reports that the process is still scheduling
// goroutines (a stuck engine would stop advancing its worker pool and
// this handler itself would never get invoked).
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, currentStatus("alive"))
	}
}
