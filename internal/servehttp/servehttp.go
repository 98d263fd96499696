// Package servehttp implements the optional "adapipe serve" subcommand:
// a small HTTP surface exposing /healthz, /readyz, /livez and /metrics
// on a gorilla/mux router wrapped with internal/middleware.
package servehttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/adapipe/internal/metrics"
	"github.com/kenneth/adapipe/internal/middleware"
)

// Dependencies are the collaborators the health/readiness endpoints may
// need to probe.
type Dependencies struct {
	KeyManagerHealthCheck func(context.Context) error
}

// NewRouter builds the serve-mode router: logging and panic-recovery
// middleware wrap every route.
func NewRouter(logger *logrus.Logger, deps Dependencies, m *metrics.Metrics) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))

	r.Handle("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	r.Handle("/readyz", metrics.ReadinessHandler(deps.KeyManagerHealthCheck)).Methods(http.MethodGet)
	r.Handle("/livez", metrics.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if m != nil {
		go collectRuntimeStatsForever(m)
	}
	return r
}

func collectRuntimeStatsForever(m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.CollectRuntimeStats()
	}
}

// Serve starts an HTTP server on addr and blocks until ctx is
// cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *logrus.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("serve: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
