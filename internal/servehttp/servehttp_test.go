package servehttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/kenneth/adapipe/internal/metrics"
)

func newTestRouter(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	logger := logrus.New()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)
	return NewRouter(logger, deps, m)
}

func TestRouter_HealthzReadyzLivez(t *testing.T) {
	r := newTestRouter(t, Dependencies{})

	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_ReadyzFailsWhenDependencyUnhealthy(t *testing.T) {
	r := newTestRouter(t, Dependencies{
		KeyManagerHealthCheck: func(ctx context.Context) error { return errors.New("kms unreachable") },
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
