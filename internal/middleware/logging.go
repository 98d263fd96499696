// Package middleware provides the gorilla/mux wrappers for
// "adapipe serve": panic recovery
// and structured request logging around the health/readiness/liveness
// and /metrics endpoints registered by internal/servehttp.NewRouter.
package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingMiddleware wraps handlers with request logging. adapipe's
// serve mode only exposes fixed GET endpoints, so there is no
// request-body size to track — only the response size and status the
// probe or scraper saw.
func LoggingMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			logger.WithFields(logrus.Fields{
				"component":     "adapipe-serve",
				"method":        r.Method,
				"path":          r.URL.Path,
				"remote_addr":   r.RemoteAddr,
				"status":        rw.statusCode,
				"duration_ms":   time.Since(start).Milliseconds(),
				"response_bytes": rw.bytesWritten,
			}).Info("serve: request handled")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}