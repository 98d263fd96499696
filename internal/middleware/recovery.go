package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoveryMiddleware recovers a panic inside a serve-mode handler (e.g.
// a readiness probe racing the resource manager's lazy singleton init)
// into a 500 instead of tearing down the whole "adapipe serve" process,
// which would otherwise abort every in-flight process/restore run the
// same binary might be running.
func RecoveryMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.WithFields(logrus.Fields{
						"component": "adapipe-serve",
						"error":     err,
						"method":    r.Method,
						"path":      r.URL.Path,
						"stack":     string(debug.Stack()),
					}).Error("serve: panic recovered")

					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}