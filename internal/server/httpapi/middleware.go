package httpapi

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/dmitrijs2005/heimdallr/internal/common"
	"github.com/dmitrijs2005/heimdallr/internal/logging"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LoggingMiddleware logs method, path, status, duration and response size of
// every request, tagged with a random request id. Bodies are never logged;
// they carry passwords.
func LoggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID, err := common.MakeRandHexString(8)
			if err != nil {
				reqID = "unknown"
			}
			w.Header().Set("X-Request-Id", reqID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log := logger.With("req_id", reqID)
			msg := "http request"
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_written", wrapped.written,
			}

			switch {
			case wrapped.statusCode >= 500:
				log.Error(r.Context(), msg, args...)
			case wrapped.statusCode >= 400:
				log.Warn(r.Context(), msg, args...)
			default:
				log.Info(r.Context(), msg, args...)
			}
		})
	}
}

// RecoveryMiddleware converts handler panics into a 500 response and logs
// the stack. Details never reach the client.
func RecoveryMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error(r.Context(), "panic recovered",
						"error", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
