package middleware

import (
	"net/http"

	"coinpayments-webhooks/internal/clock"
	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/common/utils"
)

// RequestIDHeader carries the request id back to the caller.
const RequestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture status code
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

// RequestID assigns every request an id, reusing a well-formed incoming
// X-Request-ID, and stores it in the request context for WithContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = utils.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// Logging logs all HTTP requests with method, path, status, and duration.
// Webhook headers are never logged; they carry the signature.
func Logging(logger logging.Logger, clk clock.Clock) func(http.Handler) http.Handler {
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := clk.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", wrapped.statusCode),
				logging.Int64("duration_ms", clk.Now().Sub(start).Milliseconds()),
				logging.Int64("bytes", wrapped.written),
				logging.String("remote_addr", r.RemoteAddr),
			}

			if r.URL.RawQuery != "" {
				fields = append(fields, logging.String("query", r.URL.RawQuery))
			}

			if ua := r.Header.Get("User-Agent"); ua != "" {
				fields = append(fields, logging.String("user_agent", ua))
			}

			log := logger.WithContext(r.Context())
			if wrapped.statusCode >= 500 {
				log.Error("HTTP request completed", nil, fields...)
			} else if wrapped.statusCode >= 400 {
				log.Warn("HTTP request completed", fields...)
			} else {
				log.Info("HTTP request completed", fields...)
			}
		})
	}
}
