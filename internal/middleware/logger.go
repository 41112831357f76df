package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// statusWriter captures the response status and size for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// RequestLogger provides structured logging for every request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			requestAttrs := slog.Group("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			responseAttrs := slog.Group("response",
				slog.Int("status", status),
				slog.Int("bytes", sw.bytes),
				slog.String("latency", time.Since(start).String()),
			)
			if status >= 500 {
				logger.Error("server error", requestAttrs, responseAttrs)
			} else {
				logger.Info("request completed", requestAttrs, responseAttrs)
			}
		})
	}
}
