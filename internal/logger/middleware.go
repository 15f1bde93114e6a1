package logger

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// TraceIDHeader is the HTTP header callers may set to correlate a request
// with a task's trace_id (spec.md glossary). If absent, the chi request ID
// stands in for it so every request is still correlatable end to end.
const TraceIDHeader = "X-Trace-Id"

// traceIDFrom resolves the request's trace_id: the caller-supplied header if
// present, otherwise the chi request ID generated for this request.
func traceIDFrom(r *http.Request) string {
	if traceID := r.Header.Get(TraceIDHeader); traceID != "" {
		return traceID
	}
	return middleware.GetReqID(r.Context())
}

// HTTPMiddleware creates middleware that logs HTTP requests, tagging every
// log line with the request's trace_id so it can be joined against the
// Registry's task events for the same trace_id (registry.TraceEvents).
func HTTPMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Get or generate request ID
			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = fmt.Sprintf("%d", middleware.NextRequestID())
			}

			traceID := traceIDFrom(r)

			// Create request-scoped logger
			reqLogger := logger.With(
				zap.String("request_id", requestID),
				zap.String("trace_id", traceID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
			)

			// Add logger to context
			ctx := WithContext(r.Context(), reqLogger)
			r = r.WithContext(ctx)

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// Process request
			next.ServeHTTP(ww, r)

			// Log request completion
			duration := time.Since(start)
			reqLogger.Info("http request",
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("duration_ms", fmt.Sprintf("%.2f", float64(duration.Milliseconds()))),
			)
		})
	}
}

// TraceIDMiddleware echoes the request's trace_id back on the response so a
// caller that didn't supply one (e.g. the CLI's first call in a chain) can
// read the generated value and pass it to follow-up calls for the same task.
func TraceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(TraceIDHeader, traceIDFrom(r))
		next.ServeHTTP(w, r)
	})
}
