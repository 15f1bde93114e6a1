package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestTraceIDMiddlewareEchoesSuppliedTraceID(t *testing.T) {
	handler := TraceIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	req.Header.Set(TraceIDHeader, "telegram-42-7")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(TraceIDHeader); got != "telegram-42-7" {
		t.Fatalf("expected trace id to be echoed back, got %q", got)
	}
}

func TestTraceIDMiddlewareGeneratesTraceIDWhenAbsent(t *testing.T) {
	handler := TraceIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Header().Get(TraceIDHeader) == "" {
		t.Fatal("expected a generated trace id on the response")
	}
}

func TestHTTPMiddlewareTagsRequestLoggerWithTraceID(t *testing.T) {
	base := zap.NewNop()

	var sawTraceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := FromContext(r.Context())
		if reqLogger == nil {
			t.Fatal("expected request-scoped logger in context")
		}
		sawTraceID = traceIDFrom(r)
		w.WriteHeader(http.StatusOK)
	})

	handler := HTTPMiddleware(base)(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	req.Header.Set(TraceIDHeader, "telegram-99-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if sawTraceID != "telegram-99-1" {
		t.Fatalf("expected handler to observe supplied trace id, got %q", sawTraceID)
	}
}
