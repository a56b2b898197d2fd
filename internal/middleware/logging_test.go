package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := WithRequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	req := httptest.NewRequest("POST", "/api/message", nil)
	req.Header.Set(chiMiddleware.RequestIDHeader, "req-1")
	req = req.WithContext(WithContextID(req.Context(), "tab-3"))
	chiMiddleware.RequestID(h).ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status = %v; want %d", fields["status"], http.StatusTeapot)
	}
	if fields["size"] != int64(5) {
		t.Errorf("size = %v; want 5", fields["size"])
	}
	if fields["context"] != "tab-3" {
		t.Errorf("context = %v; want tab-3", fields["context"])
	}
	if fields["request_id"] != "req-1" {
		t.Errorf("request_id = %v; want req-1", fields["request_id"])
	}
	if fields["method"] != "POST" {
		t.Errorf("method = %v; want POST", fields["method"])
	}
}

func TestWithRequestLogging_ImplicitOK(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := WithRequestLogging(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/features", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("status = %v; want 200", fields["status"])
	}
	if _, ok := fields["context"]; ok {
		t.Errorf("unexpected context field without sender")
	}
}
