package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// sharedRegistry is built exactly once per test binary: NewServiceMetrics
// registers every collector against the global prometheus registry, and a
// second registration under the same namespace panics.
var sharedRegistry = sync.OnceValue(func() *Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry("bancho-test", "dev", "unknown", "unknown", logger)
})

func TestNewRegistrySetsBuildInfoAndStartTime(t *testing.T) {
	reg := sharedRegistry()
	if reg.Service == nil {
		t.Fatal("expected Service metrics populated")
	}
}

func TestHTTPMiddlewareRecordsStatusAndPath(t *testing.T) {
	reg := sharedRegistry()

	handler := reg.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
}

func TestResponseWriterDefaultsToOK(t *testing.T) {
	handler := sharedRegistry().HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (WriteHeader never called explicitly)", rec.Code)
	}
}

func TestStopMetricsServerWithoutStartIsNoop(t *testing.T) {
	reg := sharedRegistry()
	if err := reg.StopMetricsServer(context.Background()); err != nil {
		t.Fatalf("StopMetricsServer() error: %v", err)
	}
}
