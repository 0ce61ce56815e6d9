package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug {
		t.Fatal("expected debug level")
	}
	if parseLevel("warning") != slog.LevelWarn {
		t.Fatal("expected warn level")
	}
	if parseLevel("") != slog.LevelInfo {
		t.Fatal("expected info level by default")
	}
}

func TestReadyzReportsFailingChecks(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(_ context.Context) error { return nil }},
		ReadyCheck{Name: "redis", Check: func(_ context.Context) error { return errors.New("connection refused") }},
	)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "redis: connection refused") {
		t.Fatalf("unexpected body %q", rw.Body.String())
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rw.Code)
	}
}
