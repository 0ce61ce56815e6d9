package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitRules(t *testing.T) {
	store := NewMemoryRateStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	h := WithRateLimit(RateLimitOptions{
		Store: store,
		Rules: []RateRule{
			{Name: "webhook", Limit: 0, Match: MatchPrefix(http.MethodPost, "/api/v1/webhooks/")},
			{Name: "login", Limit: 1, Window: time.Minute, Match: MatchPrefix(http.MethodPost, "/api/v1/admin/login")},
			{Name: "default", Limit: 2, Window: time.Minute},
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(method, path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "http://example.com"+path, nil)
		req.RemoteAddr = ip + ":5555"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw
	}

	for i := 0; i < 2; i++ {
		if rw := send(http.MethodGet, "/api/v1/services", "10.0.0.1"); rw.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rw.Code)
		}
	}
	rw := send(http.MethodGet, "/api/v1/services", "10.0.0.1")
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
	if rw.Header().Get("Retry-After") != "60" || rw.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected headers %v", rw.Header())
	}

	// Rules count separately.
	if rw := send(http.MethodPost, "/api/v1/admin/login", "10.0.0.1"); rw.Code != http.StatusNoContent {
		t.Fatalf("first login should pass, got %d", rw.Code)
	}
	if rw := send(http.MethodPost, "/api/v1/admin/login", "10.0.0.1"); rw.Code != http.StatusTooManyRequests {
		t.Fatalf("second login should be limited, got %d", rw.Code)
	}
	for i := 0; i < 5; i++ {
		if rw := send(http.MethodPost, "/api/v1/webhooks/stripe", "10.0.0.1"); rw.Code != http.StatusNoContent {
			t.Fatalf("webhooks are exempt, got %d", rw.Code)
		}
	}

	other := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/services", nil)
	other.Header.Set("X-Forwarded-For", "192.168.1.9, 10.0.0.1")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, other)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected other client to pass, got %d", rw.Code)
	}

	now = now.Add(61 * time.Second)
	if rw := send(http.MethodGet, "/api/v1/services", "10.0.0.1"); rw.Code != http.StatusNoContent {
		t.Fatalf("expected window reset, got %d", rw.Code)
	}
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis down")
}

func TestRateLimitFailOpen(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rules := []RateRule{{Name: "default", Limit: 1}}

	rw := httptest.NewRecorder()
	WithRateLimit(RateLimitOptions{Store: failingStore{}, Rules: rules, FailOpen: true})(next).
		ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
	if rw.Code != http.StatusNoContent {
		t.Fatalf("fail open should pass, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	WithRateLimit(RateLimitOptions{Store: failingStore{}, Rules: rules})(next).
		ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail closed should 503, got %d", rw.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://studio.example"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         10 * time.Minute,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "http://api.example/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://studio.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://studio.example" {
		t.Fatalf("unexpected allow origin %q", rw.Header().Get("Access-Control-Allow-Origin"))
	}
	if rw.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected max age %q", rw.Header().Get("Access-Control-Max-Age"))
	}
}

func TestCORSWildcardSubdomain(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins:   []string{"https://*.lunalash.example"},
		AllowCredentials: true,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for origin, want := range map[string]string{
		"https://admin.lunalash.example": "https://admin.lunalash.example",
		"http://admin.lunalash.example":  "",
		"https://lunalash.example.evil":  "",
		"null":                           "",
	} {
		req := httptest.NewRequest(http.MethodGet, "http://api.example/api/v1/services", nil)
		req.Header.Set("Origin", origin)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		if got := rw.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %s: expected %q, got %q", origin, want, got)
		}
	}
}

func TestAccessLevel(t *testing.T) {
	if accessLevel("/readyz", 200) != slog.LevelDebug || accessLevel("/api/v1/services", 404) != slog.LevelWarn || accessLevel("/api/v1/services", 502) != slog.LevelError {
		t.Fatal("unexpected access log levels")
	}
}

func TestWithRecoverHidesPanic(t *testing.T) {
	logger := slogDiscard()
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), WithRequestID, WithRecover(logger))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	if got := rw.Body.String(); got != "{\"error\":\"internal error\"}\n" {
		t.Fatalf("unexpected body %q", got)
	}
	if rw.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
