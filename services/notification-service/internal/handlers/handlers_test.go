package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lunalash/studio/libs/auth"
	"github.com/lunalash/studio/services/notification-service/internal/push"
)

const testSecret = "test-secret"

type memStore struct {
	mu   sync.Mutex
	subs map[string]push.Subscription
}

func (m *memStore) UpsertSubscription(_ context.Context, s push.Subscription) (push.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.subs[s.Endpoint]; ok {
		s.ID, s.CreatedAt = old.ID, old.CreatedAt
	} else {
		s.ID = "sub-" + s.Endpoint[len(s.Endpoint)-1:]
		s.CreatedAt = time.Now()
	}
	m.subs[s.Endpoint] = s
	return s, nil
}

func (m *memStore) DeleteSubscription(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[endpoint]; !ok {
		return push.ErrUnknownSubscription
	}
	delete(m.subs, endpoint)
	return nil
}

func newServer(t *testing.T) (*httptest.Server, *memStore, string) {
	t.Helper()
	store := &memStore{subs: map[string]push.Subscription{}}
	h := New(store, "BPublicKey", slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	h.Register(mux, auth.Admin(testSecret))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	token, _, err := auth.NewIssuer(testSecret, "studio", time.Hour).Issue("owner", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return srv, store, token
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSubscribeLifecycle(t *testing.T) {
	srv, store, token := newServer(t)
	url := srv.URL + "/api/v1/admin-push-subscription"
	body := `{"endpoint":"https://push.example/send/1","expirationTime":null,"keys":{"p256dh":"BKey","auth":"secret"}}`

	resp := do(t, http.MethodPost, url, "", body)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, url, token, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var sub push.Subscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.Username != "owner" || sub.Endpoint != "https://push.example/send/1" {
		t.Fatalf("unexpected subscription %+v", sub)
	}

	resp = do(t, http.MethodPost, url, token, body)
	if resp.StatusCode != http.StatusCreated || len(store.subs) != 1 {
		t.Fatalf("re-subscribe should upsert, got %d with %d rows", resp.StatusCode, len(store.subs))
	}

	resp = do(t, http.MethodDelete, url, token, `{"endpoint":"https://push.example/send/1"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, url, token, `{"endpoint":"https://push.example/send/1"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown endpoint, got %d", resp.StatusCode)
	}
}

func TestSubscribeValidation(t *testing.T) {
	srv, _, token := newServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/api/v1/admin-push-subscription", token, `{"endpoint":"not a url","keys":{"p256dh":"","auth":"x"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var out struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Fields["endpoint"] == "" || out.Fields["keys.p256dh"] == "" {
		t.Fatalf("unexpected fields %+v", out.Fields)
	}
}

func TestVAPIDPublicKey(t *testing.T) {
	srv, _, token := newServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/api/v1/admin/push/vapid-public-key", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out["public_key"] != "BPublicKey" {
		t.Fatalf("unexpected body %v %v", out, err)
	}
}
