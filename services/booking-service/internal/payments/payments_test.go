package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stripe/stripe-go/v79"
)

func TestOutcomeOf(t *testing.T) {
	cases := []struct {
		in   Intent
		want Outcome
	}{
		{Intent{Status: "succeeded"}, OutcomeSuccess},
		{Intent{Status: "canceled"}, OutcomeFailure},
		{Intent{Status: "requires_payment_method", LastError: "card_declined"}, OutcomeFailure},
		{Intent{Status: "requires_payment_method"}, OutcomePending},
		{Intent{Status: "processing"}, OutcomePending},
		{Intent{Status: "requires_action"}, OutcomePending},
	}
	for _, tc := range cases {
		if got := OutcomeOf(tc.in); got != tc.want {
			t.Fatalf("OutcomeOf(%+v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNilGatewayNotConfigured(t *testing.T) {
	g := NewStripeGateway("", nil)
	if g != nil {
		t.Fatal("expected nil gateway without a key")
	}
	if _, err := g.CreateIntent(context.Background(), IntentRequest{}); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCreateIntentSendsDepositParams(t *testing.T) {
	var gotForm map[string]string
	var gotIdem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		gotIdem = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret","status":"requires_payment_method","amount":3000,"currency":"brl","metadata":{"pending_booking_id":"pb-1"}}`))
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
	})
	g := NewStripeGateway("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	intent, err := g.CreateIntent(context.Background(), IntentRequest{
		AmountCents:    3000,
		Currency:       "BRL",
		ReceiptEmail:   "client@example.com",
		IdempotencyKey: "deposit:pb-1",
		Metadata:       map[string]string{MetaPendingBookingID: "pb-1"},
	})
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" || intent.AmountCents != 3000 {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.Metadata[MetaPendingBookingID] != "pb-1" {
		t.Fatalf("expected metadata round trip, got %v", intent.Metadata)
	}
	if gotForm["amount"] != "3000" || gotForm["currency"] != "brl" || gotForm["metadata[pending_booking_id]"] != "pb-1" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
	if gotIdem != "deposit:pb-1" {
		t.Fatalf("expected idempotency key to be forwarded, got %q", gotIdem)
	}
}
