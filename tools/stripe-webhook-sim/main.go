package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lunalash/studio/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type eventParams struct {
	EventID     string
	Type        string
	IntentID    string
	PendingID   string
	AmountCents int64
	Currency    string
	Created     time.Time
}

func main() {
	_ = config.LoadDotenv()
	var (
		baseURL  = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "gateway base url")
		evtType  = flag.String("type", config.String("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "payment_intent.succeeded | payment_intent.payment_failed | payment_intent.canceled")
		intentID = flag.String("intent", config.String("PAYMENT_INTENT_ID", ""), "payment intent id (pi_...)")
		pending  = flag.String("pending-id", config.String("PENDING_BOOKING_ID", ""), "pending_booking_id metadata")
		amount   = flag.Int64("amount", config.Int64("DEPOSIT_AMOUNT_CENTS", 3000), "amount in cents")
		currency = flag.String("currency", config.String("DEPOSIT_CURRENCY", "brl"), "currency")
		secret   = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
		repeat   = flag.Int("repeat", 1, "send the same event n times to exercise duplicate handling")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*intentID) == "" || strings.TrimSpace(*pending) == "" {
		fatal("PAYMENT_INTENT_ID and PENDING_BOOKING_ID are required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(eventParams{
		EventID:     fmt.Sprintf("evt_test_%d", now.UnixNano()),
		Type:        *evtType,
		IntentID:    *intentID,
		PendingID:   *pending,
		AmountCents: *amount,
		Currency:    *currency,
		Created:     now,
	})
	if err != nil {
		fatal(err.Error())
	}

	url := strings.TrimRight(*baseURL, "/") + "/api/v1/webhooks/stripe"
	client := &http.Client{Timeout: 15 * time.Second}
	for i := 0; i < *repeat; i++ {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    *secret,
			Timestamp: time.Now(),
			Scheme:    "v1",
		})
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			fatal(err.Error())
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Stripe-Signature", signed.Header)

		resp, err := client.Do(req)
		if err != nil {
			fatal(err.Error())
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func buildEventJSON(p eventParams) ([]byte, error) {
	status := map[string]stripe.PaymentIntentStatus{
		"payment_intent.succeeded":      stripe.PaymentIntentStatusSucceeded,
		"payment_intent.payment_failed": stripe.PaymentIntentStatusRequiresPaymentMethod,
		"payment_intent.canceled":       stripe.PaymentIntentStatusCanceled,
	}
	st, ok := status[p.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported event type: %s", p.Type)
	}
	intent := map[string]any{
		"id":       p.IntentID,
		"object":   "payment_intent",
		"amount":   p.AmountCents,
		"currency": strings.ToLower(p.Currency),
		"status":   st,
		"metadata": map[string]string{"pending_booking_id": p.PendingID},
	}
	if p.Type == "payment_intent.payment_failed" {
		intent["last_payment_error"] = map[string]any{"message": "Your card was declined.", "code": "card_declined"}
	}
	return json.Marshal(map[string]any{
		"id":          p.EventID,
		"object":      "event",
		"created":     p.Created.Unix(),
		"type":        p.Type,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": intent},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
