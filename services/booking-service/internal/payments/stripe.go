package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

var ErrNotConfigured = errors.New("payment gateway not configured")

// StripeGateway talks to the Stripe PaymentIntents and Refunds APIs.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway returns nil when secretKey is empty so callers can run without deposits.
func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil
	}
	return &StripeGateway{api: client.New(secretKey, backends)}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if g == nil {
		return Intent{}, ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (Intent, error) {
	if g == nil {
		return Intent{}, ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe get payment intent %s: %w", id, err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, id string) error {
	if g == nil {
		return ErrNotConfigured
	}
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(id, params); err != nil {
		return fmt.Errorf("stripe cancel payment intent %s: %w", id, err)
	}
	return nil
}

// Refund returns the full captured amount of the intent.
func (g *StripeGateway) Refund(ctx context.Context, intentID string) error {
	if g == nil {
		return ErrNotConfigured
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("refund:" + intentID)
	params.AddMetadata("reason", "slot_unavailable")
	if _, err := g.api.Refunds.New(params); err != nil {
		return fmt.Errorf("stripe refund %s: %w", intentID, err)
	}
	return nil
}

// IntentFromStripe converts a webhook or API payment intent.
func IntentFromStripe(pi *stripe.PaymentIntent) Intent {
	return fromStripe(pi)
}

func fromStripe(pi *stripe.PaymentIntent) Intent {
	if pi == nil {
		return Intent{}
	}
	out := Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
		if out.LastError == "" {
			out.LastError = string(pi.LastPaymentError.Code)
		}
	}
	return out
}
