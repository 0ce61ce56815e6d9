package payments

import "strings"

// Intent is the subset of a provider payment intent the booking flow needs.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       string            `json:"status"`
	AmountCents  int64             `json:"amount_cents"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
}

type IntentRequest struct {
	AmountCents    int64
	Currency       string
	ReceiptEmail   string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Outcome is how the client-facing flow treats a payment.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// Metadata keys attached to deposit intents.
const (
	MetaPendingBookingID = "pending_booking_id"
	MetaLocation         = "location"
	MetaDate             = "date"
	MetaTime             = "time"
)

// OutcomeOf maps a PaymentIntent status onto the three client outcomes.
// requires_payment_method only counts as a failure once an attempt was declined;
// before that the client simply has not paid yet.
func OutcomeOf(in Intent) Outcome {
	switch strings.ToLower(in.Status) {
	case "succeeded":
		return OutcomeSuccess
	case "canceled":
		return OutcomeFailure
	case "requires_payment_method":
		if in.LastError != "" {
			return OutcomeFailure
		}
		return OutcomePending
	default:
		return OutcomePending
	}
}
