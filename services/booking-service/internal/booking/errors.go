package booking

import (
	"errors"
	"fmt"

	"github.com/lunalash/studio/services/booking-service/internal/validation"
)

// ValidationError lists every offending form field.
type ValidationError = validation.Error

var (
	ErrSelectionLimit  = errors.New("service selection limit reached")
	ErrCategoryTaken   = errors.New("a service of this category is already selected")
	ErrPendingNotFound = errors.New("pending booking not found")
	// ErrDepositOrphaned reports a deposit paid after its pending booking was
	// dropped. The payment has been refunded.
	ErrDepositOrphaned = errors.New("deposit paid without a pending booking; refunded")
)

// DepositRequiredError means the booking must go through StartDeposit.
type DepositRequiredError struct {
	AmountCents int64
	Currency    string
}

func (e *DepositRequiredError) Error() string {
	return fmt.Sprintf("deposit of %d %s required", e.AmountCents, e.Currency)
}

// CancellationRefusedError is a policy redirect, not a failure: the booking
// must be cancelled through ContactURL.
type CancellationRefusedError struct {
	ContactURL string
}

func (e *CancellationRefusedError) Error() string {
	return "cancellation must be requested through " + e.ContactURL
}

// PaymentError wraps a failed or timed out call to the payment gateway.
type PaymentError struct {
	Op  string
	Err error
}

func (e *PaymentError) Error() string {
	return "payment " + e.Op + ": " + e.Err.Error()
}

func (e *PaymentError) Unwrap() error { return e.Err }
