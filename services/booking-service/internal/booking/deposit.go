package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	otelx "github.com/lunalash/studio/libs/otel"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/payments"
	"go.opentelemetry.io/otel/attribute"
)

// PendingBooking is a deposit booking waiting for payment confirmation.
type PendingBooking struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Form      Form      `json:"form"`
	Quote     Quote     `json:"quote"`
	IntentID  string    `json:"intent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingStore is session-scoped storage for deposit handoffs.
// Get/BySession fail with ErrPendingNotFound.
type PendingStore interface {
	Save(ctx context.Context, p PendingBooking) error
	Get(ctx context.Context, id string) (PendingBooking, error)
	BySession(ctx context.Context, sessionID string) (PendingBooking, error)
	Delete(ctx context.Context, id string) error
	OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]PendingBooking, error)
}

// DepositSession is what the client needs to open the hosted payment UI.
type DepositSession struct {
	PendingID    string `json:"pending_id"`
	IntentID     string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Quote        Quote  `json:"quote"`
}

// ReturnResult is the outcome of the payment return page.
type ReturnResult struct {
	Outcome     payments.Outcome   `json:"outcome"`
	Appointment *model.Appointment `json:"appointment,omitempty"`
	Pending     *PendingBooking    `json:"pending,omitempty"`
	Created     bool               `json:"created"`
}

type ReconcileReport struct {
	Checked   int
	Confirmed int
	Discarded int
	Pending   int
	Failed    int
}

func newPendingID() string { return uuid.NewString() }

func (s *Service) paymentCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.policy.PaymentTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.policy.PaymentTimeout)
}

// StartDeposit creates a payment intent for a booking that requires a deposit and
// stores the form until the payment is confirmed. No appointment is written.
func (s *Service) StartDeposit(ctx context.Context, sessionID string, f Form) (DepositSession, error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.StartDeposit")
	var err error
	defer func() { otelx.EndSpan(span, err) }()

	if sessionID == "" {
		err = errors.New("session id required")
		return DepositSession{}, err
	}
	f, q, err := s.prepare(ctx, f)
	if err != nil {
		return DepositSession{}, err
	}
	if !q.DepositRequired {
		err = &ValidationError{Fields: map[string]string{"service_ids": "this booking does not require a deposit"}}
		return DepositSession{}, err
	}
	exists, open, err := s.slots.Status(ctx, f.Date, f.Time, f.Location)
	if err != nil {
		return DepositSession{}, err
	}
	if !open {
		err = model.ErrSlotNotFound
		if exists {
			err = model.ErrSlotTaken
		}
		return DepositSession{}, err
	}

	if prev, perr := s.pending.BySession(ctx, sessionID); perr == nil {
		s.discard(ctx, prev, true)
	}

	pendingID := s.newID()
	span.SetAttributes(attribute.String("booking.pending_id", pendingID))
	pctx, cancel := s.paymentCtx(ctx)
	intent, err := s.payments.CreateIntent(pctx, payments.IntentRequest{
		AmountCents:    q.DepositCents,
		Currency:       q.Currency,
		ReceiptEmail:   f.ClientEmail,
		Description:    "Deposit: " + q.ServiceName + " on " + f.Date + " " + f.Time,
		IdempotencyKey: "deposit:" + pendingID,
		Metadata: map[string]string{
			payments.MetaPendingBookingID: pendingID,
			payments.MetaLocation:         f.Location,
			payments.MetaDate:             f.Date,
			payments.MetaTime:             f.Time,
		},
	})
	cancel()
	if err != nil {
		s.logger.Error("payment intent creation failed", "pending_id", pendingID, "err", err)
		err = &PaymentError{Op: "create intent", Err: err}
		return DepositSession{}, err
	}

	p := PendingBooking{
		ID:        pendingID,
		SessionID: sessionID,
		Form:      f,
		Quote:     q,
		IntentID:  intent.ID,
		CreatedAt: s.now().UTC(),
	}
	if err = s.pending.Save(ctx, p); err != nil {
		s.cancelIntent(ctx, intent.ID)
		err = fmt.Errorf("save pending booking: %w", err)
		return DepositSession{}, err
	}
	s.logger.Info("deposit started", "pending_id", pendingID, "payment_intent_id", intent.ID, "amount_cents", q.DepositCents)
	return DepositSession{
		PendingID:    pendingID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  q.DepositCents,
		Currency:     q.Currency,
		Quote:        q,
	}, nil
}

// ConfirmDeposit turns a paid pending booking into an appointment. It is
// idempotent per payment intent: repeated signals return the existing
// appointment with created=false. When the slot was lost in the meantime the
// deposit is refunded and model.ErrSlotTaken returned. A paid intent whose
// pending booking has already expired is refunded with ErrDepositOrphaned.
func (s *Service) ConfirmDeposit(ctx context.Context, intentID, pendingID string) (model.Appointment, bool, error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.ConfirmDeposit",
		attribute.String("payment.intent_id", intentID), attribute.String("booking.pending_id", pendingID))
	var err error
	defer func() { otelx.EndSpan(span, err) }()

	if appt, ferr := s.ledger.FindByPaymentIntent(ctx, intentID); ferr == nil {
		s.clearPending(ctx, pendingID)
		return appt, false, nil
	} else if !errors.Is(ferr, model.ErrNotFound) {
		err = ferr
		return model.Appointment{}, false, err
	}

	p, err := s.pending.Get(ctx, pendingID)
	if errors.Is(err, ErrPendingNotFound) && pendingID != "" {
		err = s.refundOrphan(ctx, intentID, pendingID)
		return model.Appointment{}, false, err
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	if p.IntentID != intentID {
		err = fmt.Errorf("payment intent %s does not belong to pending booking %s: %w", intentID, pendingID, ErrPendingNotFound)
		return model.Appointment{}, false, err
	}

	appt := newAppointment(p.Form, p.Quote)
	appt.DepositCents = p.Quote.DepositCents
	appt.PaymentIntentID = intentID
	created, cerr := s.ledger.Create(ctx, appt)
	switch {
	case cerr == nil:
	case errors.Is(cerr, model.ErrDuplicatePayment):
		existing, ferr := s.ledger.FindByPaymentIntent(ctx, intentID)
		if ferr != nil {
			err = ferr
			return model.Appointment{}, false, err
		}
		s.clearPending(ctx, pendingID)
		return existing, false, nil
	case errors.Is(cerr, model.ErrSlotTaken), errors.Is(cerr, model.ErrSlotNotFound):
		// A concurrent confirmation of this same intent may have taken the slot.
		if existing, ferr := s.ledger.FindByPaymentIntent(ctx, intentID); ferr == nil {
			s.clearPending(ctx, pendingID)
			return existing, false, nil
		}
		s.refund(ctx, p)
		err = fmt.Errorf("confirm deposit: %w", model.ErrSlotTaken)
		return model.Appointment{}, false, err
	default:
		err = fmt.Errorf("create appointment: %w", cerr)
		return model.Appointment{}, false, err
	}

	s.clearPending(ctx, pendingID)
	s.logger.Info("deposit confirmed", "appointment_id", created.ID, "payment_intent_id", intentID, "pending_id", pendingID)
	s.notifyConfirmed(ctx, created)
	return created, true, nil
}

// ResolveReturn handles the client's return from the hosted payment page.
// success confirms the booking, failure discards it, pending leaves it stored.
func (s *Service) ResolveReturn(ctx context.Context, sessionID, intentID string) (ReturnResult, error) {
	p, err := s.pending.BySession(ctx, sessionID)
	if errors.Is(err, ErrPendingNotFound) && intentID != "" {
		// The webhook may have confirmed already and cleared the handoff.
		if appt, ferr := s.ledger.FindByPaymentIntent(ctx, intentID); ferr == nil {
			return ReturnResult{Outcome: payments.OutcomeSuccess, Appointment: &appt}, nil
		}
	}
	if err != nil {
		return ReturnResult{}, err
	}
	if intentID != "" && intentID != p.IntentID {
		return ReturnResult{}, ErrPendingNotFound
	}

	pctx, cancel := s.paymentCtx(ctx)
	intent, err := s.payments.GetIntent(pctx, p.IntentID)
	cancel()
	if err != nil {
		return ReturnResult{}, &PaymentError{Op: "get intent", Err: err}
	}
	return s.apply(ctx, p, intent)
}

func (s *Service) apply(ctx context.Context, p PendingBooking, intent payments.Intent) (ReturnResult, error) {
	switch payments.OutcomeOf(intent) {
	case payments.OutcomeSuccess:
		appt, created, err := s.ConfirmDeposit(ctx, p.IntentID, p.ID)
		if err != nil {
			return ReturnResult{}, err
		}
		return ReturnResult{Outcome: payments.OutcomeSuccess, Appointment: &appt, Created: created}, nil
	case payments.OutcomeFailure:
		s.discard(ctx, p, intent.Status != "canceled")
		return ReturnResult{Outcome: payments.OutcomeFailure}, nil
	default:
		return ReturnResult{Outcome: payments.OutcomePending, Pending: &p}, nil
	}
}

// PendingForSession restores the stored form for the payment return page.
func (s *Service) PendingForSession(ctx context.Context, sessionID string) (PendingBooking, error) {
	return s.pending.BySession(ctx, sessionID)
}

// DiscardDeposit drops a pending booking, cancelling its intent when asked.
func (s *Service) DiscardDeposit(ctx context.Context, pendingID string, cancelIntent bool) error {
	p, err := s.pending.Get(ctx, pendingID)
	if err != nil {
		return err
	}
	s.discard(ctx, p, cancelIntent)
	return nil
}

// Reconcile settles pending bookings older than minAge against the gateway,
// covering missed webhooks and abandoned payments.
func (s *Service) Reconcile(ctx context.Context, minAge time.Duration, batch int) (ReconcileReport, error) {
	var report ReconcileReport
	now := s.now().UTC()
	stale, err := s.pending.OlderThan(ctx, now.Add(-minAge), batch)
	if err != nil {
		return report, err
	}
	for _, p := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		pctx, cancel := s.paymentCtx(ctx)
		intent, err := s.payments.GetIntent(pctx, p.IntentID)
		cancel()
		if err != nil {
			report.Failed++
			s.logger.Warn("reconcile: fetch intent failed", "pending_id", p.ID, "payment_intent_id", p.IntentID, "err", err)
			continue
		}
		outcome := payments.OutcomeOf(intent)
		if outcome == payments.OutcomePending && now.Sub(p.CreatedAt) >= s.policy.PendingTTL {
			s.logger.Info("reconcile: expiring abandoned deposit", "pending_id", p.ID, "payment_intent_id", p.IntentID)
			s.discard(ctx, p, true)
			report.Discarded++
			continue
		}
		res, err := s.apply(ctx, p, intent)
		if err != nil {
			report.Failed++
			s.logger.Warn("reconcile: apply outcome failed", "pending_id", p.ID, "err", err)
			continue
		}
		switch res.Outcome {
		case payments.OutcomeSuccess:
			report.Confirmed++
		case payments.OutcomeFailure:
			report.Discarded++
		default:
			report.Pending++
		}
	}
	return report, nil
}

func (s *Service) discard(ctx context.Context, p PendingBooking, cancelIntent bool) {
	if cancelIntent {
		s.cancelIntent(ctx, p.IntentID)
	}
	s.clearPending(ctx, p.ID)
	s.logger.Info("pending deposit discarded", "pending_id", p.ID, "payment_intent_id", p.IntentID)
}

func (s *Service) cancelIntent(ctx context.Context, intentID string) {
	pctx, cancel := s.paymentCtx(ctx)
	defer cancel()
	if err := s.payments.CancelIntent(pctx, intentID); err != nil {
		s.logger.Warn("payment intent cancel failed", "payment_intent_id", intentID, "err", err)
	}
}

func (s *Service) refund(ctx context.Context, p PendingBooking) {
	pctx, cancel := s.paymentCtx(ctx)
	err := s.payments.Refund(pctx, p.IntentID)
	cancel()
	if err != nil {
		// Left in the pending store so the reconciler retries.
		s.logger.Error("deposit refund failed", "pending_id", p.ID, "payment_intent_id", p.IntentID, "err", err)
		return
	}
	s.logger.Warn("slot lost after payment; deposit refunded", "pending_id", p.ID, "payment_intent_id", p.IntentID)
	s.clearPending(ctx, p.ID)
	if s.notifier != nil {
		if err := s.notifier.DepositRefunded(ctx, p); err != nil {
			s.logger.Warn("notification delivery failed", "event", "deposit_refunded", "pending_id", p.ID, "err", err)
		}
	}
}

// refundOrphan refunds a paid intent whose pending booking no longer exists.
// Only intents created for pendingID are touched. It returns ErrDepositOrphaned
// once the refund went through.
func (s *Service) refundOrphan(ctx context.Context, intentID, pendingID string) error {
	pctx, cancel := s.paymentCtx(ctx)
	intent, err := s.payments.GetIntent(pctx, intentID)
	cancel()
	if err != nil {
		return &PaymentError{Op: "get intent", Err: err}
	}
	if intent.Metadata[payments.MetaPendingBookingID] != pendingID || payments.OutcomeOf(intent) != payments.OutcomeSuccess {
		return ErrPendingNotFound
	}
	pctx, cancel = s.paymentCtx(ctx)
	err = s.payments.Refund(pctx, intentID)
	cancel()
	if err != nil {
		return &PaymentError{Op: "refund", Err: err}
	}
	s.logger.Warn("deposit paid after its booking expired; refunded", "pending_id", pendingID, "payment_intent_id", intentID)
	if s.notifier != nil {
		p := PendingBooking{
			ID:       pendingID,
			IntentID: intentID,
			Form: Form{
				Date:     intent.Metadata[payments.MetaDate],
				Time:     intent.Metadata[payments.MetaTime],
				Location: intent.Metadata[payments.MetaLocation],
			},
			Quote: Quote{DepositCents: intent.AmountCents, Currency: intent.Currency},
		}
		if err := s.notifier.DepositRefunded(ctx, p); err != nil {
			s.logger.Warn("notification delivery failed", "event", "deposit_refunded", "pending_id", pendingID, "err", err)
		}
	}
	return ErrDepositOrphaned
}

func (s *Service) clearPending(ctx context.Context, pendingID string) {
	if pendingID == "" {
		return
	}
	if err := s.pending.Delete(ctx, pendingID); err != nil && !errors.Is(err, ErrPendingNotFound) {
		s.logger.Warn("pending booking cleanup failed", "pending_id", pendingID, "err", err)
	}
}
