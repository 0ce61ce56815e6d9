package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/payments"
	"github.com/lunalash/studio/services/booking-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CreatePaymentIntent starts the deposit branch for the browser session.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var f booking.Form
	if !h.decode(w, r, &f) {
		return
	}
	f.ClientShowedUp = nil
	sid := h.sessionID(w, r, true)
	dep, err := h.bookings.StartDeposit(r.Context(), sid, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dep)
}

// PaymentReturn resolves the redirect back from the hosted payment page into
// one of success, failure or pending.
func (h *Handler) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	intentID := strings.TrimSpace(r.URL.Query().Get("payment_intent"))
	sid := h.sessionID(w, r, false)
	if sid == "" && intentID == "" {
		httpx.WriteError(w, http.StatusNotFound, "not_found")
		return
	}
	res, err := h.bookings.ResolveReturn(r.Context(), sid, intentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// PendingBooking restores the stored booking form for the session.
func (h *Handler) PendingBooking(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r, false)
	if sid == "" {
		httpx.WriteError(w, http.StatusNotFound, "not_found")
		return
	}
	p, err := h.bookings.PendingForSession(r.Context(), sid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// AbandonPendingBooking lets the client back out of the payment step.
func (h *Handler) AbandonPendingBooking(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r, false)
	if sid == "" {
		httpx.WriteError(w, http.StatusNotFound, "not_found")
		return
	}
	p, err := h.bookings.PendingForSession(r.Context(), sid)
	if err == nil {
		err = h.bookings.DiscardDeposit(r.Context(), p.ID, true)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type webhookAck struct {
	Status string `json:"status"`
}

// StripeWebhook applies payment_intent events. The signature is the only
// authentication. Events are recorded after they are handled, so a failed
// attempt is retried by Stripe and a replay of a handled one is ignored.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.cfg.WebhookSecret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ctx := r.Context()
	evtType := string(evt.Type)
	logger := h.logger.With("stripe_event_id", evt.ID, "event_type", evtType)
	if h.events != nil {
		seen, err := h.events.Seen(ctx, evt.ID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if seen {
			logger.Info("stripe event duplicate ignored")
			httpx.WriteJSON(w, http.StatusOK, webhookAck{Status: "duplicate"})
			return
		}
	}

	status, err := h.applyPaymentEvent(ctx, evt)
	if err != nil {
		logger.Error("stripe event handling failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if h.events != nil {
		if err := h.events.Record(ctx, evt.ID, evtType, body); err != nil && !errors.Is(err, storage.ErrDuplicatePaymentEvent) {
			logger.Warn("stripe event not recorded", "err", err)
		}
	}
	logger.Info("stripe event handled", "status", status)
	httpx.WriteJSON(w, http.StatusOK, webhookAck{Status: status})
}

// applyPaymentEvent returns an ack status. Errors are only returned for
// conditions worth a Stripe retry.
func (h *Handler) applyPaymentEvent(ctx context.Context, evt stripe.Event) (string, error) {
	switch evt.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		return "ignored", nil
	}
	if evt.Data == nil {
		return "ignored", nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return "", err
	}
	intent := payments.IntentFromStripe(&pi)
	pendingID := intent.Metadata[payments.MetaPendingBookingID]
	logger := h.logger.With("payment_intent_id", intent.ID, "pending_id", pendingID)

	switch evt.Type {
	case "payment_intent.succeeded":
		appt, created, err := h.bookings.ConfirmDeposit(ctx, intent.ID, pendingID)
		switch {
		case err == nil && created:
			return "confirmed", nil
		case err == nil:
			logger.Info("deposit already confirmed", "appointment_id", appt.ID)
			return "already_confirmed", nil
		case errors.Is(err, model.ErrSlotTaken), errors.Is(err, booking.ErrDepositOrphaned):
			return "refunded", nil
		case errors.Is(err, booking.ErrPendingNotFound):
			logger.Warn("paid intent has no pending booking")
			return "orphaned", nil
		default:
			return "", err
		}
	case "payment_intent.payment_failed":
		// The client may retry with another card on the same intent.
		logger.Info("deposit payment failed", "reason", intent.LastError)
		return "payment_failed", nil
	default:
		if err := h.bookings.DiscardDeposit(ctx, pendingID, false); err != nil && !errors.Is(err, booking.ErrPendingNotFound) {
			return "", err
		}
		return "discarded", nil
	}
}
