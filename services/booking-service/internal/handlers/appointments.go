package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/storage"
)

// CreateAppointment books a slot directly. Bookings that need a deposit are
// answered with 402 and must go through /payment-intent. A repeated
// Idempotency-Key replays the stored 201 response; reusing a key with a
// different booking is answered with 422.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var f booking.Form
	if !h.decode(w, r, &f) {
		return
	}
	f.ClientShowedUp = nil

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	var fingerprint string
	if key != "" && h.idem != nil {
		fingerprint = requestHash(f)
		rec, found, err := h.idem.Lookup(ctx, key)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if found && rec.RequestHash != "" && rec.RequestHash != fingerprint {
			httpx.WriteError(w, http.StatusUnprocessableEntity, "idempotency_key_reused")
			return
		}
		if found && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	appt, err := h.bookings.Book(ctx, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, err := json.Marshal(appt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if key != "" && h.idem != nil {
		// The booking exists either way; a lost key only weakens replay.
		if err := h.idem.Save(ctx, storage.IdempotencyRecord{
			Key:             key,
			AppointmentID:   appt.ID,
			StatusCode:      http.StatusCreated,
			ResponsePayload: body,
			RequestHash:     fingerprint,
		}); err != nil {
			h.logger.Warn("idempotency key not stored", "appointment_id", appt.ID, "err", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// requestHash fingerprints the normalized booking form an Idempotency-Key was used with.
func requestHash(f booking.Form) string {
	f.ServiceIDs = append([]string(nil), f.ServiceIDs...)
	sort.Strings(f.ServiceIDs)
	f.ClientEmail = strings.ToLower(strings.TrimSpace(f.ClientEmail))
	b, _ := json.Marshal(f)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (h *Handler) QuoteAppointment(w http.ResponseWriter, r *http.Request) {
	var f booking.Form
	if !h.decode(w, r, &f) {
		return
	}
	q, err := h.bookings.Quote(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, q)
}

// LookupAppointments is the client self-service listing by email.
func (h *Handler) LookupAppointments(w http.ResponseWriter, r *http.Request) {
	list, err := h.bookings.Lookup(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// UpdateAppointment lets a client edit a booking. The email on record must be
// supplied as ?email= or, failing that, in the form.
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var f booking.Form
	if !h.decode(w, r, &f) {
		return
	}
	f.ClientShowedUp = nil
	email := r.URL.Query().Get("email")
	if email == "" {
		email = f.ClientEmail
	}
	appt, err := h.bookings.Update(r.Context(), r.PathValue("id"), f, booking.Actor{Email: email})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	actor := booking.Actor{Email: r.URL.Query().Get("email")}
	if _, err := h.bookings.Cancel(r.Context(), r.PathValue("id"), actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.bookings.AdminList(r.Context(), model.AppointmentFilter{
		Date:     q.Get("date"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Location: q.Get("location"),
		Limit:    queryInt(r, "limit", 0),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) AdminUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var f booking.Form
	if !h.decode(w, r, &f) {
		return
	}
	appt, err := h.bookings.Update(r.Context(), r.PathValue("id"), f, booking.Actor{Admin: true})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

type attendanceRequest struct {
	ShowedUp *bool `json:"client_showed_up"`
}

func (h *Handler) AdminSetAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ShowedUp == nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "validation_failed", Fields: map[string]string{"client_showed_up": "is required"}})
		return
	}
	appt, err := h.bookings.SetAttendance(r.Context(), r.PathValue("id"), *req.ShowedUp)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) AdminCancelAppointment(w http.ResponseWriter, r *http.Request) {
	if _, err := h.bookings.Cancel(r.Context(), r.PathValue("id"), booking.Actor{Admin: true}); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
