package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/lunalash/studio/services/booking-service/internal/catalog"
	"github.com/lunalash/studio/services/booking-service/internal/contact"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/slots"
	"github.com/lunalash/studio/services/booking-service/internal/storage"
)

const apiPrefix = "/api/v1"

// IdempotencyStore keeps the first successful response per Idempotency-Key.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (storage.IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec storage.IdempotencyRecord) error
}

// PaymentEventStore de-duplicates webhook deliveries.
type PaymentEventStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string, payload []byte) error
}

type Config struct {
	WebhookSecret    string
	WebhookTolerance time.Duration
	SessionCookie    string
	SecureCookies    bool
}

type Deps struct {
	Bookings    *booking.Service
	Slots       *slots.Service
	Catalog     *catalog.Service
	Contacts    *contact.Service
	Idempotency IdempotencyStore
	Events      PaymentEventStore
	Logger      *slog.Logger
	Config      Config
}

type Handler struct {
	bookings *booking.Service
	slots    *slots.Service
	catalog  *catalog.Service
	contacts *contact.Service
	idem     IdempotencyStore
	events   PaymentEventStore
	logger   *slog.Logger
	cfg      Config
}

func New(d Deps) *Handler {
	cfg := d.Config
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "studio_session"
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = 5 * time.Minute
	}
	return &Handler{
		bookings: d.Bookings,
		slots:    d.Slots,
		catalog:  d.Catalog,
		contacts: d.Contacts,
		idem:     d.Idempotency,
		events:   d.Events,
		logger:   d.Logger,
		cfg:      cfg,
	}
}

// Register mounts every route on mux. admin wraps the admin-only routes.
func (h *Handler) Register(mux *http.ServeMux, admin func(http.Handler) http.Handler) {
	public := func(pattern string, fn http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+apiPrefix+path, fn)
	}
	private := func(pattern string, fn http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+apiPrefix+path, admin(fn))
	}

	public("GET /services", h.ListServices)
	public("GET /services/{id}", h.GetService)
	private("POST /services", h.CreateService)
	private("PUT /services/{id}", h.UpdateService)
	private("DELETE /services/{id}", h.DeleteService)

	public("GET /available-times/{date}", h.AvailableTimes)
	private("GET /admin/slots/{date}", h.AdminSlots)
	private("POST /admin/slots", h.CreateSlot)
	private("POST /admin/slots/batch", h.CreateSlotBatch)
	private("PATCH /admin/slots/{id}", h.SetSlotAvailability)
	private("DELETE /admin/slots/{id}", h.DeleteSlot)
	private("DELETE /admin/slots/date/{date}", h.DeleteSlotsForDate)

	public("POST /appointments", h.CreateAppointment)
	public("POST /appointments/quote", h.QuoteAppointment)
	public("GET /appointments", h.LookupAppointments)
	public("PUT /appointments/{id}", h.UpdateAppointment)
	public("DELETE /appointments/{id}", h.CancelAppointment)
	private("GET /admin/appointments", h.AdminAppointments)
	private("PUT /admin/appointments/{id}", h.AdminUpdateAppointment)
	private("PATCH /admin/appointments/{id}/attendance", h.AdminSetAttendance)
	private("DELETE /admin/appointments/{id}", h.AdminCancelAppointment)

	public("POST /payment-intent", h.CreatePaymentIntent)
	public("GET /payments/return", h.PaymentReturn)
	public("GET /payments/pending", h.PendingBooking)
	public("DELETE /payments/pending", h.AbandonPendingBooking)
	public("POST /webhooks/stripe", h.StripeWebhook)

	public("POST /contact", h.CreateContact)
	public("GET /testimonials", h.Testimonials)
	private("GET /admin/contact", h.AdminContacts)
	private("PUT /contact/{id}", h.UpdateContact)
	private("DELETE /contact/{id}", h.DeleteContact)
}

type cancellationRefusedBody struct {
	Error      string `json:"error"`
	ContactURL string `json:"contact_url"`
}

type depositRequiredBody struct {
	Error       string `json:"error"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// writeError maps domain errors to HTTP responses. Unclassified errors are
// logged and reported as a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *booking.ValidationError
		depErr  *booking.DepositRequiredError
		refused *booking.CancellationRefusedError
		payErr  *booking.PaymentError
	)
	switch {
	case errors.As(err, &verr):
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "validation_failed", Fields: verr.Fields})
	case errors.As(err, &depErr):
		httpx.WriteJSON(w, http.StatusPaymentRequired, depositRequiredBody{
			Error:       "deposit_required",
			AmountCents: depErr.AmountCents,
			Currency:    depErr.Currency,
		})
	case errors.As(err, &refused):
		httpx.WriteJSON(w, http.StatusConflict, cancellationRefusedBody{Error: "cancellation_refused", ContactURL: refused.ContactURL})
	case errors.Is(err, model.ErrSlotTaken):
		httpx.WriteError(w, http.StatusConflict, "slot_taken")
	case errors.Is(err, model.ErrSlotHeld):
		httpx.WriteError(w, http.StatusConflict, "slot_held")
	case errors.Is(err, model.ErrSlotNotFound):
		httpx.WriteError(w, http.StatusNotFound, "slot_not_found")
	case errors.Is(err, model.ErrNotFound), errors.Is(err, booking.ErrPendingNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found")
	case errors.As(err, &payErr):
		h.logger.Error("payment gateway error", "op", payErr.Op, "err", payErr.Err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusBadGateway, "payment provider unavailable, please try again")
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// sessionID returns the browser session id, issuing a cookie when create is set.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request, create bool) string {
	if c, err := r.Cookie(h.cfg.SessionCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			return c.Value
		}
	}
	if !create {
		return ""
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((24 * time.Hour).Seconds()),
	})
	return sid
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func queryBool(r *http.Request, key string, fallback bool) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return v
}
