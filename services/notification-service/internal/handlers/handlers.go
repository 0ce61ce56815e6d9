package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lunalash/studio/libs/auth"
	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/services/notification-service/internal/push"
)

type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, s push.Subscription) (push.Subscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

type Handler struct {
	store     SubscriptionStore
	publicKey string
	validate  *validator.Validate
	logger    *slog.Logger
}

func New(store SubscriptionStore, publicKey string, logger *slog.Logger) *Handler {
	return &Handler{
		store:     store,
		publicKey: publicKey,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Register mounts the admin push routes, each wrapped by admin.
func (h *Handler) Register(mux *http.ServeMux, admin func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/admin-push-subscription", admin(http.HandlerFunc(h.Subscribe)))
	mux.Handle("DELETE /api/v1/admin-push-subscription", admin(http.HandlerFunc(h.Unsubscribe)))
	mux.Handle("GET /api/v1/admin/push/vapid-public-key", admin(http.HandlerFunc(h.VAPIDPublicKey)))
}

// subscribeRequest mirrors the browser's PushSubscription.toJSON().
type subscribeRequest struct {
	Endpoint       string `json:"endpoint" validate:"required,url,max=2048"`
	ExpirationTime *int64 `json:"expirationTime,omitempty"`
	Keys           struct {
		P256dh string `json:"p256dh" validate:"required,max=256"`
		Auth   string `json:"auth" validate:"required,max=128"`
	} `json:"keys"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fields := h.check(req); fields != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "validation_failed", Fields: fields})
		return
	}

	username := "admin"
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		username = claims.Subject
	}
	sub, err := h.store.UpsertSubscription(r.Context(), push.Subscription{
		Username: username,
		Endpoint: strings.TrimSpace(req.Endpoint),
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.logger.Info("push subscription registered", "username", username, "id", sub.ID)
	httpx.WriteJSON(w, http.StatusCreated, sub)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fields := h.check(req); fields != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "validation_failed", Fields: fields})
		return
	}
	err := h.store.DeleteSubscription(r.Context(), strings.TrimSpace(req.Endpoint))
	switch {
	case errors.Is(err, push.ErrUnknownSubscription):
		httpx.WriteError(w, http.StatusNotFound, "not_found")
	case err != nil:
		h.internalError(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) VAPIDPublicKey(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}

func (h *Handler) check(v any) map[string]string {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	fields := map[string]string{}
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		if name == "p256dh" || name == "auth" {
			name = "keys." + name
		}
		fields[name] = "failed " + fe.Tag()
	}
	return fields
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusInternalServerError, "internal error")
}
