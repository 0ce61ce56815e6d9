package main

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lunalash/studio/libs/auth"
	"github.com/lunalash/studio/libs/httpx"
	"golang.org/x/crypto/bcrypt"
)

// loginHandler exchanges the single configured admin credential for a JWT.
type loginHandler struct {
	username     string
	passwordHash []byte
	issuer       *auth.Issuer
	logger       *slog.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// adminPasswordHash prefers a stored bcrypt hash and falls back to hashing a plain password.
func adminPasswordHash(hash, plain string) ([]byte, error) {
	if hash = strings.TrimSpace(hash); hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, err
		}
		return []byte(hash), nil
	}
	if plain == "" {
		return nil, nil
	}
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

func (h *loginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(h.passwordHash) == 0 {
		httpx.WriteError(w, http.StatusServiceUnavailable, "admin login not configured")
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(req.Username)), []byte(h.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		h.logger.Warn("admin login failed", "username", req.Username, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, exp, err := h.issuer.Issue(h.username, auth.RoleAdmin)
	if err != nil {
		h.logger.Error("token issue failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.logger.Info("admin login", "username", h.username)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp})
}
