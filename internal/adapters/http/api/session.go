package api

import (
	"net/http"
	"time"

	"github.com/okian/scoreboard/internal/adapters/auth"
)

// SessionHandler opens and closes admin sessions.
type SessionHandler struct {
	auth   Authenticator
	secure bool
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(a Authenticator, secureCookies bool) *SessionHandler {
	return &SessionHandler{auth: a, secure: secureCookies}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleLogin handles POST /api/admin/login requests. The token is set as a
// cookie and also returned for non-browser clients.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "api.login"
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	s, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	auth.SetSessionCookie(w, s, h.secure)
	writeJSON(w, http.StatusOK, loginResponse{Token: s.Token, ExpiresAt: s.ExpiresAt})
}

// HandleLogout handles POST /api/admin/logout requests.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), auth.TokenFromRequest(r))
	auth.ClearSessionCookie(w, h.secure)
	w.WriteHeader(http.StatusNoContent)
}
