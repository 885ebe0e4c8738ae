package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// AuthHandler manages the exchange session on behalf of the operator.
type AuthHandler struct {
	session  domain.SessionGateway
	username string
	password string
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. username and password are the
// configured credentials used when a login request carries none.
func NewAuthHandler(session domain.SessionGateway, username, password string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		session:  session,
		username: username,
		password: password,
		logger:   logHandler(logger, "auth"),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login opens an exchange session.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.Username == "" && req.Password == "" {
		req.Username, req.Password = h.username, h.password
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "username and password are required")
		return
	}

	if err := h.session.Login(r.Context(), req.Username, req.Password); err != nil {
		writeServiceError(w, r, h.logger, "login", err)
		return
	}
	h.logger.InfoContext(r.Context(), "exchange session opened", slog.String("username", req.Username))
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": true})
}

// KeepAlive extends the exchange session.
// POST /api/auth/keepalive
func (h *AuthHandler) KeepAlive(w http.ResponseWriter, r *http.Request) {
	if err := h.session.KeepAlive(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "keepalive", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": h.session.LoggedIn()})
}

// Logout closes the exchange session.
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
}
