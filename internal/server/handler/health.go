package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthSource reports the liveness of the pieces behind the API. Either
// may be nil in modes that do not run them.
type HealthSource struct {
	Session interface{ LoggedIn() bool }
	Engine  interface{ IsRunning() bool }
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	src    HealthSource
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(src HealthSource, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{src: src, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.src.Session != nil {
		body["exchange_session"] = h.src.Session.LoggedIn()
	}
	if h.src.Engine != nil {
		body["engine_running"] = h.src.Engine.IsRunning()
	}
	writeJSON(w, http.StatusOK, body)
}
