package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/engine"
	"github.com/alanyoungcy/laybot/internal/rules"
)

// EngineControl is the operator surface of the auto-betting engine.
type EngineControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context, reason string)
	Status() engine.Status
	Settings() domain.Settings
	UpdateSettings(ctx context.Context, s domain.Settings) error
	ActiveRules() []string
	SetActiveRules(ctx context.Context, ids []string) error
	Rules() []rules.Info
	Activity(limit int) []domain.Activity
}

// EngineHandler serves engine control endpoints.
type EngineHandler struct {
	engine EngineControl
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(e EngineControl, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{engine: e, logger: logHandler(logger, "engine")}
}

// Status returns state, session counters, settings and active rules.
// GET /api/engine
func (h *EngineHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Start begins an auto-betting run.
// POST /api/engine/start
func (h *EngineHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "start engine", err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Stop ends the current run. Stopping a stopped engine is a no-op.
// POST /api/engine/stop
func (h *EngineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop(r.Context(), "Stopped by user")
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// GetSettings returns the current settings.
// GET /api/engine/settings
func (h *EngineHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Settings())
}

// PutSettings replaces the settings. Fields absent from the body keep their
// current values.
// PUT /api/engine/settings
func (h *EngineHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	s := h.engine.Settings()
	if err := decodeJSON(r, &s); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := h.engine.UpdateSettings(r.Context(), s); err != nil {
		writeServiceError(w, r, h.logger, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Settings())
}

type rulesResponse struct {
	Rules  []rules.Info `json:"rules"`
	Active []string     `json:"active"`
}

// GetRules lists every registered rule and the active set.
// GET /api/engine/rules
func (h *EngineHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rulesResponse{Rules: h.engine.Rules(), Active: h.engine.ActiveRules()})
}

type setRulesRequest struct {
	Active []string `json:"active"`
}

// PutRules replaces the active rule set.
// PUT /api/engine/rules
func (h *EngineHandler) PutRules(w http.ResponseWriter, r *http.Request) {
	var req setRulesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := h.engine.SetActiveRules(r.Context(), req.Active); err != nil {
		writeServiceError(w, r, h.logger, "set rules", err)
		return
	}
	writeJSON(w, http.StatusOK, rulesResponse{Rules: h.engine.Rules(), Active: h.engine.ActiveRules()})
}

// Activity returns the most recent activity entries, newest first.
// GET /api/engine/activity?limit=10
func (h *EngineHandler) Activity(w http.ResponseWriter, r *http.Request) {
	entries := h.engine.Activity(queryInt(r, "limit", 10))
	if entries == nil {
		entries = []domain.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}
