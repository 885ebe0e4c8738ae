package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// BetLedger reads and settles ledger rows.
type BetLedger interface {
	Get(ctx context.Context, betID string) (domain.BetRecord, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.BetRecord, error)
	Summary(ctx context.Context) (domain.LedgerSummary, error)
	RecordSettlement(ctx context.Context, betID string, result domain.BetResult) error
}

// BetHandler serves the bet ledger endpoints.
type BetHandler struct {
	ledger BetLedger
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(ledger BetLedger, logger *slog.Logger) *BetHandler {
	return &BetHandler{ledger: ledger, logger: logHandler(logger, "bets")}
}

// List returns ledger rows, newest first.
// GET /api/bets?limit=50&offset=0&since=...&until=...
func (h *BetHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	bets, err := h.ledger.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list bets", err)
		return
	}
	if bets == nil {
		bets = []domain.BetRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets, "limit": opts.Limit, "offset": opts.Offset})
}

// Summary returns ledger totals.
// GET /api/bets/summary
func (h *BetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.ledger.Summary(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "bet summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type settleRequest struct {
	Result domain.BetResult `json:"result"`
}

// Settle records the outcome of a pending bet.
// POST /api/bets/{id}/settle
func (h *BetHandler) Settle(w http.ResponseWriter, r *http.Request) {
	betID := r.PathValue("id")
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if !req.Result.Valid() || req.Result == domain.BetResultPending {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "result must be won, lost or void")
		return
	}

	if err := h.ledger.RecordSettlement(r.Context(), betID, req.Result); err != nil {
		writeServiceError(w, r, h.logger, "settle bet", err)
		return
	}
	rec, err := h.ledger.Get(r.Context(), betID)
	if err != nil {
		writeServiceError(w, r, h.logger, "settle bet", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
