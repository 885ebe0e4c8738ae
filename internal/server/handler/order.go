package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/service"
)

// OrderManager places, cancels and lists operator orders.
type OrderManager interface {
	PlaceLay(ctx context.Context, req service.ManualLay) (domain.PlaceResult, error)
	Cancel(ctx context.Context, marketID, betID string) (domain.CancelResult, error)
	Current(ctx context.Context, marketIDs []string) ([]domain.CurrentOrder, error)
}

// OrderHandler serves the manual order endpoints.
type OrderHandler struct {
	orders OrderManager
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderManager, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logHandler(logger, "orders")}
}

// Place lays one selection. An exchange rejection is reported with 422 and
// the exchange error code.
// POST /api/orders/place
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req service.ManualLay
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.MarketID == "" || req.SelectionID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "market_id and selection_id are required")
		return
	}

	res, err := h.orders.PlaceLay(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "place order", err)
		return
	}
	if !res.OK() {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type cancelRequest struct {
	MarketID string `json:"market_id"`
	BetID    string `json:"bet_id"`
}

// Cancel cancels the unmatched part of one bet.
// POST /api/orders/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.MarketID == "" || req.BetID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "market_id and bet_id are required")
		return
	}
	res, err := h.orders.Cancel(r.Context(), req.MarketID, req.BetID)
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Current lists unsettled orders, optionally for a comma-separated list of
// markets.
// GET /api/orders/current?market_ids=1.1,1.2
func (h *OrderHandler) Current(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("market_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	orders, err := h.orders.Current(r.Context(), ids)
	if err != nil {
		writeServiceError(w, r, h.logger, "current orders", err)
		return
	}
	if orders == nil {
		orders = []domain.CurrentOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}
