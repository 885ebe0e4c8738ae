package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/service"
)

// MarketReader lists markets and their live prices.
type MarketReader interface {
	Catalogue(ctx context.Context, req service.CatalogueRequest) ([]domain.Market, error)
	Books(ctx context.Context, marketIDs []string) ([]domain.MarketBook, error)
}

// MarketHandler serves market catalogue and price endpoints.
type MarketHandler struct {
	markets MarketReader
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logHandler(logger, "markets")}
}

// Catalogue returns upcoming WIN markets sorted by start time.
// POST /api/markets/catalogue
func (h *MarketHandler) Catalogue(w http.ResponseWriter, r *http.Request) {
	var req service.CatalogueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	markets, err := h.markets.Catalogue(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "catalogue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}

type bookRequest struct {
	MarketIDs []string `json:"market_ids"`
}

// Book returns live prices for up to 40 markets.
// POST /api/markets/book
func (h *MarketHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	books, err := h.markets.Books(r.Context(), req.MarketIDs)
	if err != nil {
		writeServiceError(w, r, h.logger, "book", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}
