package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// AccountHandler serves the wallet endpoint.
type AccountHandler struct {
	account domain.AccountGateway
	logger  *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(account domain.AccountGateway, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{account: account, logger: logHandler(logger, "account")}
}

// Funds returns the available balance and exposure.
// GET /api/account/funds
func (h *AccountHandler) Funds(w http.ResponseWriter, r *http.Request) {
	funds, err := h.account.AccountFunds(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "account funds", err)
		return
	}
	writeJSON(w, http.StatusOK, funds)
}
