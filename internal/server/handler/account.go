package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/service"
)

// AccountService defines the methods that the account handler requires.
type AccountService interface {
	RegisterAccount(ctx context.Context, req service.RegisterAccountRequest) (domain.Account, error)
}

// AccountHandler serves account registration.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// RegisterAccount creates an account with its wallets.
// POST /api/accounts
func (h *AccountHandler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := h.accounts.RegisterAccount(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "register account failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}
