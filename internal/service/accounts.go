package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// RegisterAccountRequest registers an account together with its wallets.
type RegisterAccountRequest struct {
	ID      string             `json:"id" validate:"required"`
	Wallets []domain.WalletRef `json:"wallets" validate:"required,min=1,dive"`
}

// AccountService registers accounts. Positions are managed by the
// PositionLedger once an account exists.
type AccountService struct {
	accounts domain.AccountStore
	validate *validator.Validate
	now      Clock
	fx       sideEffects
	logger   *slog.Logger
}

// NewAccountService creates an AccountService. audit may be nil.
func NewAccountService(accounts domain.AccountStore, audit domain.AuditStore, logger *slog.Logger) *AccountService {
	logger = logger.With(slog.String("component", "accounts"))
	return &AccountService{
		accounts: accounts,
		validate: validator.New(),
		now:      systemClock,
		fx:       sideEffects{audit: audit, logger: logger},
		logger:   logger,
	}
}

// RegisterAccount stores a new account at version 1 with empty position
// lists. Chains are lowercased; a wallet listed twice is a validation error.
func (s *AccountService) RegisterAccount(ctx context.Context, req RegisterAccountRequest) (domain.Account, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return domain.Account{}, fmt.Errorf("accounts: register: %s: %w", strings.Join(problems, "; "), domain.ErrValidation)
		}
		return domain.Account{}, fmt.Errorf("accounts: register: %v: %w", err, domain.ErrValidation)
	}

	now := s.now()
	acct := domain.Account{
		ID:        strings.TrimSpace(req.ID),
		Version:   1,
		Wallets:   make([]domain.Wallet, 0, len(req.Wallets)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	seen := make(map[string]struct{}, len(req.Wallets))
	for _, ref := range req.Wallets {
		chain := strings.ToLower(strings.TrimSpace(ref.Chain))
		key := chain + "/" + ref.PublicKey
		if _, dup := seen[key]; dup {
			return domain.Account{}, fmt.Errorf("accounts: register %s: duplicate wallet %s: %w", acct.ID, key, domain.ErrValidation)
		}
		seen[key] = struct{}{}
		acct.Wallets = append(acct.Wallets, domain.Wallet{
			Chain:     chain,
			PublicKey: ref.PublicKey,
			Label:     ref.Label,
			Positions: []domain.Position{},
		})
	}

	if err := s.accounts.Create(ctx, acct); err != nil {
		return domain.Account{}, fmt.Errorf("accounts: register %s: %w", acct.ID, err)
	}

	s.fx.auditLog(ctx, "account_registered", map[string]any{
		"account_id": acct.ID,
		"wallets":    len(acct.Wallets),
	})
	s.logger.InfoContext(ctx, "accounts: account registered",
		slog.String("account_id", acct.ID),
		slog.Int("wallets", len(acct.Wallets)),
	)
	return acct, nil
}

// GetAccount returns the stored account.
func (s *AccountService) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("accounts: get %s: %w", id, err)
	}
	return acct, nil
}
