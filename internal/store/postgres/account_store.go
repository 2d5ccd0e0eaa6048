package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// AccountStore implements domain.AccountStore. The wallet tree is stored as
// one JSONB document; version is a compare-and-swap counter.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create inserts a new account at version 1.
func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	wallets, err := marshalWallets(a.Wallets)
	if err != nil {
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	const query = `
		INSERT INTO accounts (id, version, wallets, created_at, updated_at)
		VALUES ($1, 1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, a.ID, wallets, a.CreatedAt, a.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create account %s: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	return nil
}

// Get returns the account with its wallets and positions.
func (s *AccountStore) Get(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT id, version, wallets, created_at, updated_at FROM accounts WHERE id = $1`

	var (
		a       domain.Account
		wallets []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Version, &wallets, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, domain.ErrNotFound)
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	if err := json.Unmarshal(wallets, &a.Wallets); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: decode wallets of %s: %w", id, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// Update replaces the wallet tree when the stored version equals
// expectedVersion and returns the account at its new version.
func (s *AccountStore) Update(ctx context.Context, a domain.Account, expectedVersion int64) (domain.Account, error) {
	wallets, err := marshalWallets(a.Wallets)
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: update account %s: %w", a.ID, err)
	}

	const query = `
		UPDATE accounts SET wallets = $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND version = $4
		RETURNING version, created_at, updated_at`

	out := a
	err = s.pool.QueryRow(ctx, query, a.ID, wallets, a.UpdatedAt, expectedVersion).
		Scan(&out.Version, &out.CreatedAt, &out.UpdatedAt)
	if err == nil {
		out.CreatedAt = out.CreatedAt.UTC()
		out.UpdatedAt = out.UpdatedAt.UTC()
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("postgres: update account %s: %w", a.ID, err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: update account %s: %w", a.ID, err)
	}
	if !exists {
		return domain.Account{}, fmt.Errorf("postgres: update account %s: %w", a.ID, domain.ErrNotFound)
	}
	return domain.Account{}, fmt.Errorf("postgres: update account %s at version %d: %w", a.ID, expectedVersion, domain.ErrVersionConflict)
}

func marshalWallets(w []domain.Wallet) ([]byte, error) {
	if w == nil {
		w = []domain.Wallet{}
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal wallets: %w", err)
	}
	return b, nil
}
