package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// AccountStore implements domain.AccountStore in memory with the same
// version check as the database store.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

// Create stores a at version 1.
func (s *AccountStore) Create(_ context.Context, a domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("memory: create account %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	a = a.Clone()
	a.Version = 1
	s.accounts[a.ID] = a
	return nil
}

// Get returns a deep copy of the account.
func (s *AccountStore) Get(_ context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("memory: get account %s: %w", id, domain.ErrNotFound)
	}
	return a.Clone(), nil
}

// Update replaces the account when its stored version equals
// expectedVersion.
func (s *AccountStore) Update(_ context.Context, a domain.Account, expectedVersion int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.accounts[a.ID]
	if !ok {
		return domain.Account{}, fmt.Errorf("memory: update account %s: %w", a.ID, domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return domain.Account{}, fmt.Errorf("memory: update account %s at version %d: %w", a.ID, expectedVersion, domain.ErrVersionConflict)
	}
	a = a.Clone()
	a.Version = cur.Version + 1
	a.CreatedAt = cur.CreatedAt
	s.accounts[a.ID] = a
	return a.Clone(), nil
}
