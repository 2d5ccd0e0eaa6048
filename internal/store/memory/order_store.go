// Package memory provides in-process stores for paper trading and tests.
// They honour the same contracts as the Postgres stores.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// OrderStore implements domain.OrderStore in memory.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

// Create stores a copy of o.
func (s *OrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("memory: create order %s: %w", o.ID, domain.ErrAlreadyExists)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// GetByID returns a copy of the stored order.
func (s *OrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: get order %s: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

// UpdateSchedule sets status and next execution unless the stored order is
// already terminal.
func (s *OrderStore) UpdateSchedule(_ context.Context, id string, status domain.OrderStatus, next *time.Time, at time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: update order %s: %w", id, domain.ErrNotFound)
	}
	setSchedule(&o, status, next)
	o.UpdatedAt = at
	s.orders[id] = o
	return o.Clone(), nil
}

// AppendExecution appends exec and copies the remaining amount and schedule
// from o. Sequence numbers must be unique per order.
func (s *OrderStore) AppendExecution(_ context.Context, o domain.Order, exec domain.Execution) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[o.ID]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: append execution %s: %w", o.ID, domain.ErrNotFound)
	}
	for _, e := range stored.Executions {
		if e.Seq == exec.Seq {
			return domain.Order{}, fmt.Errorf("memory: append execution %s#%d: %w", o.ID, exec.Seq, domain.ErrAlreadyExists)
		}
	}

	stored = stored.Clone()
	stored.Executions = append(stored.Executions, exec)
	stored.RemainingAmount = o.RemainingAmount
	stored.UpdatedAt = o.UpdatedAt
	if o.LastExecutionAt != nil {
		t := *o.LastExecutionAt
		stored.LastExecutionAt = &t
	}
	setSchedule(&stored, o.Status, o.NextExecutionAt)
	s.orders[o.ID] = stored
	return stored.Clone(), nil
}

// ListDue returns non-terminal orders due at or before now, earliest first.
func (s *OrderStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Order, error) {
	out := s.collect(func(o domain.Order) bool {
		return !o.Status.IsTerminal() && o.NextExecutionAt != nil && !o.NextExecutionAt.After(now)
	})
	slices.SortFunc(out, func(a, b domain.Order) int {
		return a.NextExecutionAt.Compare(*b.NextExecutionAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// List returns orders matching filter, newest first.
func (s *OrderStore) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	out := s.collect(func(o domain.Order) bool {
		if filter.AccountID != "" && o.AccountID != filter.AccountID {
			return false
		}
		if filter.Status != "" && o.Status != filter.Status {
			return false
		}
		if filter.Since != nil && o.CreatedAt.Before(*filter.Since) {
			return false
		}
		if filter.Until != nil && o.CreatedAt.After(*filter.Until) {
			return false
		}
		return true
	})
	slices.SortFunc(out, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// ListTerminalBefore returns completed and cancelled orders last updated
// before the cutoff.
func (s *OrderStore) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.Order, error) {
	out := s.collect(func(o domain.Order) bool {
		return o.Status.IsTerminal() && o.UpdatedAt.Before(before)
	})
	slices.SortFunc(out, func(a, b domain.Order) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	return out, nil
}

// Delete removes the given orders.
func (s *OrderStore) Delete(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := s.orders[id]; ok {
			delete(s.orders, id)
			n++
		}
	}
	return n, nil
}

func (s *OrderStore) collect(keep func(domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}

// setSchedule applies status and next unless o is already terminal.
func setSchedule(o *domain.Order, status domain.OrderStatus, next *time.Time) {
	if o.Status.IsTerminal() {
		o.NextExecutionAt = nil
		return
	}
	o.Status = status
	if next == nil || status.IsTerminal() {
		o.NextExecutionAt = nil
		return
	}
	t := *next
	o.NextExecutionAt = &t
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
