package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// AuditStore keeps the audit log in memory.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	now     func() time.Time
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{now: func() time.Time { return time.Now().UTC() }}
}

// Log appends an entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    maps.Clone(detail),
		CreatedAt: s.now(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	out := make([]domain.AuditEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	s.mu.Unlock()

	slices.Reverse(out)
	return paginate(out, opts.Limit, opts.Offset), nil
}

// Events returns the logged event names in order. Tests use it to assert on
// side effects.
func (s *AuditStore) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Event
	}
	return names
}
