package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore is the durable schedule. Neither UpdateSchedule nor
// AppendExecution moves an order out of a terminal status; the stored
// status wins in that case. Both return the order as stored.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	// UpdateSchedule sets status, next execution time and updated_at only.
	UpdateSchedule(ctx context.Context, id string, status OrderStatus, next *time.Time, at time.Time) (Order, error)
	// AppendExecution adds exec to the history and writes the remaining
	// amount and schedule fields of order in one step.
	AppendExecution(ctx context.Context, order Order, exec Execution) (Order, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Order, error)
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Order, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

// AccountStore persists whole account records with optimistic versioning.
// Update succeeds only when the stored version equals expectedVersion and
// returns the record with its new version.
type AccountStore interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id string) (Account, error)
	Update(ctx context.Context, account Account, expectedVersion int64) (Account, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
