package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// multipartThreshold is the archive size above which uploads go through the
// multipart manager.
const multipartThreshold = 8 << 20

// OrderSource is the slice of the order store the archiver needs.
type OrderSource interface {
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

// ObjectChecker confirms an upload landed before rows are deleted.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver implements domain.Archiver. Terminal orders are written as JSONL
// with their full execution history and removed from the store only after
// the object is confirmed.
type Archiver struct {
	writer  domain.BlobWriter
	checker ObjectChecker
	orders  OrderSource
	audit   domain.AuditStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewArchiver creates an Archiver. checker and audit may be nil.
func NewArchiver(writer domain.BlobWriter, checker ObjectChecker, orders OrderSource, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		checker: checker,
		orders:  orders,
		audit:   audit,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOrders uploads every order that reached a terminal status before
// the cutoff and deletes the uploaded rows. It returns the number deleted.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(orders)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders marshal: %w", err)
	}

	path := archivePath("orders", a.now())
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	if a.checker != nil {
		ok, err := a.checker.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive orders verify: %w", err)
		}
		if !ok {
			return 0, fmt.Errorf("s3blob: archive orders verify: %s missing after upload", path)
		}
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	deleted, err := a.orders.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders delete: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive_orders", map[string]any{
			"path":    path,
			"count":   len(orders),
			"deleted": deleted,
			"before":  before.Format(time.RFC3339),
			"bytes":   len(buf),
		}); err != nil {
			a.logger.WarnContext(ctx, "archiver: audit log failed", slog.String("error", err.Error()))
		}
	}
	a.logger.InfoContext(ctx, "archiver: orders archived",
		slog.String("path", path),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}

// archivePath partitions archives by day; the time of day keeps repeated
// runs from overwriting each other.
//
//	archive/orders/2026-10-16/150405.jsonl
func archivePath(kind string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, at.Format("2006-01-02"), at.Format("150405"))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
