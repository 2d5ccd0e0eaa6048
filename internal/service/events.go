package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// Notifier delivers operator alerts for a named event.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Clock returns the current time. Services default to time.Now in UTC.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// sideEffects bundles the best-effort outputs every service emits after a
// state change. Each field may be nil; failures are logged and never returned.
type sideEffects struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger
}

func (fx sideEffects) publish(ctx context.Context, channel string, v any) {
	if fx.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		fx.logger.WarnContext(ctx, "marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := fx.bus.Publish(ctx, channel, payload); err != nil {
		fx.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (fx sideEffects) journal(ctx context.Context, stream string, v any) {
	if fx.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := fx.bus.StreamAppend(ctx, stream, payload); err != nil {
		fx.logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
	}
}

func (fx sideEffects) auditLog(ctx context.Context, event string, detail map[string]any) {
	if fx.audit == nil {
		return
	}
	if err := fx.audit.Log(ctx, event, detail); err != nil {
		fx.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (fx sideEffects) notify(ctx context.Context, event, title, message string) {
	if fx.notifier == nil {
		return
	}
	if err := fx.notifier.Notify(ctx, event, title, message); err != nil {
		fx.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func orderEvent(event string, o domain.Order, exec *domain.Execution, at time.Time) domain.OrderEvent {
	return domain.OrderEvent{
		Event:      event,
		OrderID:    o.ID,
		AccountID:  o.AccountID,
		PositionID: o.PositionID,
		Status:     o.Status,
		Remaining:  o.RemainingAmount.String(),
		Execution:  exec,
		At:         at,
	}
}
