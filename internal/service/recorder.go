package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// ExecutionRecorder appends slice attempts to an order's history, maintains
// the remaining-amount counter and forwards fills to the position ledger.
type ExecutionRecorder struct {
	orders domain.OrderStore
	ledger *PositionLedger
	fx     sideEffects
	logger *slog.Logger
}

// NewExecutionRecorder creates an ExecutionRecorder. bus, audit and notifier
// may be nil.
func NewExecutionRecorder(
	orders domain.OrderStore,
	ledger *PositionLedger,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *ExecutionRecorder {
	logger = logger.With(slog.String("component", "recorder"))
	return &ExecutionRecorder{
		orders: orders,
		ledger: ledger,
		fx:     sideEffects{bus: bus, audit: audit, notifier: notifier, logger: logger},
		logger: logger,
	}
}

// Apply returns order with exec appended. A successful attempt reduces the
// remaining amount by the attempted slice, floored at zero; a failed one
// leaves it untouched. The next schedule slot is derived from the result.
func (r *ExecutionRecorder) Apply(order domain.Order, exec domain.Execution) domain.Order {
	out := order.Clone()
	out.Executions = append(out.Executions, exec)
	if exec.Success {
		rem := out.RemainingAmount.Sub(exec.AmountAttempted)
		if rem.IsNegative() {
			rem = decimal.Zero
		}
		out.RemainingAmount = rem
	}
	at := exec.Timestamp
	out.LastExecutionAt = &at
	out.UpdatedAt = at
	advanceSchedule(&out, at)
	return out
}

// Record applies exec to order and persists it. The order row and execution
// row are written together; the position fill and every notification after
// that are best effort.
func (r *ExecutionRecorder) Record(ctx context.Context, order domain.Order, exec domain.Execution) (domain.Order, error) {
	updated := r.Apply(order, exec)

	// The journal entry must precede the order write.
	r.fx.journal(ctx, domain.StreamExecutions, orderEvent(executionEvent(exec), updated, &exec, exec.Timestamp))

	persisted, err := r.orders.AppendExecution(ctx, updated, exec)
	if err != nil {
		r.logger.ErrorContext(ctx, "recorder: persist execution failed",
			slog.String("order_id", order.ID),
			slog.Int("seq", exec.Seq),
			slog.Bool("success", exec.Success),
			slog.String("error", err.Error()),
		)
		return order, fmt.Errorf("recorder: persist execution %s#%d: %w: %w", order.ID, exec.Seq, domain.ErrStoreWrite, err)
	}

	if exec.Success && order.TracksPosition() && r.ledger != nil {
		if _, err := r.ledger.ApplyFill(ctx, order.AccountID, order.PositionID, exec.AmountAttempted, exec.FilledAmount); err != nil {
			r.logger.ErrorContext(ctx, "recorder: apply fill to position failed",
				slog.String("order_id", order.ID),
				slog.String("position_id", order.PositionID),
				slog.String("error", err.Error()),
			)
			r.fx.auditLog(ctx, "position_fill_failed", map[string]any{
				"order_id":    order.ID,
				"position_id": order.PositionID,
				"seq":         exec.Seq,
				"spent":       exec.AmountAttempted.String(),
				"acquired":    exec.FilledAmount.String(),
				"error":       err.Error(),
			})
		}
	}

	event := executionEvent(exec)
	r.fx.publish(ctx, domain.ChannelOrders, orderEvent(event, persisted, &exec, exec.Timestamp))
	r.fx.auditLog(ctx, event, map[string]any{
		"order_id":  order.ID,
		"seq":       exec.Seq,
		"attempted": exec.AmountAttempted.String(),
		"filled":    exec.FilledAmount.String(),
		"tx_id":     exec.TransactionID,
		"error":     exec.Error,
		"remaining": persisted.RemainingAmount.String(),
	})

	if exec.Success {
		r.logger.InfoContext(ctx, "recorder: slice executed",
			slog.String("order_id", order.ID),
			slog.Int("seq", exec.Seq),
			slog.String("amount", exec.AmountAttempted.String()),
			slog.String("tx_id", exec.TransactionID),
			slog.String("remaining", persisted.RemainingAmount.String()),
		)
		r.fx.notify(ctx, event, "TWAP slice executed",
			fmt.Sprintf("order %s slice #%d: %s %s -> %s %s (tx %s), remaining %s",
				order.ID, exec.Seq, exec.AmountAttempted, order.SourceAsset,
				exec.FilledAmount, order.TargetToken, exec.TransactionID, persisted.RemainingAmount))
	} else {
		r.logger.WarnContext(ctx, "recorder: slice failed",
			slog.String("order_id", order.ID),
			slog.Int("seq", exec.Seq),
			slog.String("amount", exec.AmountAttempted.String()),
			slog.String("error", exec.Error),
		)
		r.fx.notify(ctx, event, "TWAP slice failed",
			fmt.Sprintf("order %s slice #%d of %s %s failed: %s",
				order.ID, exec.Seq, exec.AmountAttempted, order.SourceAsset, exec.Error))
	}

	return persisted, nil
}

func executionEvent(exec domain.Execution) string {
	if exec.Success {
		return domain.EventExecutionSucceeded
	}
	return domain.EventExecutionFailed
}
