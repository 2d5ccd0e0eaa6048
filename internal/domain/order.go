package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultInterval is applied when an order request carries no usable interval.
const DefaultInterval = 60 * time.Minute

// OrderStatus represents the lifecycle state of a TWAP order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further ticks may mutate an order in this state.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusActive, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// ExitThresholds are carried on orders and positions as data only.
type ExitThresholds struct {
	StopLossPrice   *decimal.Decimal `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *decimal.Decimal `json:"take_profit_price,omitempty"`
	Reasoning       string           `json:"reasoning,omitempty"`
}

// Execution is one immutable slice attempt appended to an order's history.
type Execution struct {
	Seq             int             `json:"seq"`
	Timestamp       time.Time       `json:"timestamp"`
	AmountAttempted decimal.Decimal `json:"amount_attempted"`
	Success         bool            `json:"success"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	FilledAmount    decimal.Decimal `json:"filled_amount"`
	Error           string          `json:"error,omitempty"`
}

// Order is a time-sliced trade: TotalAmount of SourceAsset spent on
// TargetToken in slices every Interval until EndTime.
type Order struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	PositionID      string          `json:"position_id,omitempty"`
	SourceWallet    string          `json:"source_wallet"`
	Chain           string          `json:"chain"`
	SourceAsset     string          `json:"source_asset"`
	TargetToken     string          `json:"target_token"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	EndTime         time.Time       `json:"end_time"`
	Interval        time.Duration   `json:"interval"`
	ExitThresholds  *ExitThresholds `json:"exit_thresholds,omitempty"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastExecutionAt *time.Time      `json:"last_execution_at,omitempty"`
	NextExecutionAt *time.Time      `json:"next_execution_at,omitempty"`
	Executions      []Execution     `json:"executions"`
}

// TracksPosition reports whether fills should be applied to a linked position.
func (o Order) TracksPosition() bool {
	return o.PositionID != ""
}

// SpentAmount is the portion of TotalAmount already consumed.
func (o Order) SpentAmount() decimal.Decimal {
	return o.TotalAmount.Sub(o.RemainingAmount)
}

// Clone returns a copy whose execution slice can be appended to without
// aliasing the original.
func (o Order) Clone() Order {
	out := o
	out.Executions = make([]Execution, len(o.Executions))
	copy(out.Executions, o.Executions)
	if o.LastExecutionAt != nil {
		t := *o.LastExecutionAt
		out.LastExecutionAt = &t
	}
	if o.NextExecutionAt != nil {
		t := *o.NextExecutionAt
		out.NextExecutionAt = &t
	}
	return out
}

// CreateOrderRequest is the already-parsed request to schedule a new order.
// Chain is matched case-insensitively and stored lowercased. Interval is a
// Go duration ("90m") or a bare number of minutes ("90"); an empty,
// malformed or non-positive interval falls back to the scheduler default.
type CreateOrderRequest struct {
	AccountID      string          `json:"account_id" validate:"required"`
	SourceWallet   string          `json:"source_wallet" validate:"required"`
	Chain          string          `json:"chain" validate:"required"`
	TargetToken    string          `json:"target_token" validate:"required"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	EndTime        time.Time       `json:"end_time" validate:"required"`
	Interval       string          `json:"interval,omitempty"`
	ExitThresholds *ExitThresholds `json:"exit_thresholds,omitempty"`
	TrackPosition  bool            `json:"track_position"`
}

// OrderFilter narrows ListOrders queries.
type OrderFilter struct {
	AccountID string
	Status    OrderStatus
	ListOpts
}
