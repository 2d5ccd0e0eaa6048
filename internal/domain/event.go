package domain

import "time"

// Event names published on the signal bus and used for notification filtering.
const (
	EventOrderCreated       = "order_created"
	EventOrderCompleted     = "order_completed"
	EventOrderCancelled     = "order_cancelled"
	EventExecutionSucceeded = "execution_succeeded"
	EventExecutionFailed    = "execution_failed"
	EventPositionUpdated    = "position_updated"
	EventPositionClosed     = "position_closed"
)

// Bus channels and streams.
const (
	ChannelOrders    = "twap:orders"
	ChannelPositions = "twap:positions"
	StreamExecutions = "twap:executions"
)

// OrderEvent is the JSON envelope published for order lifecycle changes.
type OrderEvent struct {
	Event      string      `json:"event"`
	OrderID    string      `json:"order_id"`
	AccountID  string      `json:"account_id"`
	PositionID string      `json:"position_id,omitempty"`
	Status     OrderStatus `json:"status"`
	Remaining  string      `json:"remaining"`
	Execution  *Execution  `json:"execution,omitempty"`
	At         time.Time   `json:"at"`
}
