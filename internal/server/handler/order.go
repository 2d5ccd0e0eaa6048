package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	CancelOrder(ctx context.Context, id string) (bool, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// CreateOrder schedules a new TWAP order.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "create order failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ListOrders returns orders, optionally narrowed by account and status.
// GET /api/orders?account_id=...&status=active&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		AccountID: q.Get("account_id"),
		Status:    domain.OrderStatus(q.Get("status")),
		ListOpts:  parseListOpts(r),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(filter.Status))
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, "list orders failed", err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// GetOrder returns one order with its execution history.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get order failed", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder stops an order from executing further slices. An unknown or
// already terminal order is reported as 404.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cancelled, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel order failed", err)
		return
	}
	if !cancelled {
		writeError(w, http.StatusNotFound, "order not found or already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":  id,
		"cancelled": true,
	})
}
