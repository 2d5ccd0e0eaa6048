package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/store/memory"
)

type fakeOrders struct {
	created   domain.CreateOrderRequest
	createErr error
	filter    domain.OrderFilter
	cancelled bool
	cancelErr error
}

func (f *fakeOrders) CreateOrder(_ context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	f.created = req
	if f.createErr != nil {
		return domain.Order{}, f.createErr
	}
	return domain.Order{ID: "order-1", AccountID: req.AccountID, Status: domain.OrderStatusPending}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (domain.Order, error) {
	if id != "order-1" {
		return domain.Order{}, fmt.Errorf("service: get order %s: %w", id, domain.ErrNotFound)
	}
	return domain.Order{ID: id}, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	f.filter = filter
	return nil, nil
}

func (f *fakeOrders) CancelOrder(context.Context, string) (bool, error) {
	return f.cancelled, f.cancelErr
}

type fakePositions struct {
	delta domain.PositionDelta
	info  domain.CloseInfo
	err   error
}

func (f *fakePositions) GetPositionsByAccount(context.Context, string) (map[string]domain.PositionView, error) {
	return nil, f.err
}

func (f *fakePositions) UpdatePosition(_ context.Context, _, positionID string, delta domain.PositionDelta) (domain.Position, error) {
	f.delta = delta
	return domain.Position{ID: positionID}, f.err
}

func (f *fakePositions) ClosePosition(_ context.Context, _, positionID string, info domain.CloseInfo) (domain.Position, error) {
	f.info = info
	return domain.Position{ID: positionID}, f.err
}

type HandlerTestSuite struct {
	suite.Suite
	orders    *fakeOrders
	positions *fakePositions
	mux       *http.ServeMux
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.orders = &fakeOrders{}
	s.positions = &fakePositions{}

	oh := NewOrderHandler(s.orders, logger)
	ph := NewPositionHandler(s.positions, logger)
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /api/orders", oh.CreateOrder)
	s.mux.HandleFunc("GET /api/orders", oh.ListOrders)
	s.mux.HandleFunc("GET /api/orders/{id}", oh.GetOrder)
	s.mux.HandleFunc("DELETE /api/orders/{id}", oh.CancelOrder)
	s.mux.HandleFunc("GET /api/accounts/{id}/positions", ph.ListPositions)
	s.mux.HandleFunc("PATCH /api/accounts/{id}/positions/{pid}", ph.UpdatePosition)
	s.mux.HandleFunc("POST /api/accounts/{id}/positions/{pid}/close", ph.ClosePosition)
}

func (s *HandlerTestSuite) do(method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func (s *HandlerTestSuite) TestCreateOrder() {
	rec, out := s.do(http.MethodPost, "/api/orders", `{
		"account_id": "acct-1",
		"source_wallet": "0xabc",
		"chain": "ethereum",
		"target_token": "0xtoken",
		"total_amount": "2.5",
		"end_time": "2026-10-17T00:00:00Z",
		"track_position": true
	}`)
	s.Equal(http.StatusCreated, rec.Code)
	s.Equal("order-1", out["id"])
	s.True(decimal.RequireFromString("2.5").Equal(s.orders.created.TotalAmount))
	s.True(s.orders.created.TrackPosition)
}

func (s *HandlerTestSuite) TestCreateOrderRejectsUnknownFields() {
	rec, _ := s.do(http.MethodPost, "/api/orders", `{"account_id":"a","slices":4}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestServiceErrorsMapToStatus() {
	testCases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("service: %w", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{errors.New("db exploded"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		s.orders.createErr = tc.err
		rec, out := s.do(http.MethodPost, "/api/orders", `{"account_id":"a"}`)
		s.Equal(tc.code, rec.Code, tc.err.Error())
		if tc.code == http.StatusInternalServerError {
			s.Equal("create order failed", out["error"], "server errors are not leaked")
		}
	}
}

func (s *HandlerTestSuite) TestListOrders() {
	rec, out := s.do(http.MethodGet, "/api/orders?account_id=acct-1&status=active&limit=900&offset=-3", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal([]any{}, out["orders"])
	s.Equal("acct-1", s.orders.filter.AccountID)
	s.Equal(domain.OrderStatusActive, s.orders.filter.Status)
	s.Equal(500, s.orders.filter.Limit)
	s.Equal(0, s.orders.filter.Offset)

	rec, _ = s.do(http.MethodGet, "/api/orders?status=sleeping", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestGetOrder() {
	rec, _ := s.do(http.MethodGet, "/api/orders/order-1", "")
	s.Equal(http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/orders/nope", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerTestSuite) TestCancelOrder() {
	rec, _ := s.do(http.MethodDelete, "/api/orders/order-1", "")
	s.Equal(http.StatusNotFound, rec.Code)

	s.orders.cancelled = true
	rec, out := s.do(http.MethodDelete, "/api/orders/order-1", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(true, out["cancelled"])
}

func (s *HandlerTestSuite) TestListPositionsEmpty() {
	rec, out := s.do(http.MethodGet, "/api/accounts/acct-1/positions", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(map[string]any{}, out["positions"])
}

func (s *HandlerTestSuite) TestUpdatePositionSetsOnlyPresentFields() {
	rec, _ := s.do(http.MethodPatch, "/api/accounts/acct-1/positions/p1", `{"acquired_amount":"7","attributes":{"note":"x"}}`)
	s.Equal(http.StatusOK, rec.Code)
	s.True(s.positions.delta.AcquiredAmount.IsSome())
	s.True(decimal.NewFromInt(7).Equal(s.positions.delta.AcquiredAmount.Unwrap()))
	s.True(s.positions.delta.Token.IsNone())
	s.True(s.positions.delta.SourceAmountSpent.IsNone())
	s.Equal("x", s.positions.delta.Attributes["note"])

	rec, _ = s.do(http.MethodPatch, "/api/accounts/acct-1/positions/p1", `{}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestClosePosition() {
	rec, _ := s.do(http.MethodPost, "/api/accounts/acct-1/positions/p1/close", `{"reason":"  take_profit ","exit_price":"1.2"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("take_profit", s.positions.info.Reason)
	s.Require().NotNil(s.positions.info.ExitPrice)

	s.positions.err = domain.ErrPositionClosed
	rec, _ = s.do(http.MethodPost, "/api/accounts/acct-1/positions/p1/close", `{}`)
	s.Equal(http.StatusConflict, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, func() int { return 3 }, logger)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
		InFlight     int               `json:"ticks_in_flight"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" || body.Dependencies["postgres"] != "ok" || body.InFlight != 3 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestListExecutionsPagesThroughJournal(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus(0)
	for _, p := range []string{`{"order_id":"a"}`, `not json`, `{"order_id":"b"}`, `{"order_id":"c"}`} {
		if err := bus.StreamAppend(ctx, domain.StreamExecutions, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}
	h := NewEventHandler(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var page struct {
		Events []struct {
			ID    string          `json:"id"`
			Event json.RawMessage `json:"event"`
		} `json:"events"`
		Next string `json:"next"`
	}
	rec := httptest.NewRecorder()
	h.ListExecutions(rec, httptest.NewRequest(http.MethodGet, "/api/executions?limit=3", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Events) != 2 || page.Next != "3" {
		t.Fatalf("first page = %+v", page)
	}

	rec = httptest.NewRecorder()
	h.ListExecutions(rec, httptest.NewRequest(http.MethodGet, "/api/executions?after="+page.Next, nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Events) != 1 || page.Next != "4" || string(page.Events[0].Event) != `{"order_id":"c"}` {
		t.Fatalf("second page = %+v", page)
	}

	rec = httptest.NewRecorder()
	h.ListExecutions(rec, httptest.NewRequest(http.MethodGet, "/api/executions?after=x-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad cursor status = %d", rec.Code)
	}
}
