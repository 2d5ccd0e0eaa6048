package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

func newOrder(id string, created time.Time) domain.Order {
	next := created
	return domain.Order{
		ID:              id,
		AccountID:       "acct",
		TotalAmount:     decimal.NewFromInt(4),
		RemainingAmount: decimal.NewFromInt(4),
		EndTime:         created.Add(4 * time.Hour),
		Interval:        time.Hour,
		Status:          domain.OrderStatusPending,
		CreatedAt:       created,
		UpdatedAt:       created,
		NextExecutionAt: &next,
	}
}

func TestOrderStoreTerminalStatusIsSticky(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	s := NewOrderStore()
	require.NoError(t, s.Create(ctx, newOrder("o1", now)))
	require.ErrorIs(t, s.Create(ctx, newOrder("o1", now)), domain.ErrAlreadyExists)

	cancelled, err := s.UpdateSchedule(ctx, "o1", domain.OrderStatusCancelled, nil, now)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	later := now.Add(time.Hour)
	again, err := s.UpdateSchedule(ctx, "o1", domain.OrderStatusActive, &later, later)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, again.Status)
	require.Nil(t, again.NextExecutionAt)

	_, err = s.UpdateSchedule(ctx, "missing", domain.OrderStatusActive, nil, now)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderStoreAppendExecution(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	s := NewOrderStore()
	o := newOrder("o1", now)
	require.NoError(t, s.Create(ctx, o))

	o.RemainingAmount = decimal.NewFromInt(3)
	o.Status = domain.OrderStatusActive
	exec := domain.Execution{Seq: 1, Timestamp: now, AmountAttempted: decimal.NewFromInt(1), Success: true}
	stored, err := s.AppendExecution(ctx, o, exec)
	require.NoError(t, err)
	require.Len(t, stored.Executions, 1)
	require.True(t, decimal.NewFromInt(3).Equal(stored.RemainingAmount))

	_, err = s.AppendExecution(ctx, o, exec)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	stored.Executions[0].Error = "mutated"
	fresh, err := s.GetByID(ctx, "o1")
	require.NoError(t, err)
	require.Empty(t, fresh.Executions[0].Error, "callers get copies")
}

func TestOrderStoreListing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s := NewOrderStore()
	for i, id := range []string{"a", "b", "c"} {
		o := newOrder(id, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Create(ctx, o))
	}
	_, err := s.UpdateSchedule(ctx, "c", domain.OrderStatusCompleted, nil, now)
	require.NoError(t, err)

	due, err := s.ListDue(ctx, now.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "a", due[0].ID)

	due, err = s.ListDue(ctx, now.Add(30*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	all, err := s.List(ctx, domain.OrderFilter{AccountID: "acct"})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, orderIDs(all))

	page, err := s.List(ctx, domain.OrderFilter{ListOpts: domain.ListOpts{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, orderIDs(page))

	done, err := s.List(ctx, domain.OrderFilter{Status: domain.OrderStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, orderIDs(done))

	n, err := s.Delete(ctx, []string{"c", "nope"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func orderIDs(orders []domain.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

func TestAccountStoreVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	require.NoError(t, s.Create(ctx, domain.Account{ID: "a", Version: 1}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)

	updated, err := s.Update(ctx, got, got.Version)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	_, err = s.Update(ctx, got, got.Version)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "orders", []byte("hello")))
	require.NoError(t, b.Publish(context.Background(), "other", []byte("ignored")))
	require.Equal(t, []byte("hello"), <-ch)

	cancel()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestBusStreamTrimsAndReadsAfterID(t *testing.T) {
	ctx := context.Background()
	b := NewBus(3)
	for _, p := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, b.StreamAppend(ctx, "events", []byte(p)))
	}

	all, err := b.StreamRead(ctx, "events", "0", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "3", all[0].ID)

	tail, err := b.StreamRead(ctx, "events", "4", 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, []byte("5"), tail[0].Payload)

	_, err = b.StreamRead(ctx, "events", "1-0", 10)
	require.ErrorIs(t, err, domain.ErrValidation)
}
