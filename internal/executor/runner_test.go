package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/store/memory"
	"github.com/alanyoungcy/twapbot/mocks"
)

// blockingTicker counts ticks per order and holds each one until release is
// closed.
type blockingTicker struct {
	mu      sync.Mutex
	calls   map[string]int
	running atomic.Int32
	peak    atomic.Int32
	started chan string
	release chan struct{}
}

func newBlockingTicker() *blockingTicker {
	return &blockingTicker{
		calls:   make(map[string]int),
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingTicker) Tick(_ context.Context, o domain.Order) (domain.Order, error) {
	n := b.running.Add(1)
	defer b.running.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}

	b.mu.Lock()
	b.calls[o.ID]++
	b.mu.Unlock()

	b.started <- o.ID
	<-b.release
	return o, nil
}

func (b *blockingTicker) count(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[id]
}

type RunnerTestSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	now    time.Time
	orders *memory.OrderStore
	logger *slog.Logger
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}

func (s *RunnerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.now = time.Now().UTC()
	s.orders = memory.NewOrderStore()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *RunnerTestSuite) addOrder(id string, status domain.OrderStatus, due time.Time) {
	o := domain.Order{
		ID:              id,
		AccountID:       "acct",
		TotalAmount:     decimal.NewFromInt(1),
		RemainingAmount: decimal.NewFromInt(1),
		EndTime:         s.now.Add(time.Hour),
		Interval:        time.Minute,
		Status:          status,
		CreatedAt:       s.now,
		UpdatedAt:       s.now,
	}
	if !status.IsTerminal() {
		o.NextExecutionAt = &due
	}
	s.Require().NoError(s.orders.Create(context.Background(), o))
}

func (s *RunnerTestSuite) newRunner(ticker Ticker, locks domain.LockManager, maxConcurrent int64) *Runner {
	return NewRunner(s.orders, ticker, locks, RunnerConfig{
		PollInterval:  time.Hour,
		MaxConcurrent: maxConcurrent,
		TickTimeout:   5 * time.Second,
	}, s.logger)
}

func (s *RunnerTestSuite) TestPollTicksOnlyDueOrders() {
	s.addOrder("due", domain.OrderStatusPending, s.now.Add(-time.Minute))
	s.addOrder("later", domain.OrderStatusActive, s.now.Add(time.Hour))
	s.addOrder("done", domain.OrderStatusCompleted, s.now)

	ticker := newBlockingTicker()
	close(ticker.release)
	r := s.newRunner(ticker, nil, 4)

	r.Poll(context.Background())
	r.Wait()

	s.Equal(1, ticker.count("due"))
	s.Equal(0, ticker.count("later"))
	s.Equal(0, ticker.count("done"))
	s.Equal(0, r.InFlight())
}

func (s *RunnerTestSuite) TestSlowTickIsNotOverlapped() {
	s.addOrder("slow", domain.OrderStatusActive, s.now.Add(-time.Minute))

	ticker := newBlockingTicker()
	r := s.newRunner(ticker, nil, 4)
	ctx := context.Background()

	r.Poll(ctx)
	s.Equal("slow", <-ticker.started)
	s.Equal(1, r.InFlight())

	// The order is still due; a second poll must skip it.
	r.Poll(ctx)
	close(ticker.release)
	r.Wait()

	s.Equal(1, ticker.count("slow"))
	s.Equal(int32(1), ticker.peak.Load())
}

func (s *RunnerTestSuite) TestConcurrencyIsBounded() {
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.addOrder(id, domain.OrderStatusActive, s.now.Add(-time.Minute))
	}

	ticker := newBlockingTicker()
	r := s.newRunner(ticker, nil, 2)

	done := make(chan struct{})
	go func() {
		r.Poll(context.Background())
		close(done)
	}()

	<-ticker.started
	<-ticker.started
	s.Equal(int32(2), ticker.running.Load())

	close(ticker.release)
	<-done
	r.Wait()

	s.LessOrEqual(ticker.peak.Load(), int32(2))
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.Equal(1, ticker.count(id), id)
	}
}

func (s *RunnerTestSuite) TestLockHeldByAnotherReplicaSkipsTick() {
	s.addOrder("locked", domain.OrderStatusActive, s.now.Add(-time.Minute))

	locks := mocks.NewMockLockManager(s.ctrl)
	locks.EXPECT().Acquire(gomock.Any(), "twap:order:locked", 2*time.Minute).Return(nil, domain.ErrLockHeld)

	ticker := newBlockingTicker()
	close(ticker.release)
	r := s.newRunner(ticker, locks, 1)

	r.Poll(context.Background())
	r.Wait()
	s.Equal(0, ticker.count("locked"))
}

func (s *RunnerTestSuite) TestLockIsReleasedAfterTick() {
	s.addOrder("o1", domain.OrderStatusActive, s.now.Add(-time.Minute))

	var unlocked atomic.Bool
	locks := mocks.NewMockLockManager(s.ctrl)
	locks.EXPECT().Acquire(gomock.Any(), "twap:order:o1", gomock.Any()).Return(func() { unlocked.Store(true) }, nil)

	ticker := newBlockingTicker()
	close(ticker.release)
	r := s.newRunner(ticker, locks, 1)

	r.Poll(context.Background())
	r.Wait()
	s.Equal(1, ticker.count("o1"))
	s.True(unlocked.Load())
}

func (s *RunnerTestSuite) TestRunStopsOnCancel() {
	ticker := newBlockingTicker()
	close(ticker.release)
	r := s.newRunner(ticker, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		s.Fail("runner did not stop")
	}
}
