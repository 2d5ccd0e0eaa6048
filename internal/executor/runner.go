package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// OrderSource is the part of the order store the runner reads.
type OrderSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
	GetByID(ctx context.Context, id string) (domain.Order, error)
}

// Ticker performs one interval of work for an order. It is implemented by
// service.Scheduler.
type Ticker interface {
	Tick(ctx context.Context, order domain.Order) (domain.Order, error)
}

// RunnerConfig controls polling and concurrency.
type RunnerConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxConcurrent int64
	LockTTL       time.Duration
	TickTimeout   time.Duration
}

// Runner polls the order store for due orders and ticks each of them. Ticks
// of one order never overlap: a process-local guard covers this process and
// the optional lock manager covers other replicas.
type Runner struct {
	orders   OrderSource
	ticker   Ticker
	locks    domain.LockManager
	inflight *InFlight
	sem      *semaphore.Weighted
	cfg      RunnerConfig
	now      func() time.Time
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewRunner creates a Runner. locks may be nil for a single-process
// deployment.
func NewRunner(orders OrderSource, ticker Ticker, locks domain.LockManager, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = time.Minute
	}
	return &Runner{
		orders:   orders,
		ticker:   ticker,
		locks:    locks,
		inflight: NewInFlight(),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "runner")),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight ticks before
// returning ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner: started",
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Int64("max_concurrent", r.cfg.MaxConcurrent),
	)
	defer r.logger.Info("runner: stopped")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// Poll dispatches every order due now and returns once all of them have
// been handed to a worker. It does not wait for the ticks themselves; use
// Wait for that.
func (r *Runner) Poll(ctx context.Context) {
	due, err := r.orders.ListDue(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("runner: list due orders failed", slog.String("error", err.Error()))
		}
		return
	}

	for _, o := range due {
		if !r.inflight.TryAcquire(o.ID) {
			r.logger.Debug("runner: tick already in flight", slog.String("order_id", o.ID))
			continue
		}
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.inflight.Release(o.ID)
			return
		}
		r.wg.Add(1)
		go func(id string) {
			defer r.wg.Done()
			defer r.sem.Release(1)
			defer r.inflight.Release(id)
			r.tickOne(ctx, id)
		}(o.ID)
	}
}

// Wait blocks until every dispatched tick has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// InFlight reports the number of ticks currently running.
func (r *Runner) InFlight() int {
	return r.inflight.Len()
}

func (r *Runner) tickOne(parent context.Context, id string) {
	log := r.logger.With(slog.String("order_id", id))

	// A tick that has started runs to completion even if the runner is
	// shutting down.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.cfg.TickTimeout)
	defer cancel()

	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, "twap:order:"+id, r.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				log.Debug("runner: order locked by another replica")
			} else {
				log.Warn("runner: acquire order lock failed", slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	order, err := r.orders.GetByID(ctx, id)
	if err != nil {
		log.Warn("runner: reload order failed", slog.String("error", err.Error()))
		return
	}
	if order.Status.IsTerminal() {
		return
	}
	if order.NextExecutionAt != nil && order.NextExecutionAt.After(r.now()) {
		return
	}

	start := time.Now()
	updated, err := r.ticker.Tick(ctx, order)
	if err != nil {
		log.Error("runner: tick failed", slog.String("error", err.Error()))
		return
	}
	log.Debug("runner: tick done",
		slog.String("status", string(updated.Status)),
		slog.String("remaining", updated.RemainingAmount.String()),
		slog.Duration("took", time.Since(start)),
	)
}

func (r *Runner) drain() {
	if n := r.inflight.Len(); n > 0 {
		r.logger.Info("runner: waiting for in-flight ticks",
			slog.Int("count", n),
			slog.Duration("oldest", r.inflight.Oldest()),
		)
	}
	r.wg.Wait()
}
