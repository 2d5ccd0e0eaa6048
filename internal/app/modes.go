package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/executor"
	"github.com/alanyoungcy/twapbot/internal/server"
	"github.com/alanyoungcy/twapbot/internal/server/handler"
	"github.com/alanyoungcy/twapbot/internal/server/ws"
	"github.com/alanyoungcy/twapbot/internal/service"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// services are the domain services shared by every mode.
type services struct {
	ledger    *service.PositionLedger
	scheduler *service.Scheduler
	accounts  *service.AccountService
}

// SchedulerMode polls for due orders and executes their slices. No API is
// served.
func (a *App) SchedulerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting scheduler mode")

	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	runner := a.buildRunner(deps, svc)
	g.Go(func() error {
		return runner.Run(ctx)
	})
	return g.Wait()
}

// ServerMode serves the HTTP API and WebSocket stream. Orders created here
// are executed by a separate scheduler process sharing the same stores.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svc, nil)
	return g.Wait()
}

// FullMode runs the scheduler, the API and, when configured, the archiver in
// one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")
	return a.runAll(ctx, deps)
}

// PaperMode is full mode over in-memory stores and the simulated gateway.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.WarnContext(ctx, "app: starting paper mode; orders and positions are kept in memory only")
	return a.runAll(ctx, deps)
}

func (a *App) runAll(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)

	runner := a.buildRunner(deps, svc)
	g.Go(func() error {
		return runner.Run(ctx)
	})

	if a.cfg.RunsServer() {
		a.startHTTPServer(ctx, g, deps, svc, runner.InFlight)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps.Archiver)
		})
	}

	return g.Wait()
}

func (a *App) buildServices(deps *Dependencies) *services {
	ledger := service.NewPositionLedger(
		deps.AccountStore, deps.SignalBus, deps.AuditStore,
		service.LedgerConfig{
			MaxRetries:   a.cfg.Ledger.MaxRetries,
			RetryBackoff: a.cfg.Ledger.RetryBackoff.Duration,
		},
		a.logger,
	)
	recorder := service.NewExecutionRecorder(
		deps.OrderStore, ledger, deps.SignalBus, deps.AuditStore, deps.Notifier, a.logger,
	)

	sc := a.cfg.Scheduler
	scheduler := service.NewScheduler(service.SchedulerDeps{
		Orders:   deps.OrderStore,
		Accounts: deps.AccountStore,
		Ledger:   ledger,
		Recorder: recorder,
		Gateway:  deps.Gateway,
		Signers:  deps.Signers,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
		Notifier: deps.Notifier,
	}, service.SchedulerConfig{
		DefaultInterval: sc.DefaultInterval.Duration,
		SwapTimeout:     sc.SwapTimeout.Duration,
		NativeAssets:    sc.NativeAssets,
		SwapRateLimit:   sc.SwapRateLimit,
		SwapRateWindow:  sc.SwapRateWindow.Duration,
	}, a.logger)
	if deps.Tokens != nil {
		scheduler.WithTokenResolver(deps.Tokens)
	}
	if deps.RateLimiter != nil && sc.SwapRateLimit > 0 {
		scheduler.WithRateLimiter(deps.RateLimiter)
	}

	return &services{
		ledger:    ledger,
		scheduler: scheduler,
		accounts:  service.NewAccountService(deps.AccountStore, deps.AuditStore, a.logger),
	}
}

func (a *App) buildRunner(deps *Dependencies, svc *services) *executor.Runner {
	sc := a.cfg.Scheduler
	return executor.NewRunner(deps.OrderStore, svc.scheduler, deps.LockManager, executor.RunnerConfig{
		PollInterval:  sc.PollInterval.Duration,
		BatchSize:     sc.BatchSize,
		MaxConcurrent: int64(sc.MaxConcurrent),
		LockTTL:       sc.LockTTL.Duration,
		TickTimeout:   sc.TickTimeout.Duration,
	}, a.logger)
}

// startHTTPServer adds the HTTP server, its shutdown watcher and the
// WebSocket hub to g. inFlight is reported by the health endpoint when a
// runner shares the process.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *services,
	inFlight func() int,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.HealthChecks, inFlight, a.logger),
		Orders:    handler.NewOrderHandler(svc.scheduler, a.logger),
		Positions: handler.NewPositionHandler(svc.ledger, a.logger),
		Accounts:  handler.NewAccountHandler(svc.accounts, a.logger),
		Events:    handler.NewEventHandler(deps.SignalBus, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runArchiver moves orders that finished more than archive.retention ago to
// object storage once per archive.interval.
func (a *App) runArchiver(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := a.cfg.Archive.Retention.Duration
	a.logger.InfoContext(ctx, "app: archiver started",
		slog.Duration("interval", interval),
		slog.Duration("retention", retention),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().Add(-retention)
			n, err := archiver.ArchiveOrders(ctx, before)
			if err != nil {
				a.logger.ErrorContext(ctx, "app: archive run failed",
					slog.Time("before", before),
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "app: archive run finished",
					slog.Int64("archived", n),
				)
			}
		}
	}
}
