package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// SchedulerConfig holds the scheduling and execution parameters.
type SchedulerConfig struct {
	// DefaultInterval replaces a missing or invalid request interval.
	DefaultInterval time.Duration
	// SwapTimeout bounds the quote and swap calls of one slice together.
	SwapTimeout time.Duration
	// NativeAssets maps a chain name to the asset that funds its orders.
	NativeAssets map[string]string
	// SwapRateLimit and SwapRateWindow cap slices per wallet when a rate
	// limiter is attached.
	SwapRateLimit  int
	SwapRateWindow time.Duration
}

// SchedulerDeps are the collaborators the Scheduler needs. Bus, Audit and
// Notifier are optional.
type SchedulerDeps struct {
	Orders   domain.OrderStore
	Accounts domain.AccountStore
	Ledger   *PositionLedger
	Recorder *ExecutionRecorder
	Gateway  domain.ExchangeGateway
	Signers  domain.SignerResolver
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Notifier Notifier
}

// Scheduler owns the lifecycle of TWAP orders: creation, the per-interval
// tick, completion and cancellation. Tick holds no per-order state; the
// caller must not run two ticks for the same order at once.
type Scheduler struct {
	orders   domain.OrderStore
	accounts domain.AccountStore
	ledger   *PositionLedger
	recorder *ExecutionRecorder
	gateway  domain.ExchangeGateway
	signers  domain.SignerResolver
	tokens   domain.TokenResolver
	limiter  domain.RateLimiter
	validate *validator.Validate
	cfg      SchedulerConfig
	now      Clock
	fx       sideEffects
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(deps SchedulerDeps, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = domain.DefaultInterval
	}
	if cfg.SwapTimeout <= 0 {
		cfg.SwapTimeout = 30 * time.Second
	}
	if cfg.SwapRateLimit <= 0 {
		cfg.SwapRateLimit = 1
	}
	if cfg.SwapRateWindow <= 0 {
		cfg.SwapRateWindow = time.Second
	}
	native := make(map[string]string, len(cfg.NativeAssets))
	for chain, asset := range cfg.NativeAssets {
		native[strings.ToLower(chain)] = asset
	}
	cfg.NativeAssets = native

	logger = logger.With(slog.String("component", "scheduler"))
	return &Scheduler{
		orders:   deps.Orders,
		accounts: deps.Accounts,
		ledger:   deps.Ledger,
		recorder: deps.Recorder,
		gateway:  deps.Gateway,
		signers:  deps.Signers,
		validate: validator.New(),
		cfg:      cfg,
		now:      systemClock,
		fx:       sideEffects{bus: deps.Bus, audit: deps.Audit, notifier: deps.Notifier, logger: logger},
		logger:   logger,
	}
}

// WithClock overrides the time source.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.now = c
	return s
}

// WithTokenResolver makes CreateOrder reject target tokens the exchange
// cannot resolve.
func (s *Scheduler) WithTokenResolver(r domain.TokenResolver) *Scheduler {
	s.tokens = r
	return s
}

// WithRateLimiter caps slice executions per wallet.
func (s *Scheduler) WithRateLimiter(l domain.RateLimiter) *Scheduler {
	s.limiter = l
	return s
}

// CreateOrder validates req and persists a new pending order, first due now.
// When req.TrackPosition is set the linked position is created as part of
// the same operation; if the order cannot be stored the position is removed
// again.
func (s *Scheduler) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	now := s.now()
	req.Chain = strings.ToLower(strings.TrimSpace(req.Chain))
	if err := s.validateRequest(req, now); err != nil {
		return domain.Order{}, err
	}

	sourceAsset, ok := s.cfg.NativeAssets[req.Chain]
	if !ok {
		return domain.Order{}, fmt.Errorf("scheduler: unsupported chain %q: %w", req.Chain, domain.ErrValidation)
	}

	target := req.TargetToken
	if s.tokens != nil {
		resolved, err := s.tokens.ResolveToken(ctx, req.Chain, req.TargetToken)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
				return domain.Order{}, fmt.Errorf("scheduler: unresolvable target asset %q: %w", req.TargetToken, domain.ErrValidation)
			}
			return domain.Order{}, fmt.Errorf("scheduler: resolve target asset %q: %w", req.TargetToken, err)
		}
		target = resolved
	}

	acct, err := s.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("scheduler: get account %s: %w", req.AccountID, err)
	}
	if _, ok := acct.FindWallet(req.Chain, req.SourceWallet); !ok {
		return domain.Order{}, fmt.Errorf("scheduler: wallet %s on %s: %w", req.SourceWallet, req.Chain, domain.ErrNotFound)
	}

	next := now
	order := domain.Order{
		ID:              uuid.New().String(),
		AccountID:       req.AccountID,
		SourceWallet:    req.SourceWallet,
		Chain:           req.Chain,
		SourceAsset:     sourceAsset,
		TargetToken:     target,
		TotalAmount:     req.TotalAmount,
		RemainingAmount: req.TotalAmount,
		EndTime:         req.EndTime.UTC(),
		Interval:        normalizeInterval(req.Interval, s.cfg.DefaultInterval),
		ExitThresholds:  req.ExitThresholds,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		NextExecutionAt: &next,
		Executions:      []domain.Execution{},
	}

	if req.TrackPosition {
		pos := domain.Position{
			Chain:             req.Chain,
			Token:             target,
			WalletPublicKey:   req.SourceWallet,
			OrderID:           order.ID,
			SourceAmountSpent: decimal.Zero,
			AcquiredAmount:    decimal.Zero,
			OpenedAt:          now,
		}
		if req.ExitThresholds != nil {
			ec := *req.ExitThresholds
			pos.ExitConditions = &ec
		}
		created, err := s.ledger.CreatePosition(ctx, req.AccountID, pos)
		if err != nil {
			return domain.Order{}, fmt.Errorf("scheduler: create position: %w", err)
		}
		order.PositionID = created.ID
	}

	if err := s.orders.Create(ctx, order); err != nil {
		if order.PositionID != "" {
			if rmErr := s.ledger.RemovePosition(ctx, req.AccountID, order.PositionID); rmErr != nil {
				s.logger.ErrorContext(ctx, "scheduler: remove orphaned position failed",
					slog.String("order_id", order.ID),
					slog.String("position_id", order.PositionID),
					slog.String("error", rmErr.Error()),
				)
			}
		}
		return domain.Order{}, fmt.Errorf("scheduler: create order: %w: %w", domain.ErrStoreWrite, err)
	}

	s.fx.publish(ctx, domain.ChannelOrders, orderEvent(domain.EventOrderCreated, order, nil, now))
	s.fx.auditLog(ctx, domain.EventOrderCreated, map[string]any{
		"order_id":    order.ID,
		"account_id":  order.AccountID,
		"position_id": order.PositionID,
		"chain":       order.Chain,
		"target":      order.TargetToken,
		"total":       order.TotalAmount.String(),
		"end_time":    order.EndTime.Format(time.RFC3339),
		"interval":    order.Interval.String(),
	})
	s.fx.notify(ctx, domain.EventOrderCreated, "TWAP order created",
		fmt.Sprintf("order %s: %s %s into %s every %s until %s",
			order.ID, order.TotalAmount, order.SourceAsset, order.TargetToken,
			order.Interval, order.EndTime.Format(time.RFC3339)))

	s.logger.InfoContext(ctx, "scheduler: order created",
		slog.String("order_id", order.ID),
		slog.String("account_id", order.AccountID),
		slog.String("total", order.TotalAmount.String()),
		slog.Duration("interval", order.Interval),
		slog.Bool("tracks_position", order.TracksPosition()),
	)
	return order, nil
}

// Tick performs one interval of work for order. Terminal orders are returned
// unchanged. An order past its end time or with nothing left completes
// without executing. Otherwise one slice is attempted and recorded, and the
// order is rescheduled one interval ahead whatever the outcome.
func (s *Scheduler) Tick(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.Status.IsTerminal() {
		return order, nil
	}

	now := s.now()
	if now.After(order.EndTime) || !order.RemainingAmount.IsPositive() {
		return s.complete(ctx, order, now)
	}

	slice := NextSliceAmount(order.RemainingAmount, RemainingIntervals(now, order.EndTime, order.Interval))
	if slice.IsZero() {
		slice = order.RemainingAmount
	}

	exec := s.execute(ctx, order, slice, now)
	updated, err := s.recorder.Record(ctx, order, exec)
	if err != nil {
		return order, err
	}

	if updated.Status == domain.OrderStatusCompleted {
		s.announceCompletion(ctx, updated, now)
	}
	return updated, nil
}

// CancelOrder stops future ticks for the order. It reports false without
// mutating anything when the order does not exist or is already terminal.
// A linked position is left as it is.
func (s *Scheduler) CancelOrder(ctx context.Context, id string) (bool, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("scheduler: get order %s: %w", id, err)
	}
	if order.Status.IsTerminal() {
		return false, nil
	}

	now := s.now()
	persisted, err := s.orders.UpdateSchedule(ctx, id, domain.OrderStatusCancelled, nil, now)
	if err != nil {
		return false, fmt.Errorf("scheduler: cancel order %s: %w: %w", id, domain.ErrStoreWrite, err)
	}
	if persisted.Status != domain.OrderStatusCancelled {
		// Completed concurrently.
		return false, nil
	}

	s.fx.publish(ctx, domain.ChannelOrders, orderEvent(domain.EventOrderCancelled, persisted, nil, now))
	s.fx.auditLog(ctx, domain.EventOrderCancelled, map[string]any{
		"order_id":  id,
		"remaining": persisted.RemainingAmount.String(),
	})
	s.fx.notify(ctx, domain.EventOrderCancelled, "TWAP order cancelled",
		fmt.Sprintf("order %s cancelled with %s %s unspent", id, persisted.RemainingAmount, persisted.SourceAsset))
	s.logger.InfoContext(ctx, "scheduler: order cancelled", slog.String("order_id", id))
	return true, nil
}

// GetOrder retrieves a single order by its ID.
func (s *Scheduler) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("scheduler: get order %s: %w", id, err)
	}
	return order, nil
}

// ListOrders returns orders matching filter.
func (s *Scheduler) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list orders: %w", err)
	}
	return orders, nil
}

func (s *Scheduler) complete(ctx context.Context, order domain.Order, now time.Time) (domain.Order, error) {
	persisted, err := s.orders.UpdateSchedule(ctx, order.ID, domain.OrderStatusCompleted, nil, now)
	if err != nil {
		return order, fmt.Errorf("scheduler: complete order %s: %w: %w", order.ID, domain.ErrStoreWrite, err)
	}
	if persisted.Status == domain.OrderStatusCompleted {
		s.announceCompletion(ctx, persisted, now)
	}
	return persisted, nil
}

func (s *Scheduler) announceCompletion(ctx context.Context, order domain.Order, now time.Time) {
	s.fx.publish(ctx, domain.ChannelOrders, orderEvent(domain.EventOrderCompleted, order, nil, now))
	s.fx.auditLog(ctx, domain.EventOrderCompleted, map[string]any{
		"order_id":   order.ID,
		"spent":      order.SpentAmount().String(),
		"remaining":  order.RemainingAmount.String(),
		"executions": len(order.Executions),
	})
	s.fx.notify(ctx, domain.EventOrderCompleted, "TWAP order completed",
		fmt.Sprintf("order %s completed: spent %s of %s %s",
			order.ID, order.SpentAmount(), order.TotalAmount, order.SourceAsset))
	s.logger.InfoContext(ctx, "scheduler: order completed",
		slog.String("order_id", order.ID),
		slog.String("remaining", order.RemainingAmount.String()),
	)
}

// execute attempts one slice. Every failure becomes a failed execution
// record rather than an error.
func (s *Scheduler) execute(ctx context.Context, order domain.Order, slice decimal.Decimal, now time.Time) domain.Execution {
	exec := domain.Execution{
		Seq:             len(order.Executions) + 1,
		Timestamp:       now,
		AmountAttempted: slice,
		FilledAmount:    decimal.Zero,
	}

	res, err := s.swap(ctx, order, slice, idempotencyKey(order.ID, exec.Seq))
	if err != nil {
		exec.Error = err.Error()
		return exec
	}
	exec.Success = true
	exec.TransactionID = res.TransactionID
	exec.FilledAmount = res.FilledAmount
	return exec
}

func (s *Scheduler) swap(ctx context.Context, order domain.Order, amount decimal.Decimal, key string) (domain.SwapResult, error) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "swap:"+order.SourceWallet, s.cfg.SwapRateLimit, s.cfg.SwapRateWindow)
		if err != nil {
			s.logger.WarnContext(ctx, "scheduler: rate limiter unavailable",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return domain.SwapResult{}, domain.ErrRateLimited
		}
	}

	signer, err := s.signers.Resolve(ctx, order.AccountID, order.Chain, order.SourceWallet)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("resolve signer: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SwapTimeout)
	defer cancel()

	quote, err := s.gateway.Quote(callCtx, domain.QuoteRequest{
		Chain:       order.Chain,
		SourceAsset: order.SourceAsset,
		TargetAsset: order.TargetToken,
		Amount:      amount,
	})
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("quote: %w", err)
	}

	res, err := s.gateway.Swap(callCtx, quote, signer, key)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("swap: %w", err)
	}
	return res, nil
}

func (s *Scheduler) validateRequest(req domain.CreateOrderRequest, now time.Time) error {
	var problems []string
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}
	if !req.TotalAmount.IsPositive() {
		problems = append(problems, "total_amount must be positive")
	}
	if !req.EndTime.IsZero() && !req.EndTime.After(now) {
		problems = append(problems, "end_time must be in the future")
	}
	if len(problems) > 0 {
		return fmt.Errorf("scheduler: invalid order request (%s): %w", strings.Join(problems, "; "), domain.ErrValidation)
	}
	return nil
}

// advanceSchedule sets the state that follows a recorded execution: done
// when nothing remains, otherwise active and due one interval after at.
// Terminal orders keep their status.
func advanceSchedule(o *domain.Order, at time.Time) {
	if o.Status.IsTerminal() {
		o.NextExecutionAt = nil
		return
	}
	if !o.RemainingAmount.IsPositive() {
		o.Status = domain.OrderStatusCompleted
		o.NextExecutionAt = nil
		return
	}
	o.Status = domain.OrderStatusActive
	next := at.Add(o.Interval)
	o.NextExecutionAt = &next
}

// maxIntervalMinutes is the largest bare-minutes interval that fits in a
// time.Duration.
const maxIntervalMinutes = int64(math.MaxInt64 / int64(time.Minute))

// normalizeInterval parses a Go duration ("90m") or a bare number of
// minutes ("90"). Anything else, or a value that is not positive once
// converted, yields def.
func normalizeInterval(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d > 0 {
			return d
		}
		return def
	}
	m, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || m <= 0 || m > maxIntervalMinutes {
		return def
	}
	return time.Duration(m) * time.Minute
}

func idempotencyKey(orderID string, seq int) string {
	return orderID + ":" + strconv.Itoa(seq)
}
