package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// LedgerConfig tunes the optimistic-concurrency retry loop.
type LedgerConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// PositionLedger mutates positions nested inside account records. Every
// mutation is a read-modify-write of the whole account guarded by the
// account version, retried on conflict.
type PositionLedger struct {
	accounts domain.AccountStore
	cfg      LedgerConfig
	now      Clock
	fx       sideEffects
	logger   *slog.Logger
}

// NewPositionLedger creates a PositionLedger. bus and audit may be nil.
func NewPositionLedger(
	accounts domain.AccountStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg LedgerConfig,
	logger *slog.Logger,
) *PositionLedger {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 20 * time.Millisecond
	}
	logger = logger.With(slog.String("component", "ledger"))
	return &PositionLedger{
		accounts: accounts,
		cfg:      cfg,
		now:      systemClock,
		fx:       sideEffects{bus: bus, audit: audit, logger: logger},
		logger:   logger,
	}
}

// WithClock overrides the time source.
func (l *PositionLedger) WithClock(c Clock) *PositionLedger {
	l.now = c
	return l
}

// CreatePosition appends pos to the wallet matching its chain and public key.
// A missing account or wallet is domain.ErrNotFound.
func (l *PositionLedger) CreatePosition(ctx context.Context, accountID string, pos domain.Position) (domain.Position, error) {
	if pos.Chain == "" || pos.WalletPublicKey == "" {
		return domain.Position{}, fmt.Errorf("ledger: create position: chain and wallet are required: %w", domain.ErrValidation)
	}
	if pos.ID == "" {
		pos.ID = uuid.New().String()
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = l.now()
	}

	_, err := l.mutate(ctx, accountID, func(a *domain.Account) error {
		wi, ok := a.FindWallet(pos.Chain, pos.WalletPublicKey)
		if !ok {
			return fmt.Errorf("ledger: wallet %s on %s: %w", pos.WalletPublicKey, pos.Chain, domain.ErrNotFound)
		}
		if _, _, exists := a.FindPosition(pos.ID); exists {
			return fmt.Errorf("ledger: position %s: %w", pos.ID, domain.ErrAlreadyExists)
		}
		a.Wallets[wi].Positions = append(a.Wallets[wi].Positions, pos)
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}

	l.fx.auditLog(ctx, "position_created", map[string]any{
		"account_id":  accountID,
		"position_id": pos.ID,
		"chain":       pos.Chain,
		"token":       pos.Token,
		"wallet":      pos.WalletPublicKey,
	})
	l.logger.InfoContext(ctx, "ledger: position created",
		slog.String("account_id", accountID),
		slog.String("position_id", pos.ID),
	)
	return pos, nil
}

// UpdatePosition shallow-merges delta into the position.
func (l *PositionLedger) UpdatePosition(ctx context.Context, accountID, positionID string, delta domain.PositionDelta) (domain.Position, error) {
	var out domain.Position
	_, err := l.mutate(ctx, accountID, func(a *domain.Account) error {
		wi, pi, ok := a.FindPosition(positionID)
		if !ok {
			return fmt.Errorf("ledger: position %s: %w", positionID, domain.ErrNotFound)
		}
		cur := a.Wallets[wi].Positions[pi]
		if delta.CloseInfo.IsSome() && cur.IsClosed() {
			return fmt.Errorf("ledger: position %s: %w", positionID, domain.ErrPositionClosed)
		}
		out = delta.Apply(cur)
		a.Wallets[wi].Positions[pi] = out
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}

	l.fx.publish(ctx, domain.ChannelPositions, map[string]any{
		"event":       domain.EventPositionUpdated,
		"account_id":  accountID,
		"position_id": positionID,
	})
	return out, nil
}

// GetPositionsByAccount flattens every wallet's positions into one map keyed
// by position id.
func (l *PositionLedger) GetPositionsByAccount(ctx context.Context, accountID string) (map[string]domain.PositionView, error) {
	acct, err := l.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("ledger: get account %s: %w", accountID, err)
	}
	out := make(map[string]domain.PositionView)
	for _, w := range acct.Wallets {
		ref := w.Ref()
		for _, p := range w.Positions {
			out[p.ID] = domain.PositionView{Wallet: ref, Position: p}
		}
	}
	return out, nil
}

// ApplyFill adds one execution's spend and proceeds to the position totals.
func (l *PositionLedger) ApplyFill(ctx context.Context, accountID, positionID string, spent, acquired decimal.Decimal) (domain.Position, error) {
	var out domain.Position
	_, err := l.mutate(ctx, accountID, func(a *domain.Account) error {
		wi, pi, ok := a.FindPosition(positionID)
		if !ok {
			return fmt.Errorf("ledger: position %s: %w", positionID, domain.ErrNotFound)
		}
		p := &a.Wallets[wi].Positions[pi]
		p.SourceAmountSpent = p.SourceAmountSpent.Add(spent)
		p.AcquiredAmount = p.AcquiredAmount.Add(acquired)
		out = *p
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}
	l.fx.publish(ctx, domain.ChannelPositions, map[string]any{
		"event":       domain.EventPositionUpdated,
		"account_id":  accountID,
		"position_id": positionID,
		"spent":       out.SourceAmountSpent.String(),
		"acquired":    out.AcquiredAmount.String(),
	})
	return out, nil
}

// ClosePosition records the close event. A position closes at most once.
func (l *PositionLedger) ClosePosition(ctx context.Context, accountID, positionID string, info domain.CloseInfo) (domain.Position, error) {
	if info.ClosedAt.IsZero() {
		info.ClosedAt = l.now()
	}
	delta := domain.PositionDelta{CloseInfo: optional.Some(info)}

	pos, err := l.UpdatePosition(ctx, accountID, positionID, delta)
	if err != nil {
		return domain.Position{}, err
	}

	l.fx.publish(ctx, domain.ChannelPositions, map[string]any{
		"event":       domain.EventPositionClosed,
		"account_id":  accountID,
		"position_id": positionID,
	})
	l.fx.auditLog(ctx, domain.EventPositionClosed, map[string]any{
		"account_id":  accountID,
		"position_id": positionID,
		"reason":      info.Reason,
	})
	return pos, nil
}

// RemovePosition deletes a position. It exists to undo a position created
// for an order that then failed to persist.
func (l *PositionLedger) RemovePosition(ctx context.Context, accountID, positionID string) error {
	_, err := l.mutate(ctx, accountID, func(a *domain.Account) error {
		wi, pi, ok := a.FindPosition(positionID)
		if !ok {
			return fmt.Errorf("ledger: position %s: %w", positionID, domain.ErrNotFound)
		}
		ps := a.Wallets[wi].Positions
		a.Wallets[wi].Positions = append(ps[:pi:pi], ps[pi+1:]...)
		return nil
	})
	return err
}

// mutate loads the account, applies fn to a private copy and writes it back
// if the stored version is unchanged. Conflicts are retried; errors from fn
// abort without writing.
func (l *PositionLedger) mutate(ctx context.Context, accountID string, fn func(*domain.Account) error) (domain.Account, error) {
	for attempt := 1; ; attempt++ {
		acct, err := l.accounts.Get(ctx, accountID)
		if err != nil {
			return domain.Account{}, fmt.Errorf("ledger: get account %s: %w", accountID, err)
		}

		working := acct.Clone()
		if err := fn(&working); err != nil {
			return domain.Account{}, err
		}
		working.UpdatedAt = l.now()

		updated, err := l.accounts.Update(ctx, working, acct.Version)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.Account{}, fmt.Errorf("ledger: update account %s: %w: %w", accountID, domain.ErrStoreWrite, err)
		}
		if attempt >= l.cfg.MaxRetries {
			return domain.Account{}, fmt.Errorf("ledger: update account %s after %d attempts: %w", accountID, attempt, err)
		}

		l.logger.DebugContext(ctx, "ledger: version conflict, retrying",
			slog.String("account_id", accountID),
			slog.Int("attempt", attempt),
		)
		timer := time.NewTimer(l.cfg.RetryBackoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Account{}, fmt.Errorf("ledger: update account %s: %w", accountID, ctx.Err())
		case <-timer.C:
		}
	}
}
