package swap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// PaperGateway fills every swap at a fixed price without touching a chain.
// Repeating an idempotency key returns the first result.
type PaperGateway struct {
	prices map[string]decimal.Decimal // lowercase target -> units per source unit
	mu     sync.Mutex
	fills  map[string]domain.SwapResult
	logger *slog.Logger
}

// NewPaperGateway creates a PaperGateway. Targets missing from prices fill
// one for one.
func NewPaperGateway(prices map[string]float64, logger *slog.Logger) *PaperGateway {
	p := make(map[string]decimal.Decimal, len(prices))
	for token, px := range prices {
		p[strings.ToLower(token)] = decimal.NewFromFloat(px)
	}
	return &PaperGateway{
		prices: p,
		fills:  make(map[string]domain.SwapResult),
		logger: logger.With(slog.String("component", "paper_gateway")),
	}
}

// Quote prices req at the configured rate.
func (g *PaperGateway) Quote(_ context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if !req.Amount.IsPositive() {
		return domain.Quote{}, fmt.Errorf("paper: quote amount %s: %w", req.Amount, domain.ErrValidation)
	}
	return domain.Quote{
		ID:          "paper-" + uuid.New().String(),
		Chain:       req.Chain,
		SourceAsset: req.SourceAsset,
		TargetAsset: req.TargetAsset,
		InAmount:    req.Amount,
		OutAmount:   req.Amount.Mul(g.price(req.TargetAsset)),
		ExpiresAt:   time.Now().UTC().Add(time.Minute),
	}, nil
}

// Swap signs the intent to prove the signer works and records a fill.
func (g *PaperGateway) Swap(_ context.Context, quote domain.Quote, signer domain.WalletSigner, idempotencyKey string) (domain.SwapResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if res, ok := g.fills[idempotencyKey]; ok {
		return res, nil
	}
	if _, err := signer.SignSwap(domain.SwapIntent{
		QuoteID:        quote.ID,
		Chain:          quote.Chain,
		Wallet:         signer.PublicKey(),
		SourceAsset:    quote.SourceAsset,
		TargetAsset:    quote.TargetAsset,
		InAmount:       quote.InAmount,
		MinOutAmount:   quote.OutAmount,
		IdempotencyKey: idempotencyKey,
		Deadline:       quote.ExpiresAt,
	}); err != nil {
		return domain.SwapResult{}, fmt.Errorf("paper: sign: %w", err)
	}

	res := domain.SwapResult{TransactionID: "paper-tx-" + uuid.New().String(), FilledAmount: quote.OutAmount}
	g.fills[idempotencyKey] = res
	g.logger.Info("paper_gateway: swap filled",
		slog.String("key", idempotencyKey),
		slog.String("in", quote.InAmount.String()),
		slog.String("out", res.FilledAmount.String()),
	)
	return res, nil
}

// ResolveToken accepts any token and returns it unchanged.
func (g *PaperGateway) ResolveToken(_ context.Context, _, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("paper: empty token: %w", domain.ErrNotFound)
	}
	return token, nil
}

func (g *PaperGateway) price(target string) decimal.Decimal {
	if px, ok := g.prices[strings.ToLower(target)]; ok {
		return px
	}
	return decimal.NewFromInt(1)
}

var (
	_ domain.ExchangeGateway = (*PaperGateway)(nil)
	_ domain.TokenResolver   = (*PaperGateway)(nil)
)
