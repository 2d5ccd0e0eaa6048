package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteRequest asks the exchange for the price of swapping Amount of
// SourceAsset into TargetAsset.
type QuoteRequest struct {
	Chain       string          `json:"chain"`
	SourceAsset string          `json:"source_asset"`
	TargetAsset string          `json:"target_asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// Quote is an exchange offer that Swap can execute before ExpiresAt.
type Quote struct {
	ID           string          `json:"id"`
	Chain        string          `json:"chain"`
	SourceAsset  string          `json:"source_asset"`
	TargetAsset  string          `json:"target_asset"`
	InAmount     decimal.Decimal `json:"in_amount"`
	OutAmount    decimal.Decimal `json:"out_amount"`
	ExpiresAt    time.Time       `json:"expires_at"`
	RoutePayload string          `json:"route_payload,omitempty"`
}

// SwapResult is the exchange's confirmation of an executed swap.
type SwapResult struct {
	TransactionID string          `json:"transaction_id"`
	FilledAmount  decimal.Decimal `json:"filled_amount"`
}

// SwapIntent is the payload a wallet signs to authorize one swap.
type SwapIntent struct {
	QuoteID        string
	Chain          string
	Wallet         string
	SourceAsset    string
	TargetAsset    string
	InAmount       decimal.Decimal
	MinOutAmount   decimal.Decimal
	IdempotencyKey string
	Deadline       time.Time
}

// ExchangeGateway is the external swap facility.
type ExchangeGateway interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	Swap(ctx context.Context, quote Quote, signer WalletSigner, idempotencyKey string) (SwapResult, error)
}

// TokenResolver maps a user-supplied token identifier to the canonical
// asset id on a chain.
type TokenResolver interface {
	ResolveToken(ctx context.Context, chain, token string) (string, error)
}

// WalletSigner holds signing material for one wallet of one account.
type WalletSigner interface {
	PublicKey() string
	SignSwap(intent SwapIntent) (string, error)
}

// SignerResolver returns the signer for a wallet, scoped to the owning account.
type SignerResolver interface {
	Resolve(ctx context.Context, accountID, chain, walletPublicKey string) (WalletSigner, error)
}
