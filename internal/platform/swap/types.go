package swap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// quoteRequest is the JSON body of POST /v1/quote.
type quoteRequest struct {
	Chain       string          `json:"chain"`
	SourceAsset string          `json:"source_asset"`
	TargetAsset string          `json:"target_asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// APIQuote is the exchange's quote response.
type APIQuote struct {
	QuoteID   string          `json:"quote_id"`
	InAmount  decimal.Decimal `json:"in_amount"`
	OutAmount decimal.Decimal `json:"out_amount"`
	ExpiresAt time.Time       `json:"expires_at"`
	Route     string          `json:"route,omitempty"`
}

// ToDomain converts the response into a domain.Quote for req.
func (q APIQuote) ToDomain(req domain.QuoteRequest) domain.Quote {
	in := q.InAmount
	if in.IsZero() {
		in = req.Amount
	}
	return domain.Quote{
		ID:           q.QuoteID,
		Chain:        req.Chain,
		SourceAsset:  req.SourceAsset,
		TargetAsset:  req.TargetAsset,
		InAmount:     in,
		OutAmount:    q.OutAmount,
		ExpiresAt:    q.ExpiresAt,
		RoutePayload: q.Route,
	}
}

// swapRequest is the JSON body of POST /v1/swap.
type swapRequest struct {
	QuoteID        string          `json:"quote_id"`
	Chain          string          `json:"chain"`
	Wallet         string          `json:"wallet"`
	SourceAsset    string          `json:"source_asset"`
	TargetAsset    string          `json:"target_asset"`
	InAmount       decimal.Decimal `json:"in_amount"`
	MinOutAmount   decimal.Decimal `json:"min_out_amount"`
	Deadline       int64           `json:"deadline"`
	IdempotencyKey string          `json:"idempotency_key"`
	Route          string          `json:"route,omitempty"`
	Signature      string          `json:"signature"`
}

// APISwapResult is the exchange's swap confirmation.
type APISwapResult struct {
	TxID         string          `json:"tx_id"`
	Status       string          `json:"status"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	Message      string          `json:"message,omitempty"`
}

// APIToken is the response of GET /v1/tokens/{chain}/{token}.
type APIToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}
