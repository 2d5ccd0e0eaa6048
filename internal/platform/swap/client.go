// Package swap is the REST client for the exchange's quote and swap API.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/crypto"
	"github.com/alanyoungcy/twapbot/internal/domain"
)

// ClientConfig configures the exchange client.
type ClientConfig struct {
	BaseURL string
	// APIKey and APISecret enable HMAC request signing when both are set.
	APIKey    string
	APISecret string
	Timeout   time.Duration
	// SlippageBps lowers the quoted output into the signed minimum.
	SlippageBps int64
	// DeadlineWindow is how long a signed swap stays valid.
	DeadlineWindow time.Duration
}

// Client implements domain.ExchangeGateway and domain.TokenResolver.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	slippage   decimal.Decimal
	deadline   time.Duration
	now        func() time.Time
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := cfg.DeadlineWindow
	if deadline <= 0 {
		deadline = 2 * time.Minute
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		slippage:   decimal.NewFromInt(cfg.SlippageBps).Div(decimal.NewFromInt(10_000)),
		deadline:   deadline,
		now:        time.Now,
	}
	if cfg.APIKey != "" && cfg.APISecret != "" {
		c.auth = &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret}
	}
	return c
}

// Quote asks the exchange for a price.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	body := quoteRequest{
		Chain:       req.Chain,
		SourceAsset: req.SourceAsset,
		TargetAsset: req.TargetAsset,
		Amount:      req.Amount,
	}
	var resp APIQuote
	if err := c.do(ctx, http.MethodPost, "/v1/quote", body, nil, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("swap: quote %s->%s: %w", req.SourceAsset, req.TargetAsset, err)
	}
	if resp.QuoteID == "" {
		return domain.Quote{}, fmt.Errorf("swap: quote %s->%s: empty quote id", req.SourceAsset, req.TargetAsset)
	}
	return resp.ToDomain(req), nil
}

// Swap signs the quote with signer and submits it. The idempotency key is
// sent as a header so a retried request cannot execute twice.
func (c *Client) Swap(ctx context.Context, quote domain.Quote, signer domain.WalletSigner, idempotencyKey string) (domain.SwapResult, error) {
	deadline := c.now().Add(c.deadline).UTC()
	if !quote.ExpiresAt.IsZero() && quote.ExpiresAt.Before(deadline) {
		deadline = quote.ExpiresAt.UTC()
	}
	intent := domain.SwapIntent{
		QuoteID:        quote.ID,
		Chain:          quote.Chain,
		Wallet:         signer.PublicKey(),
		SourceAsset:    quote.SourceAsset,
		TargetAsset:    quote.TargetAsset,
		InAmount:       quote.InAmount,
		MinOutAmount:   MinOut(quote.OutAmount, c.slippage),
		IdempotencyKey: idempotencyKey,
		Deadline:       deadline,
	}
	sig, err := signer.SignSwap(intent)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("swap: sign intent for quote %s: %w", quote.ID, err)
	}

	body := swapRequest{
		QuoteID:        intent.QuoteID,
		Chain:          intent.Chain,
		Wallet:         intent.Wallet,
		SourceAsset:    intent.SourceAsset,
		TargetAsset:    intent.TargetAsset,
		InAmount:       intent.InAmount,
		MinOutAmount:   intent.MinOutAmount,
		Deadline:       intent.Deadline.Unix(),
		IdempotencyKey: idempotencyKey,
		Route:          quote.RoutePayload,
		Signature:      sig,
	}
	var resp APISwapResult
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	if err := c.do(ctx, http.MethodPost, "/v1/swap", body, headers, &resp); err != nil {
		return domain.SwapResult{}, fmt.Errorf("swap: execute quote %s: %w", quote.ID, err)
	}

	switch strings.ToLower(resp.Status) {
	case "", "confirmed", "success", "filled":
	default:
		return domain.SwapResult{}, fmt.Errorf("swap: quote %s %s: %s", quote.ID, resp.Status, resp.Message)
	}
	if resp.TxID == "" {
		return domain.SwapResult{}, fmt.Errorf("swap: quote %s: response carries no transaction id", quote.ID)
	}
	return domain.SwapResult{TransactionID: resp.TxID, FilledAmount: resp.FilledAmount}, nil
}

// ResolveToken returns the canonical address of token on chain. An unknown
// token is domain.ErrNotFound.
func (c *Client) ResolveToken(ctx context.Context, chain, token string) (string, error) {
	path := "/v1/tokens/" + url.PathEscape(chain) + "/" + url.PathEscape(token)
	var resp APIToken
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return "", fmt.Errorf("swap: resolve token %s on %s: %w", token, chain, err)
	}
	if resp.Address == "" {
		return "", fmt.Errorf("swap: resolve token %s on %s: %w", token, chain, domain.ErrNotFound)
	}
	return resp.Address, nil
}

// MinOut applies slippage (a fraction) to a quoted output.
func MinOut(out, slippage decimal.Decimal) decimal.Decimal {
	if !slippage.IsPositive() {
		return out
	}
	return out.Mul(decimal.NewFromInt(1).Sub(slippage)).Truncate(18)
}

func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, string(payload)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// checkHTTPStatus maps non-2xx responses to domain errors.
func checkHTTPStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", code, msg)
	}
}

var (
	_ domain.ExchangeGateway = (*Client)(nil)
	_ domain.TokenResolver   = (*Client)(nil)
)
