package swap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/alanyoungcy/twapbot/internal/crypto"
	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/mocks"
)

type ClientTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	mux     *http.ServeMux
	server  *httptest.Server
	client  *Client
	signer  *mocks.MockWalletSigner
	fixedAt time.Time
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)
	s.client = NewClient(ClientConfig{
		BaseURL:        s.server.URL + "/",
		APIKey:         "key",
		APISecret:      "secret",
		Timeout:        5 * time.Second,
		SlippageBps:    100,
		DeadlineWindow: time.Minute,
	})
	s.fixedAt = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.client.now = func() time.Time { return s.fixedAt }
	s.signer = mocks.NewMockWalletSigner(s.ctrl)
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientTestSuite) TestQuoteSignsRequest() {
	s.mux.HandleFunc("POST /v1/quote", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		auth := crypto.HMACAuth{Key: "key", Secret: "secret"}
		s.Equal("key", r.Header.Get(crypto.HeaderAPIKey))
		s.True(auth.Verify(r.Method, r.URL.Path, string(body),
			r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature)))

		var req quoteRequest
		s.Require().NoError(json.Unmarshal(body, &req))
		s.Equal("ETH", req.SourceAsset)
		s.True(decimal.RequireFromString("1.5").Equal(req.Amount))

		_ = json.NewEncoder(w).Encode(APIQuote{
			QuoteID:   "q-1",
			OutAmount: decimal.RequireFromString("3000"),
			ExpiresAt: s.fixedAt.Add(30 * time.Second),
			Route:     "uni-v3",
		})
	})

	q, err := s.client.Quote(context.Background(), domain.QuoteRequest{
		Chain:       "ethereum",
		SourceAsset: "ETH",
		TargetAsset: "0xusdc",
		Amount:      decimal.RequireFromString("1.5"),
	})
	s.Require().NoError(err)
	s.Equal("q-1", q.ID)
	s.Equal("ethereum", q.Chain)
	s.True(decimal.RequireFromString("1.5").Equal(q.InAmount), "in amount falls back to the request")
	s.True(decimal.RequireFromString("3000").Equal(q.OutAmount))
	s.Equal("uni-v3", q.RoutePayload)
}

func (s *ClientTestSuite) TestSwapSendsSignedIntent() {
	quote := domain.Quote{
		ID:           "q-1",
		Chain:        "ethereum",
		SourceAsset:  "ETH",
		TargetAsset:  "0xusdc",
		InAmount:     decimal.RequireFromString("1"),
		OutAmount:    decimal.RequireFromString("2000"),
		ExpiresAt:    s.fixedAt.Add(30 * time.Second),
		RoutePayload: "route",
	}

	s.signer.EXPECT().PublicKey().Return("0xwallet").AnyTimes()
	s.signer.EXPECT().SignSwap(gomock.Any()).DoAndReturn(func(intent domain.SwapIntent) (string, error) {
		s.Equal("0xwallet", intent.Wallet)
		s.Equal("order-1:3", intent.IdempotencyKey)
		s.True(decimal.RequireFromString("1980").Equal(intent.MinOutAmount), "1%% slippage, got %s", intent.MinOutAmount)
		s.Equal(quote.ExpiresAt, intent.Deadline, "quote expiry caps the deadline")
		return "0xsig", nil
	})

	s.mux.HandleFunc("POST /v1/swap", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("order-1:3", r.Header.Get("Idempotency-Key"))
		var req swapRequest
		s.Require().NoError(json.NewDecoder(r.Body).Decode(&req))
		s.Equal("0xsig", req.Signature)
		s.Equal("route", req.Route)
		s.Equal(quote.ExpiresAt.Unix(), req.Deadline)

		_ = json.NewEncoder(w).Encode(APISwapResult{
			TxID:         "0xtx",
			Status:       "confirmed",
			FilledAmount: decimal.RequireFromString("1995"),
		})
	})

	res, err := s.client.Swap(context.Background(), quote, s.signer, "order-1:3")
	s.Require().NoError(err)
	s.Equal("0xtx", res.TransactionID)
	s.True(decimal.RequireFromString("1995").Equal(res.FilledAmount))
}

func (s *ClientTestSuite) TestSwapRejectedStatus() {
	s.signer.EXPECT().PublicKey().Return("0xwallet").AnyTimes()
	s.signer.EXPECT().SignSwap(gomock.Any()).Return("0xsig", nil)
	s.mux.HandleFunc("POST /v1/swap", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(APISwapResult{Status: "reverted", Message: "slippage"})
	})

	_, err := s.client.Swap(context.Background(), domain.Quote{ID: "q-2"}, s.signer, "k")
	s.Require().Error(err)
	s.Contains(err.Error(), "reverted")
}

func (s *ClientTestSuite) TestSwapSignerFailureSkipsRequest() {
	s.signer.EXPECT().PublicKey().Return("0xwallet").AnyTimes()
	s.signer.EXPECT().SignSwap(gomock.Any()).Return("", domain.ErrSigningFailed)
	s.mux.HandleFunc("POST /v1/swap", func(http.ResponseWriter, *http.Request) {
		s.Fail("swap must not be submitted unsigned")
	})

	_, err := s.client.Swap(context.Background(), domain.Quote{ID: "q-3"}, s.signer, "k")
	s.ErrorIs(err, domain.ErrSigningFailed)
}

func (s *ClientTestSuite) TestStatusMapping() {
	testCases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, domain.ErrValidation},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}
	for _, tc := range testCases {
		err := checkHTTPStatus(tc.status, []byte("nope"))
		s.ErrorIs(err, tc.want, "status %d", tc.status)
	}
	s.NoError(checkHTTPStatus(http.StatusOK, nil))
	s.ErrorContains(checkHTTPStatus(http.StatusBadGateway, []byte("upstream")), "HTTP 502")
}

func (s *ClientTestSuite) TestResolveToken() {
	s.mux.HandleFunc("GET /v1/tokens/{chain}/{token}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("token") == "USDC" {
			_ = json.NewEncoder(w).Encode(APIToken{Address: "0xa0b8", Symbol: "USDC", Decimals: 6})
			return
		}
		http.Error(w, "unknown token", http.StatusNotFound)
	})

	addr, err := s.client.ResolveToken(context.Background(), "ethereum", "USDC")
	s.Require().NoError(err)
	s.Equal("0xa0b8", addr)

	_, err = s.client.ResolveToken(context.Background(), "ethereum", "NOPE")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *ClientTestSuite) TestMinOut() {
	out := decimal.RequireFromString("100")
	s.True(decimal.RequireFromString("99.5").Equal(MinOut(out, decimal.RequireFromString("0.005"))))
	s.True(out.Equal(MinOut(out, decimal.Zero)))
}

func TestPaperGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	signer := mocks.NewMockWalletSigner(ctrl)
	signer.EXPECT().PublicKey().Return("0xwallet").AnyTimes()
	signer.EXPECT().SignSwap(gomock.Any()).Return("0xsig", nil).Times(1)

	g := NewPaperGateway(map[string]float64{"PEPE": 250000}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	q, err := g.Quote(ctx, domain.QuoteRequest{Chain: "base", SourceAsset: "ETH", TargetAsset: "pepe", Amount: decimal.RequireFromString("0.01")})
	if err != nil {
		t.Fatal(err)
	}
	if !decimal.NewFromInt(2500).Equal(q.OutAmount) {
		t.Fatalf("out amount = %s, want 2500", q.OutAmount)
	}

	first, err := g.Swap(ctx, q, signer, "order:1")
	if err != nil {
		t.Fatal(err)
	}
	again, err := g.Swap(ctx, q, signer, "order:1")
	if err != nil {
		t.Fatal(err)
	}
	if first.TransactionID != again.TransactionID {
		t.Fatalf("repeated key produced a second fill: %s != %s", first.TransactionID, again.TransactionID)
	}

	if _, err := g.Quote(ctx, domain.QuoteRequest{Amount: decimal.Zero}); err == nil {
		t.Fatal("expected zero amount to be rejected")
	}
	if tok, _ := g.ResolveToken(ctx, "base", "0xabc"); tok != "0xabc" {
		t.Fatalf("ResolveToken = %q", tok)
	}
}
