package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/store/memory"
)

type brokenOrderStore struct {
	*memory.OrderStore
}

func (brokenOrderStore) AppendExecution(context.Context, domain.Order, domain.Execution) (domain.Order, error) {
	return domain.Order{}, errors.New("disk full")
}

type RecorderTestSuite struct {
	suite.Suite
	now      time.Time
	orders   *memory.OrderStore
	audit    *memory.AuditStore
	logger   *slog.Logger
	recorder *ExecutionRecorder
	order    domain.Order
}

func TestRecorderTestSuite(t *testing.T) {
	suite.Run(t, new(RecorderTestSuite))
}

func (s *RecorderTestSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.orders = memory.NewOrderStore()
	s.audit = memory.NewAuditStore()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.recorder = NewExecutionRecorder(s.orders, nil, nil, s.audit, nil, s.logger)

	next := s.now
	s.order = domain.Order{
		ID:              "order-1",
		AccountID:       testAccount,
		SourceWallet:    testWallet,
		Chain:           testChain,
		SourceAsset:     "ETH",
		TargetToken:     testToken,
		TotalAmount:     decimal.NewFromInt(10),
		RemainingAmount: decimal.NewFromInt(10),
		EndTime:         s.now.Add(5 * time.Hour),
		Interval:        time.Hour,
		Status:          domain.OrderStatusPending,
		CreatedAt:       s.now,
		UpdatedAt:       s.now,
		NextExecutionAt: &next,
	}
	s.Require().NoError(s.orders.Create(context.Background(), s.order))
}

func (s *RecorderTestSuite) exec(seq int, amount string, ok bool) domain.Execution {
	e := domain.Execution{
		Seq:             seq,
		Timestamp:       s.now,
		AmountAttempted: decimal.RequireFromString(amount),
		Success:         ok,
		FilledAmount:    decimal.Zero,
	}
	if !ok {
		e.Error = "boom"
	}
	return e
}

func (s *RecorderTestSuite) TestApplySuccessReducesRemaining() {
	out := s.recorder.Apply(s.order, s.exec(1, "4", true))
	s.True(decimal.NewFromInt(6).Equal(out.RemainingAmount))
	s.Equal(domain.OrderStatusActive, out.Status)
	s.Require().NotNil(out.NextExecutionAt)
	s.Equal(s.now.Add(time.Hour), *out.NextExecutionAt)
	s.Len(out.Executions, 1)
	s.Empty(s.order.Executions, "input order must not be modified")
}

func (s *RecorderTestSuite) TestApplyFailureKeepsRemaining() {
	out := s.recorder.Apply(s.order, s.exec(1, "4", false))
	s.True(decimal.NewFromInt(10).Equal(out.RemainingAmount))
	s.Equal(domain.OrderStatusActive, out.Status)
}

func (s *RecorderTestSuite) TestApplyClampsRemainingAtZero() {
	out := s.recorder.Apply(s.order, s.exec(1, "12", true))
	s.True(out.RemainingAmount.IsZero())
	s.Equal(domain.OrderStatusCompleted, out.Status)
	s.Nil(out.NextExecutionAt)
}

func (s *RecorderTestSuite) TestRecordPersistsExecution() {
	ctx := context.Background()
	out, err := s.recorder.Record(ctx, s.order, s.exec(1, "5", true))
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(5).Equal(out.RemainingAmount))

	stored, err := s.orders.GetByID(ctx, s.order.ID)
	s.Require().NoError(err)
	s.Len(stored.Executions, 1)
	s.True(decimal.NewFromInt(5).Equal(stored.RemainingAmount))
	s.Equal([]string{domain.EventExecutionSucceeded}, s.audit.Events())
}

func (s *RecorderTestSuite) TestRecordStoreFailure() {
	rec := NewExecutionRecorder(brokenOrderStore{s.orders}, nil, nil, s.audit, nil, s.logger)

	out, err := rec.Record(context.Background(), s.order, s.exec(1, "5", true))
	s.ErrorIs(err, domain.ErrStoreWrite)
	s.True(decimal.NewFromInt(10).Equal(out.RemainingAmount))
	s.Empty(s.audit.Events())
}

func (s *RecorderTestSuite) TestRecordFillFailureDoesNotFailExecution() {
	ctx := context.Background()
	accounts := memory.NewAccountStore()
	s.Require().NoError(accounts.Create(ctx, domain.Account{
		ID:      testAccount,
		Wallets: []domain.Wallet{{Chain: testChain, PublicKey: testWallet}},
	}))
	ledger := NewPositionLedger(accounts, nil, nil, LedgerConfig{}, s.logger)
	rec := NewExecutionRecorder(s.orders, ledger, nil, s.audit, nil, s.logger)

	order := s.order
	order.PositionID = "gone"
	out, err := rec.Record(ctx, order, s.exec(1, "5", true))
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(5).Equal(out.RemainingAmount))
	s.Contains(s.audit.Events(), "position_fill_failed")
}
