package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/store/memory"
)

func newTestAccountService() (*AccountService, *memory.AuditStore) {
	audit := memory.NewAuditStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAccountService(memory.NewAccountStore(), audit, logger), audit
}

func TestRegisterAccount(t *testing.T) {
	svc, audit := newTestAccountService()
	ctx := context.Background()

	acct, err := svc.RegisterAccount(ctx, RegisterAccountRequest{
		ID: "acct-9",
		Wallets: []domain.WalletRef{
			{Chain: "Ethereum", PublicKey: "0xabc", Label: "main"},
			{Chain: "base", PublicKey: "0xabc"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), acct.Version)
	require.Len(t, acct.Wallets, 2)
	require.Equal(t, "ethereum", acct.Wallets[0].Chain)
	require.Equal(t, "main", acct.Wallets[0].Label)
	require.Empty(t, acct.Wallets[0].Positions)
	require.Equal(t, []string{"account_registered"}, audit.Events())

	stored, err := svc.GetAccount(ctx, "acct-9")
	require.NoError(t, err)
	require.Len(t, stored.Wallets, 2)

	_, err = svc.RegisterAccount(ctx, RegisterAccountRequest{
		ID:      "acct-9",
		Wallets: []domain.WalletRef{{Chain: "base", PublicKey: "0x1"}},
	})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestRegisterAccountValidation(t *testing.T) {
	svc, _ := newTestAccountService()

	testCases := []struct {
		name string
		req  RegisterAccountRequest
	}{
		{"missing id", RegisterAccountRequest{Wallets: []domain.WalletRef{{Chain: "base", PublicKey: "0x1"}}}},
		{"no wallets", RegisterAccountRequest{ID: "a"}},
		{"wallet without key", RegisterAccountRequest{ID: "a", Wallets: []domain.WalletRef{{Chain: "base"}}}},
		{"duplicate wallet", RegisterAccountRequest{ID: "a", Wallets: []domain.WalletRef{
			{Chain: "BASE", PublicKey: "0x1"},
			{Chain: "base", PublicKey: "0x1"},
		}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RegisterAccount(context.Background(), tc.req)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := svc.GetAccount(context.Background(), "a")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
