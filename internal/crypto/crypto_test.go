package crypto

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapbot/internal/domain"
	"github.com/alanyoungcy/twapbot/internal/store/memory"
)

// Well-known development key (first Hardhat/Anvil account).
const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestAddressFromKey(t *testing.T) {
	addr, err := AddressFromKey(testKey)
	require.NoError(t, err)
	require.Equal(t, testAddress, addr)

	_, err = AddressFromKey("0x1234")
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	data, err := EncryptKey(testKey, "correct horse")
	require.NoError(t, err)
	require.Contains(t, string(data), testAddress)
	require.NotContains(t, string(data), strings.TrimPrefix(testKey, "0x"))

	key, err := DecryptKey(data, "correct horse")
	require.NoError(t, err)
	require.Equal(t, strings.TrimPrefix(testKey, "0x"), key)

	_, err = DecryptKey(data, "wrong")
	require.Error(t, err)

	_, err = EncryptKey(testKey, "")
	require.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	key, err := LoadKey(KeyConfig{RawPrivateKey: testKey})
	require.NoError(t, err)
	require.Equal(t, strings.TrimPrefix(testKey, "0x"), key)

	data, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	key, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	require.Equal(t, strings.TrimPrefix(testKey, "0x"), key)

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
}

func testIntent() domain.SwapIntent {
	return domain.SwapIntent{
		QuoteID:        "q-1",
		Chain:          "ethereum",
		Wallet:         testAddress,
		SourceAsset:    "ETH",
		TargetAsset:    "0xtoken",
		InAmount:       decimal.RequireFromString("0.5"),
		MinOutAmount:   decimal.RequireFromString("990.25"),
		IdempotencyKey: "order-1:1",
		Deadline:       time.Unix(1_800_000_000, 0),
	}
}

func TestSignSwapRecoversSigner(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)
	require.Equal(t, testAddress, s.PublicKey())

	intent := testIntent()
	sig, err := s.SignSwap(intent)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sig, "0x"))

	digest, err := SwapIntentDigest(intent)
	require.NoError(t, err)
	addr, err := RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, testAddress, addr)

	// Any change to the intent changes the digest.
	intent.InAmount = decimal.RequireFromString("0.6")
	other, err := SwapIntentDigest(intent)
	require.NoError(t, err)
	require.NotEqual(t, digest, other)
}

func TestSignSwapRejectsForeignWallet(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)

	intent := testIntent()
	intent.Wallet = "0x0000000000000000000000000000000000000001"
	_, err = s.SignSwap(intent)
	require.ErrorIs(t, err, domain.ErrSigningFailed)
}

func TestHMACAuth(t *testing.T) {
	auth := HMACAuth{Key: "key-123", Secret: "s3cret"}
	h := auth.HeadersAt("POST", "/v1/swap", `{"a":1}`, 1700000000)

	require.Equal(t, "key-123", h[HeaderAPIKey])
	require.Equal(t, "1700000000", h[HeaderTimestamp])
	require.True(t, auth.Verify("POST", "/v1/swap", `{"a":1}`, "1700000000", h[HeaderSignature]))
	require.False(t, auth.Verify("POST", "/v1/swap", `{"a":2}`, "1700000000", h[HeaderSignature]))
	require.NotContains(t, auth.String(), "s3cret")
}

func newTestKeyring(t *testing.T, cfg KeyringConfig) *Keyring {
	t.Helper()
	accounts := memory.NewAccountStore()
	require.NoError(t, accounts.Create(context.Background(), domain.Account{
		ID:      "acct-1",
		Wallets: []domain.Wallet{{Chain: "ethereum", PublicKey: testAddress}},
	}))
	return NewKeyring(accounts, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKeyringResolvesEncryptedKey(t *testing.T) {
	dir := t.TempDir()
	data, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, strings.ToLower(testAddress)+".json"), data, 0o600))

	kr := newTestKeyring(t, KeyringConfig{KeysDir: dir, Password: "pw"})
	signer, err := kr.Resolve(context.Background(), "acct-1", "ethereum", testAddress)
	require.NoError(t, err)
	require.Equal(t, testAddress, signer.PublicKey())

	again, err := kr.Resolve(context.Background(), "acct-1", "ethereum", testAddress)
	require.NoError(t, err)
	require.Same(t, signer, again)
}

func TestKeyringScopesWalletsToAccounts(t *testing.T) {
	kr := newTestKeyring(t, KeyringConfig{RawKeys: map[string]string{testAddress: testKey}})

	_, err := kr.Resolve(context.Background(), "acct-1", "polygon", testAddress)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = kr.Resolve(context.Background(), "someone-else", "ethereum", testAddress)
	require.ErrorIs(t, err, domain.ErrNotFound)

	s, err := kr.Resolve(context.Background(), "acct-1", "ethereum", testAddress)
	require.NoError(t, err)
	require.Equal(t, testAddress, s.PublicKey())
}

func TestKeyringMissingKeyFile(t *testing.T) {
	kr := newTestKeyring(t, KeyringConfig{KeysDir: t.TempDir(), Password: "pw"})
	_, err := kr.Resolve(context.Background(), "acct-1", "ethereum", testAddress)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
