package crypto

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// KeyringConfig locates wallet keys. RawKeys maps a wallet address to a hex
// private key and is meant for paper trading; otherwise keys are read from
// <KeysDir>/<lowercase address>.json and decrypted with Password.
type KeyringConfig struct {
	KeysDir  string
	Password string
	RawKeys  map[string]string
}

// Keyring implements domain.SignerResolver. A signer is only handed out for
// a wallet the requesting account owns, and only if the key on disk really
// belongs to that wallet address.
type Keyring struct {
	accounts domain.AccountStore
	cfg      KeyringConfig
	raw      map[string]string

	mu      sync.Mutex
	signers map[string]*Signer
	logger  *slog.Logger
}

// NewKeyring creates a Keyring.
func NewKeyring(accounts domain.AccountStore, cfg KeyringConfig, logger *slog.Logger) *Keyring {
	raw := make(map[string]string, len(cfg.RawKeys))
	for addr, key := range cfg.RawKeys {
		raw[strings.ToLower(addr)] = key
	}
	return &Keyring{
		accounts: accounts,
		cfg:      cfg,
		raw:      raw,
		signers:  make(map[string]*Signer),
		logger:   logger.With(slog.String("component", "keyring")),
	}
}

// Resolve returns the signer for walletPublicKey on chain, scoped to
// accountID.
func (k *Keyring) Resolve(ctx context.Context, accountID, chain, walletPublicKey string) (domain.WalletSigner, error) {
	acct, err := k.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("keyring: get account %s: %w", accountID, err)
	}
	if _, ok := acct.FindWallet(chain, walletPublicKey); !ok {
		return nil, fmt.Errorf("keyring: wallet %s on %s not owned by %s: %w", walletPublicKey, chain, accountID, domain.ErrUnauthorized)
	}
	return k.signer(walletPublicKey)
}

func (k *Keyring) signer(address string) (*Signer, error) {
	id := strings.ToLower(address)

	k.mu.Lock()
	defer k.mu.Unlock()

	if s, ok := k.signers[id]; ok {
		return s, nil
	}

	keyHex, err := k.load(id)
	if err != nil {
		return nil, err
	}
	s, err := NewSigner(keyHex)
	if err != nil {
		return nil, fmt.Errorf("keyring: wallet %s: %w", address, err)
	}
	if !strings.EqualFold(s.PublicKey(), address) {
		return nil, fmt.Errorf("keyring: key for %s derives %s: %w", address, s.PublicKey(), domain.ErrUnauthorized)
	}
	k.signers[id] = s
	k.logger.Info("keyring: signer loaded", slog.String("wallet", s.PublicKey()))
	return s, nil
}

func (k *Keyring) load(id string) (string, error) {
	if key, ok := k.raw[id]; ok {
		return key, nil
	}
	if k.cfg.KeysDir == "" {
		return "", fmt.Errorf("keyring: no key for %s: %w", id, domain.ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(k.cfg.KeysDir, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("keyring: no key file for %s: %w", id, domain.ErrNotFound)
		}
		return "", fmt.Errorf("keyring: read key for %s: %w", id, err)
	}
	key, err := DecryptKey(data, k.cfg.Password)
	if err != nil {
		return "", fmt.Errorf("keyring: %s: %w", id, err)
	}
	return key, nil
}

var _ domain.SignerResolver = (*Keyring)(nil)
