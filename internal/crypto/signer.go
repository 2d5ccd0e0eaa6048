package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// amountDecimals is the fixed-point scale amounts are encoded at before
// hashing.
const amountDecimals = 18

var (
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("TwapDomain(string name,string version,string chain)"),
	)
	swapIntentTypeHash = ethcrypto.Keccak256(
		[]byte("SwapIntent(string quoteId,address wallet,string sourceAsset,string targetAsset,uint256 inAmount,uint256 minOutAmount,string idempotencyKey,uint256 deadline)"),
	)
)

// Signer signs swap intents with a secp256k1 key. It implements
// domain.WalletSigner.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key, with or without 0x.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// AddressFromKey returns the checksummed address of a hex private key.
func AddressFromKey(privateKeyHex string) (string, error) {
	s, err := NewSigner(privateKeyHex)
	if err != nil {
		return "", err
	}
	return s.PublicKey(), nil
}

// PublicKey returns the wallet address in checksum form.
func (s *Signer) PublicKey() string {
	return s.address.Hex()
}

// SignSwap returns the 65-byte r||s||v signature over the intent digest,
// hex encoded with a 0x prefix.
func (s *Signer) SignSwap(intent domain.SwapIntent) (string, error) {
	if !strings.EqualFold(intent.Wallet, s.address.Hex()) {
		return "", fmt.Errorf("crypto/signer: intent wallet %s is not %s: %w", intent.Wallet, s.address.Hex(), domain.ErrSigningFailed)
	}
	digest, err := SwapIntentDigest(intent)
	if err != nil {
		return "", err
	}
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign: %w: %w", domain.ErrSigningFailed, err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SwapIntentDigest is the typed-data hash a signature commits to:
// keccak256(0x1901 || domainSeparator(chain) || structHash(intent)).
func SwapIntentDigest(intent domain.SwapIntent) ([]byte, error) {
	in, err := toBaseUnits(intent.InAmount)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: in amount: %w", err)
	}
	minOut, err := toBaseUnits(intent.MinOutAmount)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: min out amount: %w", err)
	}
	if !common.IsHexAddress(intent.Wallet) {
		return nil, fmt.Errorf("crypto/signer: wallet %q is not an address: %w", intent.Wallet, domain.ErrSigningFailed)
	}

	domainSep := ethcrypto.Keccak256(concatBytes(
		domainTypeHash,
		ethcrypto.Keccak256([]byte("twapbot")),
		ethcrypto.Keccak256([]byte("1")),
		ethcrypto.Keccak256([]byte(strings.ToLower(intent.Chain))),
	))
	structHash := ethcrypto.Keccak256(concatBytes(
		swapIntentTypeHash,
		ethcrypto.Keccak256([]byte(intent.QuoteID)),
		common.LeftPadBytes(common.HexToAddress(intent.Wallet).Bytes(), 32),
		ethcrypto.Keccak256([]byte(intent.SourceAsset)),
		ethcrypto.Keccak256([]byte(intent.TargetAsset)),
		bigIntTo32Bytes(in),
		bigIntTo32Bytes(minOut),
		ethcrypto.Keccak256([]byte(intent.IdempotencyKey)),
		bigIntTo32Bytes(big.NewInt(intent.Deadline.Unix())),
	))
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash)), nil
}

// RecoverAddress returns the address that produced sig over digest.
func RecoverAddress(digest []byte, sigHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto/signer: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("crypto/signer: signature is %d bytes, want 65", len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}

func toBaseUnits(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", d)
	}
	return d.Shift(amountDecimals).Truncate(0).BigInt(), nil
}

// bigIntTo32Bytes returns n as a 32-byte big-endian word.
func bigIntTo32Bytes(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func concatBytes(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

var _ domain.WalletSigner = (*Signer)(nil)
