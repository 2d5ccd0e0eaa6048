package domain

import (
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// CloseInfo records how a position was closed. It is set at most once.
type CloseInfo struct {
	ClosedAt      time.Time        `json:"closed_at"`
	Reason        string           `json:"reason,omitempty"`
	ExitPrice     *decimal.Decimal `json:"exit_price,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
}

// Position is a holding nested under exactly one wallet of one account.
type Position struct {
	ID                string          `json:"id"`
	Chain             string          `json:"chain"`
	Token             string          `json:"token"`
	WalletPublicKey   string          `json:"wallet_public_key"`
	OrderID           string          `json:"order_id,omitempty"`
	SourceAmountSpent decimal.Decimal `json:"source_amount_spent"`
	AcquiredAmount    decimal.Decimal `json:"acquired_amount"`
	OpenedAt          time.Time       `json:"opened_at"`
	ExitConditions    *ExitThresholds `json:"exit_conditions,omitempty"`
	CloseInfo         *CloseInfo      `json:"close_info,omitempty"`
	Attributes        map[string]any  `json:"attributes,omitempty"`
}

// IsClosed reports whether a close event has been recorded.
func (p Position) IsClosed() bool {
	return p.CloseInfo != nil
}

// PositionDelta is a shallow patch. Unset options and absent attribute keys
// leave the existing values in place.
type PositionDelta struct {
	Token             optional.Option[string]
	SourceAmountSpent optional.Option[decimal.Decimal]
	AcquiredAmount    optional.Option[decimal.Decimal]
	ExitConditions    optional.Option[ExitThresholds]
	CloseInfo         optional.Option[CloseInfo]
	Attributes        map[string]any
}

// IsEmpty reports whether applying d would change nothing.
func (d PositionDelta) IsEmpty() bool {
	return d.Token.IsNone() && d.SourceAmountSpent.IsNone() && d.AcquiredAmount.IsNone() &&
		d.ExitConditions.IsNone() && d.CloseInfo.IsNone() && len(d.Attributes) == 0
}

// Apply returns p with d merged on top.
func (d PositionDelta) Apply(p Position) Position {
	if d.Token.IsSome() {
		p.Token = d.Token.Unwrap()
	}
	if d.SourceAmountSpent.IsSome() {
		p.SourceAmountSpent = d.SourceAmountSpent.Unwrap()
	}
	if d.AcquiredAmount.IsSome() {
		p.AcquiredAmount = d.AcquiredAmount.Unwrap()
	}
	if d.ExitConditions.IsSome() {
		ec := d.ExitConditions.Unwrap()
		p.ExitConditions = &ec
	}
	if d.CloseInfo.IsSome() {
		ci := d.CloseInfo.Unwrap()
		p.CloseInfo = &ci
	}
	if len(d.Attributes) > 0 {
		merged := make(map[string]any, len(p.Attributes)+len(d.Attributes))
		for k, v := range p.Attributes {
			merged[k] = v
		}
		for k, v := range d.Attributes {
			merged[k] = v
		}
		p.Attributes = merged
	}
	return p
}

// Wallet is a chain-specific wallet owned by an account.
type Wallet struct {
	Chain     string     `json:"chain"`
	PublicKey string     `json:"public_key"`
	Label     string     `json:"label,omitempty"`
	Positions []Position `json:"positions"`
}

// Account is the durable home of wallets and their nested positions. Version
// increases by one on every successful update.
type Account struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Wallets   []Wallet  `json:"wallets"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindWallet returns the index of the wallet matching chain and public key.
// Chain names compare case-insensitively.
func (a *Account) FindWallet(chain, publicKey string) (int, bool) {
	for i, w := range a.Wallets {
		if strings.EqualFold(w.Chain, chain) && w.PublicKey == publicKey {
			return i, true
		}
	}
	return -1, false
}

// FindPosition scans every wallet for the position id.
func (a *Account) FindPosition(positionID string) (walletIdx, posIdx int, ok bool) {
	for wi, w := range a.Wallets {
		for pi, p := range w.Positions {
			if p.ID == positionID {
				return wi, pi, true
			}
		}
	}
	return -1, -1, false
}

// Clone deep-copies the wallet and position slices so a mutation of the copy
// never leaks into the original.
func (a Account) Clone() Account {
	out := a
	out.Wallets = make([]Wallet, len(a.Wallets))
	for i, w := range a.Wallets {
		out.Wallets[i] = w
		out.Wallets[i].Positions = make([]Position, len(w.Positions))
		for j, p := range w.Positions {
			if p.Attributes != nil {
				attrs := make(map[string]any, len(p.Attributes))
				for k, v := range p.Attributes {
					attrs[k] = v
				}
				p.Attributes = attrs
			}
			out.Wallets[i].Positions[j] = p
		}
	}
	return out
}

// WalletRef identifies a wallet without its positions.
type WalletRef struct {
	Chain     string `json:"chain" validate:"required"`
	PublicKey string `json:"public_key" validate:"required"`
	Label     string `json:"label,omitempty"`
}

// Ref returns the wallet's identity.
func (w Wallet) Ref() WalletRef {
	return WalletRef{Chain: w.Chain, PublicKey: w.PublicKey, Label: w.Label}
}

// PositionView pairs a position with the wallet that holds it.
type PositionView struct {
	Wallet   WalletRef `json:"wallet"`
	Position Position  `json:"position"`
}
