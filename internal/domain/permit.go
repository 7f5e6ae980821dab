// Package domain holds the core entities of the payment router: permits,
// subscriptions, agents, and the payment records that accumulate against
// them. Nothing outside internal/store mutates these directly.
package domain

import (
	"math/big"
	"time"
)

// PermitStatus is the lifecycle status of a stored permit.
type PermitStatus string

const (
	PermitActive   PermitStatus = "active"
	PermitExpired  PermitStatus = "expired"
	PermitRevoked  PermitStatus = "revoked"
)

// Signature is an (r, s, v) ECDSA signature triple, stored and transported
// separately and concatenated on-chain as r‖s‖v.
type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

// TokenPermitSig is an EIP-2612 signature authorizing the AllowanceVault to
// draw from the signer's stablecoin balance.
type TokenPermitSig struct {
	Signature
	Deadline uint64
}

// Permit is an off-chain EIP-712 authorization to move stablecoin on behalf
// of UserAddress, submitted on-chain by the admin at per-call granularity.
type Permit struct {
	ID             string
	UserAddress    string // lowercased 0x-prefixed address
	AgentID        string // optional
	Token          string // symbol, e.g. "USDC"
	ChainID        uint64
	SpenderAddress string // admin address, constant within a deployment

	Amount   *big.Int // base units, 6-decimal stablecoins
	Nonce    *big.Int
	Deadline uint64 // unix seconds

	Signature      Signature
	TokenPermitSig *TokenPermitSig // present only when an approval hop is needed

	Status PermitStatus

	CreatedAt time.Time
	ExpiresAt time.Time

	MaxCalls    int64
	CallsUsed   int64
	CostPerCall *big.Rat // USD fixed-point
}

// RemainingCalls is maxCalls - callsUsed, floored at zero.
func (p *Permit) RemainingCalls() int64 {
	r := p.MaxCalls - p.CallsUsed
	if r < 0 {
		return 0
	}
	return r
}

// PerCallAmount is the base-unit amount drawn for a single call, assuming
// the permit's signed Amount is spread evenly across MaxCalls.
func (p *Permit) PerCallAmount() *big.Int {
	if p.MaxCalls == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Div(p.Amount, big.NewInt(p.MaxCalls))
}

// RemainingValueUSD is the USD value still drawable against this permit.
func (p *Permit) RemainingValueUSD() *big.Rat {
	remaining := big.NewRat(p.RemainingCalls(), 1)
	return new(big.Rat).Mul(remaining, p.CostPerCall)
}

// Eligible reports whether the permit can cover one more call of the given
// cost and is not expired/revoked.
func (p *Permit) Eligible(costUSD *big.Rat, now time.Time) bool {
	if p.Status != PermitActive {
		return false
	}
	if p.RemainingCalls() <= 0 {
		return false
	}
	if uint64(now.Unix()) >= p.Deadline {
		return false
	}
	return p.RemainingValueUSD().Cmp(costUSD) >= 0
}
