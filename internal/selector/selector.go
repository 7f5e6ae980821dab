// Package selector implements the Payment Selector (C9): given a user's
// permits and the cost of one call, picks which permit to draw against.
package selector

import (
	"math/big"
	"sort"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
)

// Select returns the permit that should be charged for one call costing
// costUSD against agent, or nil if none of permits can cover it.
//
// Preference order: a permit already denominated in the agent's payout
// token on the agent's payout chain (so settlement needs no burn-and-mint
// hop), then any USDC permit, then any other qualifying permit — largest
// remaining value first within each tier, ties broken by the newer permit.
// Callers are expected to have already dropped expired/revoked permits via
// domain.Permit.Eligible; Select re-checks RemainingValueUSD as a
// defensive floor regardless.
func Select(permits []*domain.Permit, agent *domain.Agent, costUSD *big.Rat) *domain.Permit {
	var payoutMatch, usdc, other []*domain.Permit

	for _, p := range permits {
		if p.Status != domain.PermitActive {
			continue
		}
		if p.RemainingValueUSD().Cmp(costUSD) < 0 {
			continue
		}
		switch {
		case p.Token == agent.PaymentPreferences.PayoutToken && p.ChainID == agent.PaymentPreferences.PayoutChainID:
			payoutMatch = append(payoutMatch, p)
		case p.Token == "USDC":
			usdc = append(usdc, p)
		default:
			other = append(other, p)
		}
	}

	for _, tier := range [][]*domain.Permit{payoutMatch, usdc, other} {
		if best := bestOf(tier); best != nil {
			return best
		}
	}
	return nil
}

// bestOf returns the permit with the largest remaining USD value in
// permits, ties broken by the most recently created permit. Returns nil for
// an empty slice.
func bestOf(permits []*domain.Permit) *domain.Permit {
	if len(permits) == 0 {
		return nil
	}
	sorted := make([]*domain.Permit, len(permits))
	copy(sorted, permits)
	sort.Slice(sorted, func(i, j int) bool {
		cmp := sorted[i].RemainingValueUSD().Cmp(sorted[j].RemainingValueUSD())
		if cmp != 0 {
			return cmp > 0
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted[0]
}
