package selector

import (
	"math/big"
	"testing"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
)

func testPermit(id, token string, chainID uint64, remainingCalls int64, costPerCall *big.Rat, createdAt time.Time) *domain.Permit {
	return &domain.Permit{
		ID:          id,
		Token:       token,
		ChainID:     chainID,
		Status:      domain.PermitActive,
		MaxCalls:    remainingCalls,
		CallsUsed:   0,
		CostPerCall: costPerCall,
		CreatedAt:   createdAt,
	}
}

func TestSelectPrefersPayoutTokenAndChainMatch(t *testing.T) {
	agent := &domain.Agent{PaymentPreferences: domain.PaymentPreferences{PayoutToken: "USDC", PayoutChainID: 8453}}
	cost := big.NewRat(1, 100)
	now := time.Now()

	matching := testPermit("match", "USDC", 8453, 100, big.NewRat(1, 100), now)
	other := testPermit("other-chain", "USDC", 10, 1000, big.NewRat(1, 100), now)

	got := Select([]*domain.Permit{other, matching}, agent, cost)
	if got == nil || got.ID != "match" {
		t.Fatalf("expected payout-match permit, got %+v", got)
	}
}

func TestSelectFallsBackToUSDCThenOther(t *testing.T) {
	agent := &domain.Agent{PaymentPreferences: domain.PaymentPreferences{PayoutToken: "PYUSD", PayoutChainID: 1}}
	cost := big.NewRat(1, 100)
	now := time.Now()

	usdc := testPermit("usdc", "USDC", 8453, 100, big.NewRat(1, 100), now)
	weth := testPermit("weth", "WETH", 8453, 100, big.NewRat(1, 100), now)

	got := Select([]*domain.Permit{weth, usdc}, agent, cost)
	if got == nil || got.ID != "usdc" {
		t.Fatalf("expected USDC permit preferred over other token, got %+v", got)
	}

	got = Select([]*domain.Permit{weth}, agent, cost)
	if got == nil || got.ID != "weth" {
		t.Fatalf("expected the only qualifying permit to be selected, got %+v", got)
	}
}

func TestSelectPicksLargestRemainingValueWithinTier(t *testing.T) {
	agent := &domain.Agent{PaymentPreferences: domain.PaymentPreferences{PayoutToken: "USDC", PayoutChainID: 8453}}
	cost := big.NewRat(1, 100)
	now := time.Now()

	small := testPermit("small", "USDC", 8453, 10, big.NewRat(1, 100), now)
	large := testPermit("large", "USDC", 8453, 1000, big.NewRat(1, 100), now)

	got := Select([]*domain.Permit{small, large}, agent, cost)
	if got == nil || got.ID != "large" {
		t.Fatalf("expected largest remaining value permit, got %+v", got)
	}
}

func TestSelectBreaksTiesByNewest(t *testing.T) {
	agent := &domain.Agent{PaymentPreferences: domain.PaymentPreferences{PayoutToken: "USDC", PayoutChainID: 8453}}
	cost := big.NewRat(1, 100)

	older := testPermit("older", "USDC", 8453, 100, big.NewRat(1, 100), time.Now().Add(-time.Hour))
	newer := testPermit("newer", "USDC", 8453, 100, big.NewRat(1, 100), time.Now())

	got := Select([]*domain.Permit{older, newer}, agent, cost)
	if got == nil || got.ID != "newer" {
		t.Fatalf("expected newer permit on tie, got %+v", got)
	}
}

func TestSelectReturnsNilWhenNoneQualify(t *testing.T) {
	agent := &domain.Agent{PaymentPreferences: domain.PaymentPreferences{PayoutToken: "USDC", PayoutChainID: 8453}}
	cost := big.NewRat(1, 10) // $0.10 cost

	tooSmall := testPermit("too-small", "USDC", 8453, 1, big.NewRat(1, 1000), time.Now())

	got := Select([]*domain.Permit{tooSmall}, agent, cost)
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}

	revoked := testPermit("revoked", "USDC", 8453, 1000, big.NewRat(1, 100), time.Now())
	revoked.Status = domain.PermitRevoked
	got = Select([]*domain.Permit{revoked}, agent, cost)
	if got != nil {
		t.Fatalf("expected nil for revoked permit, got %+v", got)
	}
}
