package jsonstore

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPermitRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &domain.Permit{
		ID:             "permit-1",
		UserAddress:    "0xabc",
		AgentID:        "agent-1",
		Token:          "0xtoken",
		ChainID:        8453,
		SpenderAddress: "0xspender",
		Amount:         big.NewInt(1_000_000),
		Nonce:          big.NewInt(0),
		Deadline:       1893456000,
		Signature:      domain.Signature{V: 27},
		Status:         domain.PermitActive,
		CreatedAt:      time.Unix(1700000000, 0).UTC(),
		ExpiresAt:      time.Unix(1893456000, 0).UTC(),
		MaxCalls:       100,
		CallsUsed:      0,
		CostPerCall:    big.NewRat(1, 1000),
	}
	if err := s.CreatePermit(ctx, p); err != nil {
		t.Fatalf("CreatePermit: %v", err)
	}

	got, err := s.GetPermit(ctx, "permit-1")
	if err != nil {
		t.Fatalf("GetPermit: %v", err)
	}
	if got.Amount.Cmp(p.Amount) != 0 || got.UserAddress != p.UserAddress || got.Status != domain.PermitActive {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := s.UpdatePermitUsage(ctx, "permit-1", 5); err != nil {
		t.Fatalf("UpdatePermitUsage: %v", err)
	}
	got, _ = s.GetPermit(ctx, "permit-1")
	if got.CallsUsed != 5 {
		t.Fatalf("calls used not updated: %d", got.CallsUsed)
	}

	list, err := s.ListPermitsByUser(ctx, "0xabc")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListPermitsByUser: %v, %d results", err, len(list))
	}

	// a second store opened against the same directory must see the data.
	reopened, err := New(s.dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reopened.GetPermit(ctx, "permit-1"); err != nil {
		t.Fatalf("permit lost across reopen: %v", err)
	}
}

func TestGetPermitNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetPermit(context.Background(), "missing"); err != store.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPaymentIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &domain.Payment{
		ID:        "payment-1",
		Amount:    big.NewInt(500),
		Token:     "USDC",
		Network:   8453,
		Status:    domain.PaymentCompleted,
		APICallID: "call-1",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	dup := &domain.Payment{ID: "payment-2", APICallID: "call-1", Amount: big.NewInt(0), CreatedAt: p.CreatedAt}
	if err := s.CreatePayment(ctx, dup); err == nil {
		t.Fatalf("expected duplicate api_call_id to be rejected")
	}

	got, err := s.GetPaymentByAPICallID(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetPaymentByAPICallID: %v", err)
	}
	if got.ID != "payment-1" {
		t.Fatalf("got payment %s, want payment-1", got.ID)
	}

	// index is rebuilt correctly on reopen too.
	reopened, err := New(s.dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reopened.GetPaymentByAPICallID(ctx, "call-1"); err != nil {
		t.Fatalf("index not rebuilt on reopen: %v", err)
	}
}

func TestCrossChainPaymentPatchAndPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ccp := &domain.CrossChainPayment{
		ID:                "ccp-1",
		UserID:            "user-1",
		AgentID:           "agent-1",
		SourceChainID:     1,
		TargetChainID:     8453,
		Amount:            big.NewInt(42),
		Token:             "USDC",
		MessageHash:       "0xmsg",
		AttestationStatus: domain.AttestationPending,
		CreatedAt:         time.Unix(1700000000, 0).UTC(),
	}
	if err := s.CreateCrossChainPayment(ctx, ccp); err != nil {
		t.Fatalf("CreateCrossChainPayment: %v", err)
	}

	pending, err := s.ListPendingCrossChainPayments(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListPendingCrossChainPayments: %v, %d results", err, len(pending))
	}

	complete := domain.AttestationComplete
	txHash := "0xredeemed"
	completedAt := int64(1700001000)
	err = s.UpdateCrossChainPayment(ctx, "ccp-1", store.CrossChainPaymentPatch{
		AttestationStatus:     &complete,
		TargetTransactionHash: &txHash,
		CompletedAt:           &completedAt,
	})
	if err != nil {
		t.Fatalf("UpdateCrossChainPayment: %v", err)
	}

	pending, _ = s.ListPendingCrossChainPayments(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected no pending payments after completion, got %d", len(pending))
	}

	got, _ := s.GetCrossChainPayment(ctx, "ccp-1")
	if got.TargetTransactionHash != "0xredeemed" || got.AttestationStatus != domain.AttestationComplete {
		t.Fatalf("patch not applied: %+v", got)
	}
}

func TestSubscriptionUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := &domain.Subscription{
		ID:                  "sub-1",
		UserID:              "user-1",
		AgentID:             "agent-1",
		Status:              domain.SubscriptionActive,
		FreeTrialsRemaining: 1,
		CreatedAt:           time.Unix(1700000000, 0).UTC(),
	}
	if err := s.PutSubscription(ctx, sub); err != nil {
		t.Fatalf("PutSubscription: %v", err)
	}

	got, err := s.GetSubscription(ctx, "user-1", "agent-1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if !got.IsFreeTrial() {
		t.Fatalf("expected free trial available")
	}

	if err := s.UpdateSubscriptionUsage(ctx, "sub-1", true); err != nil {
		t.Fatalf("UpdateSubscriptionUsage: %v", err)
	}
	got, _ = s.GetSubscription(ctx, "user-1", "agent-1")
	if got.FreeTrialsRemaining != 0 || got.FreeTrialsUsed != 1 {
		t.Fatalf("free trial usage not recorded: %+v", got)
	}

	if err := s.UpdateSubscriptionUsage(ctx, "sub-1", false); err != nil {
		t.Fatalf("UpdateSubscriptionUsage paid: %v", err)
	}
	got, _ = s.GetSubscription(ctx, "user-1", "agent-1")
	if got.TotalPaidCalls != 1 {
		t.Fatalf("paid call not recorded: %+v", got)
	}
}

func TestLogAPICall(t *testing.T) {
	s := newTestStore(t)
	log := &domain.APICallLog{
		ID:               "log-1",
		UserID:           "user-1",
		AgentID:          "agent-1",
		RequestTimestamp: time.Unix(1700000000, 0).UTC(),
		HTTPStatus:       200,
		ChargedAmountUSD: big.NewRat(1, 100),
	}
	if err := s.LogAPICall(context.Background(), log); err != nil {
		t.Fatalf("LogAPICall: %v", err)
	}
}
