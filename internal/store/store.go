// Package store defines the Permit Store contract: CRUD over permits,
// payments, cross-chain payments, subscriptions, and call logs. The
// interface is the contract (§4.4); internal/store/jsonstore provides a
// file-backed default implementation, but any ACID key-value or row store
// satisfying this interface is a valid backend.
package store

import (
	"context"
	"errors"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
)

// ErrNotFound is returned when a lookup by id misses.
var ErrNotFound = errors.New("store: not found")

// Store is the full persistence contract owned by the Permit Store
// component. Every mutating method must be atomic per record; readers may
// run concurrently with writers.
type Store interface {
	// Permits
	CreatePermit(ctx context.Context, p *domain.Permit) error
	GetPermit(ctx context.Context, id string) (*domain.Permit, error)
	ListPermitsByUser(ctx context.Context, userAddress string) ([]*domain.Permit, error)
	UpdatePermitStatus(ctx context.Context, id string, status domain.PermitStatus) error
	UpdatePermitUsage(ctx context.Context, id string, callsUsed int64) error

	// Cross-chain payments
	CreateCrossChainPayment(ctx context.Context, p *domain.CrossChainPayment) error
	GetCrossChainPayment(ctx context.Context, id string) (*domain.CrossChainPayment, error)
	UpdateCrossChainPayment(ctx context.Context, id string, patch CrossChainPaymentPatch) error
	ListPendingCrossChainPayments(ctx context.Context) ([]*domain.CrossChainPayment, error)

	// Payments (idempotent on APICallID — at-most-once per call, P2)
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPaymentByAPICallID(ctx context.Context, apiCallID string) (*domain.Payment, error)

	// Subscriptions
	GetSubscription(ctx context.Context, userID, agentID string) (*domain.Subscription, error)
	UpdateSubscriptionUsage(ctx context.Context, id string, wasFreeTrial bool) error

	// Call log
	LogAPICall(ctx context.Context, l *domain.APICallLog) error
}

// CrossChainPaymentPatch describes a partial update to a CrossChainPayment;
// nil/zero fields are left unchanged.
type CrossChainPaymentPatch struct {
	AttestationStatus     *domain.AttestationStatus
	TargetTransactionHash *string
	CompletedAt           *int64 // unix seconds; nil leaves unchanged
	ErrorMessage          *string
}
