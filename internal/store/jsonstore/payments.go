package jsonstore

import (
	"context"
	"fmt"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
)

type paymentRecord struct {
	ID                  string `json:"id"`
	Amount              string `json:"amount"`
	Token               string `json:"token"`
	Network             uint64 `json:"network"`
	TransactionHash     string `json:"transaction_hash"`
	Status              string `json:"status"`
	APICallID           string `json:"api_call_id"`
	MessageHash         string `json:"message_hash"`
	CrossChainPaymentID string `json:"cross_chain_payment_id"`
	CreatedAt           int64  `json:"created_at"`
}

func paymentToRecord(p *domain.Payment) paymentRecord {
	return paymentRecord{
		ID:                  p.ID,
		Amount:              bigIntString(p.Amount),
		Token:               p.Token,
		Network:             p.Network,
		TransactionHash:     p.TransactionHash,
		Status:              string(p.Status),
		APICallID:           p.APICallID,
		MessageHash:         p.MessageHash,
		CrossChainPaymentID: p.CrossChainPaymentID,
		CreatedAt:           p.CreatedAt.Unix(),
	}
}

func recordToPayment(r paymentRecord) (*domain.Payment, error) {
	amount, err := parseBigInt(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("payment %s: amount: %w", r.ID, err)
	}
	return &domain.Payment{
		ID:                  r.ID,
		Amount:              amount,
		Token:               r.Token,
		Network:             r.Network,
		TransactionHash:     r.TransactionHash,
		Status:              domain.PaymentStatus(r.Status),
		APICallID:           r.APICallID,
		MessageHash:         r.MessageHash,
		CrossChainPaymentID: r.CrossChainPaymentID,
		CreatedAt:           time.Unix(r.CreatedAt, 0).UTC(),
	}, nil
}

// CreatePayment enforces at-most-once billing per API call (P2): if
// APICallID already maps to a payment, the write is rejected rather than
// silently duplicated, so callers must check GetPaymentByAPICallID first
// and treat a conflict here as a concurrent duplicate request.
func (s *Store) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if p.APICallID != "" {
		s.apiCallMu.Lock()
		if existing, ok := s.apiCallIndex[p.APICallID]; ok && existing != p.ID {
			s.apiCallMu.Unlock()
			return apperr.New(apperr.DuplicateCall, fmt.Sprintf("payment already recorded for api_call_id %s", p.APICallID))
		}
		s.apiCallIndex[p.APICallID] = p.ID
		s.apiCallMu.Unlock()
	}
	return s.payments.put(p.ID, paymentToRecord(p))
}

func (s *Store) GetPaymentByAPICallID(ctx context.Context, apiCallID string) (*domain.Payment, error) {
	s.apiCallMu.RLock()
	id, ok := s.apiCallIndex[apiCallID]
	s.apiCallMu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	r, ok := s.payments.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return recordToPayment(r)
}
