package jsonstore

import (
	"context"
	"fmt"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
)

type crossChainRecord struct {
	ID                    string `json:"id"`
	UserID                string `json:"user_id"`
	AgentID               string `json:"agent_id"`
	SourceChainID         uint64 `json:"source_chain_id"`
	TargetChainID         uint64 `json:"target_chain_id"`
	Amount                string `json:"amount"`
	Token                 string `json:"token"`
	MessageHash           string `json:"message_hash"`
	SourceTransactionHash string `json:"source_transaction_hash"`
	TargetTransactionHash string `json:"target_transaction_hash"`
	AttestationStatus     string `json:"attestation_status"`
	PermitID              string `json:"permit_id"`
	CreatedAt             int64  `json:"created_at"`
	CompletedAt           int64  `json:"completed_at"` // 0 until finalized
	ErrorMessage          string `json:"error_message"`
}

func crossChainToRecord(p *domain.CrossChainPayment) crossChainRecord {
	r := crossChainRecord{
		ID:                    p.ID,
		UserID:                p.UserID,
		AgentID:               p.AgentID,
		SourceChainID:         p.SourceChainID,
		TargetChainID:         p.TargetChainID,
		Amount:                bigIntString(p.Amount),
		Token:                 p.Token,
		MessageHash:           p.MessageHash,
		SourceTransactionHash: p.SourceTransactionHash,
		TargetTransactionHash: p.TargetTransactionHash,
		AttestationStatus:     string(p.AttestationStatus),
		PermitID:              p.PermitID,
		CreatedAt:             p.CreatedAt.Unix(),
		ErrorMessage:          p.ErrorMessage,
	}
	if !p.CompletedAt.IsZero() {
		r.CompletedAt = p.CompletedAt.Unix()
	}
	return r
}

func recordToCrossChain(r crossChainRecord) (*domain.CrossChainPayment, error) {
	amount, err := parseBigInt(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("cross-chain payment %s: amount: %w", r.ID, err)
	}
	p := &domain.CrossChainPayment{
		ID:                    r.ID,
		UserID:                r.UserID,
		AgentID:               r.AgentID,
		SourceChainID:         r.SourceChainID,
		TargetChainID:         r.TargetChainID,
		Amount:                amount,
		Token:                 r.Token,
		MessageHash:           r.MessageHash,
		SourceTransactionHash: r.SourceTransactionHash,
		TargetTransactionHash: r.TargetTransactionHash,
		AttestationStatus:     domain.AttestationStatus(r.AttestationStatus),
		PermitID:              r.PermitID,
		CreatedAt:             time.Unix(r.CreatedAt, 0).UTC(),
		ErrorMessage:          r.ErrorMessage,
	}
	if r.CompletedAt != 0 {
		p.CompletedAt = time.Unix(r.CompletedAt, 0).UTC()
	}
	return p, nil
}

func (s *Store) CreateCrossChainPayment(ctx context.Context, p *domain.CrossChainPayment) error {
	return s.crossChain.put(p.ID, crossChainToRecord(p))
}

func (s *Store) GetCrossChainPayment(ctx context.Context, id string) (*domain.CrossChainPayment, error) {
	r, ok := s.crossChain.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return recordToCrossChain(r)
}

func (s *Store) UpdateCrossChainPayment(ctx context.Context, id string, patch store.CrossChainPaymentPatch) error {
	return s.crossChain.mutate(id, func(r crossChainRecord, ok bool) (crossChainRecord, error) {
		if !ok {
			return r, store.ErrNotFound
		}
		if patch.AttestationStatus != nil {
			r.AttestationStatus = string(*patch.AttestationStatus)
		}
		if patch.TargetTransactionHash != nil {
			r.TargetTransactionHash = *patch.TargetTransactionHash
		}
		if patch.CompletedAt != nil {
			r.CompletedAt = *patch.CompletedAt
		}
		if patch.ErrorMessage != nil {
			r.ErrorMessage = *patch.ErrorMessage
		}
		return r, nil
	})
}

// ListPendingCrossChainPayments returns every row whose attestation has
// neither completed nor failed, for the reconciler's resume loop.
func (s *Store) ListPendingCrossChainPayments(ctx context.Context) ([]*domain.CrossChainPayment, error) {
	var out []*domain.CrossChainPayment
	for _, r := range s.crossChain.all() {
		if domain.AttestationStatus(r.AttestationStatus) != domain.AttestationPending {
			continue
		}
		p, err := recordToCrossChain(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
