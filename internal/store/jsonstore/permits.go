package jsonstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
)

// permitRecord is the JSON-on-disk shape of domain.Permit: big.Int/big.Rat
// and fixed-size byte arrays don't round-trip through encoding/json on
// their own, so every numeric/binary field is carried as a string.
type permitRecord struct {
	ID             string `json:"id"`
	UserAddress    string `json:"user_address"`
	AgentID        string `json:"agent_id"`
	Token          string `json:"token"`
	ChainID        uint64 `json:"chain_id"`
	SpenderAddress string `json:"spender_address"`
	Amount         string `json:"amount"`
	Nonce          string `json:"nonce"`
	Deadline       uint64 `json:"deadline"`

	SigR string `json:"sig_r"`
	SigS string `json:"sig_s"`
	SigV uint8  `json:"sig_v"`

	HasTokenPermit   bool   `json:"has_token_permit"`
	TokenPermitSigR  string `json:"token_permit_sig_r,omitempty"`
	TokenPermitSigS  string `json:"token_permit_sig_s,omitempty"`
	TokenPermitSigV  uint8  `json:"token_permit_sig_v,omitempty"`
	TokenPermitDeadline uint64 `json:"token_permit_deadline,omitempty"`

	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`

	MaxCalls    int64  `json:"max_calls"`
	CallsUsed   int64  `json:"calls_used"`
	CostPerCall string `json:"cost_per_call"` // big.Rat.String(), e.g. "1/1000"
}

func permitToRecord(p *domain.Permit) permitRecord {
	r := permitRecord{
		ID:             p.ID,
		UserAddress:    p.UserAddress,
		AgentID:        p.AgentID,
		Token:          p.Token,
		ChainID:        p.ChainID,
		SpenderAddress: p.SpenderAddress,
		Amount:         bigIntString(p.Amount),
		Nonce:          bigIntString(p.Nonce),
		Deadline:       p.Deadline,
		SigR:           hex.EncodeToString(p.Signature.R[:]),
		SigS:           hex.EncodeToString(p.Signature.S[:]),
		SigV:           p.Signature.V,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt.Unix(),
		ExpiresAt:      p.ExpiresAt.Unix(),
		MaxCalls:       p.MaxCalls,
		CallsUsed:      p.CallsUsed,
		CostPerCall:    bigRatString(p.CostPerCall),
	}
	if p.TokenPermitSig != nil {
		r.HasTokenPermit = true
		r.TokenPermitSigR = hex.EncodeToString(p.TokenPermitSig.R[:])
		r.TokenPermitSigS = hex.EncodeToString(p.TokenPermitSig.S[:])
		r.TokenPermitSigV = p.TokenPermitSig.V
		r.TokenPermitDeadline = p.TokenPermitSig.Deadline
	}
	return r
}

func recordToPermit(r permitRecord) (*domain.Permit, error) {
	amount, err := parseBigInt(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("permit %s: amount: %w", r.ID, err)
	}
	nonce, err := parseBigInt(r.Nonce)
	if err != nil {
		return nil, fmt.Errorf("permit %s: nonce: %w", r.ID, err)
	}
	cost, err := parseBigRat(r.CostPerCall)
	if err != nil {
		return nil, fmt.Errorf("permit %s: cost_per_call: %w", r.ID, err)
	}

	sigR, err := parseHash32(r.SigR)
	if err != nil {
		return nil, fmt.Errorf("permit %s: sig_r: %w", r.ID, err)
	}
	sigS, err := parseHash32(r.SigS)
	if err != nil {
		return nil, fmt.Errorf("permit %s: sig_s: %w", r.ID, err)
	}

	p := &domain.Permit{
		ID:             r.ID,
		UserAddress:    r.UserAddress,
		AgentID:        r.AgentID,
		Token:          r.Token,
		ChainID:        r.ChainID,
		SpenderAddress: r.SpenderAddress,
		Amount:         amount,
		Nonce:          nonce,
		Deadline:       r.Deadline,
		Signature:      domain.Signature{R: sigR, S: sigS, V: r.SigV},
		Status:         domain.PermitStatus(r.Status),
		CreatedAt:      time.Unix(r.CreatedAt, 0).UTC(),
		ExpiresAt:      time.Unix(r.ExpiresAt, 0).UTC(),
		MaxCalls:       r.MaxCalls,
		CallsUsed:      r.CallsUsed,
		CostPerCall:    cost,
	}
	if r.HasTokenPermit {
		tpR, err := parseHash32(r.TokenPermitSigR)
		if err != nil {
			return nil, fmt.Errorf("permit %s: token_permit_sig_r: %w", r.ID, err)
		}
		tpS, err := parseHash32(r.TokenPermitSigS)
		if err != nil {
			return nil, fmt.Errorf("permit %s: token_permit_sig_s: %w", r.ID, err)
		}
		p.TokenPermitSig = &domain.TokenPermitSig{
			Signature: domain.Signature{R: tpR, S: tpS, V: r.TokenPermitSigV},
			Deadline:  r.TokenPermitDeadline,
		}
	}
	return p, nil
}

func (s *Store) CreatePermit(ctx context.Context, p *domain.Permit) error {
	return s.permits.put(p.ID, permitToRecord(p))
}

func (s *Store) GetPermit(ctx context.Context, id string) (*domain.Permit, error) {
	r, ok := s.permits.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return recordToPermit(r)
}

func (s *Store) ListPermitsByUser(ctx context.Context, userAddress string) ([]*domain.Permit, error) {
	var out []*domain.Permit
	for _, r := range s.permits.all() {
		if r.UserAddress != userAddress {
			continue
		}
		p, err := recordToPermit(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdatePermitStatus(ctx context.Context, id string, status domain.PermitStatus) error {
	return s.permits.mutate(id, func(r permitRecord, ok bool) (permitRecord, error) {
		if !ok {
			return r, store.ErrNotFound
		}
		r.Status = string(status)
		return r, nil
	})
}

func (s *Store) UpdatePermitUsage(ctx context.Context, id string, callsUsed int64) error {
	return s.permits.mutate(id, func(r permitRecord, ok bool) (permitRecord, error) {
		if !ok {
			return r, store.ErrNotFound
		}
		r.CallsUsed = callsUsed
		return r, nil
	})
}

// --- shared numeric (de)serialization helpers ------------------------------

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBigInt(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func bigRatString(v *big.Rat) string {
	if v == nil {
		return "0"
	}
	return v.RatString()
}

func parseBigRat(s string) (*big.Rat, error) {
	if s == "" {
		return new(big.Rat), nil
	}
	v, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid rational %q", s)
	}
	return v, nil
}

func parseHash32(s string) ([32]byte, error) {
	var out [32]byte
	if s == "" {
		return out, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
