package domain

import (
	"math/big"
	"time"
)

// AttestationStatus mirrors the lifecycle of a burn-and-mint message as
// tracked by the attestation provider.
type AttestationStatus string

const (
	AttestationPending  AttestationStatus = "pending"
	AttestationComplete AttestationStatus = "complete"
	AttestationFailed   AttestationStatus = "failed"
)

// CrossChainPayment is the persisted record of a single burn-and-mint
// transfer. It is created right after the burn transaction lands (so a crash
// between burn and redeem leaves a recoverable row) and finalized on mint.
type CrossChainPayment struct {
	ID                   string
	UserID               string
	AgentID              string
	SourceChainID        uint64
	TargetChainID        uint64
	Amount               *big.Int
	Token                string
	MessageHash          string
	SourceTransactionHash string
	TargetTransactionHash string // empty until redeemed
	AttestationStatus    AttestationStatus
	PermitID             string
	CreatedAt             time.Time
	CompletedAt           time.Time // zero until finalized
	ErrorMessage          string
}
