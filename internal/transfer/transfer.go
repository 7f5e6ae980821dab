// Package transfer implements the Transfer Engine (C8): decides whether a
// charge can settle on one chain or needs the burn-and-mint cross-chain
// path, and drives whichever applies. The cross-chain path moves a single
// CrossChainPayment record through the lifecycle
// created -> burning -> awaiting-attestation -> redeeming -> complete,
// with a failed branch off every step, persisting to the Permit Store at
// the one point (after the burn, before the attestation wait) where a
// crash would otherwise lose track of funds in flight.
package transfer

import (
	"context"
	"math/big"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/adminsigner"
	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/attestation"
	"github.com/bitsandtea/agent-mrkt/internal/chainclient"
	"github.com/bitsandtea/agent-mrkt/internal/chainregistry"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	erc20              = mustParseABI(erc20ABIJSON)
	tokenMessenger     = mustParseABI(tokenMessengerABIJSON)
	messageTransmitter = mustParseABI(messageTransmitterABIJSON)
)

// messageSentTopic is keccak256("MessageSent(bytes)"), fixed by the
// burn-and-mint protocol across every deployment.
var messageSentTopic = common.HexToHash("0x8c5261668696ce22758910d05bab8f186d6eb247ceac2af2e82c7dc17669b036")

// TransferType selects the burn's finality threshold.
type TransferType string

const (
	TransferFast     TransferType = "fast"
	TransferStandard TransferType = "standard"
)

// Engine drives settlement for one charge.
type Engine struct {
	registry    *chainregistry.Registry
	clients     map[uint64]*chainclient.Client
	signer      *adminsigner.Signer
	attestation *attestation.Client
	store       store.Store
	now         func() time.Time
}

// New builds an Engine.
func New(registry *chainregistry.Registry, clients map[uint64]*chainclient.Client, signer *adminsigner.Signer, attestationClient *attestation.Client, st store.Store) *Engine {
	return &Engine{
		registry:    registry,
		clients:     clients,
		signer:      signer,
		attestation: attestationClient,
		store:       st,
		now:         time.Now,
	}
}

func (e *Engine) clientFor(chainID uint64) (*chainclient.Client, error) {
	c, ok := e.clients[chainID]
	if !ok {
		return nil, apperr.New(apperr.UnsupportedChain, "no chain client configured")
	}
	return c, nil
}

// Request describes one charge to settle, derived from the matched permit
// and the agent's payout preferences.
type Request struct {
	PermitID         string
	UserID           string
	AgentID          string
	UserAddress      common.Address
	PublisherAddress common.Address

	Token         string // permit's token symbol, e.g. "USDC"
	SourceChainID uint64 // permit.ChainID

	PayoutToken   string // agent.PaymentPreferences.PayoutToken
	PayoutChainID uint64 // agent.PaymentPreferences.PayoutChainID

	Amount       *big.Int
	TransferType TransferType
}

func (r Request) isSameChain() bool {
	return r.Token == r.PayoutToken && r.SourceChainID == r.PayoutChainID
}

// Result is what the caller needs to record a Payment.
type Result struct {
	TransactionHash     string
	MessageHash         string // empty for the same-chain path
	CrossChainPaymentID string // empty for the same-chain path
}

// Transfer settles req, choosing the same-chain or cross-chain path.
func (e *Engine) Transfer(ctx context.Context, req Request) (*Result, error) {
	if req.isSameChain() {
		return e.transferSameChain(ctx, req)
	}
	return e.transferCrossChain(ctx, req)
}

// transferSameChain moves funds directly from user to publisher via the
// admin's AllowanceVault-granted transferFrom permission. Completes
// synchronously.
func (e *Engine) transferSameChain(ctx context.Context, req Request) (*Result, error) {
	client, err := e.clientFor(req.SourceChainID)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := e.registry.TokenAddress(req.Token, req.SourceChainID)
	if err != nil {
		return nil, err
	}

	data, err := erc20.Pack("transferFrom", req.UserAddress, req.PublisherAddress, req.Amount)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack transferFrom", err)
	}

	queue := e.signer.QueueFor(req.SourceChainID)
	txHash, _, err := adminsigner.WriteAndWait(ctx, queue, client, e.signer, chainclient.WriteCall{To: tokenAddr, Data: data}, apperr.ApiCallFailed)
	if err != nil {
		return nil, err
	}
	return &Result{TransactionHash: txHash.Hex()}, nil
}

// transferCrossChain runs the full burn-and-mint sequence (§4.8).
func (e *Engine) transferCrossChain(ctx context.Context, req Request) (*Result, error) {
	// Gate: the burn-mint protocol only moves USDC.
	if req.Token != "USDC" {
		return nil, apperr.New(apperr.UnsupportedRoute, "cross-chain transfers are only supported for USDC")
	}

	sourceClient, err := e.clientFor(req.SourceChainID)
	if err != nil {
		return nil, err
	}
	targetClient, err := e.clientFor(req.PayoutChainID)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := e.registry.TokenAddress(req.Token, req.SourceChainID)
	if err != nil {
		return nil, err
	}
	tokenMessengerAddr, err := e.registry.TokenMessengerAddress(req.SourceChainID)
	if err != nil {
		return nil, err
	}
	messageTransmitterAddr, err := e.registry.MessageTransmitterAddress(req.PayoutChainID)
	if err != nil {
		return nil, err
	}
	destinationDomain, ok := e.registry.DestinationDomain(req.PayoutChainID)
	if !ok {
		return nil, apperr.New(apperr.UnsupportedRoute, "target chain has no configured destination domain")
	}
	sourceDomain, ok := e.registry.DestinationDomain(req.SourceChainID)
	if !ok {
		return nil, apperr.New(apperr.UnsupportedRoute, "source chain has no configured destination domain")
	}

	sourceQueue := e.signer.QueueFor(req.SourceChainID)

	// Step 1: pull to admin. The pull's destination is always this Engine's
	// own signer, never caller-supplied, so a forgetful caller can't route
	// pulled funds anywhere else.
	pullData, err := erc20.Pack("transferFrom", req.UserAddress, e.signer.Address(), req.Amount)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack transferFrom", err)
	}
	if _, _, err := adminsigner.WriteAndWait(ctx, sourceQueue, sourceClient, e.signer, chainclient.WriteCall{To: tokenAddr, Data: pullData}, apperr.ApiCallFailed); err != nil {
		return nil, err
	}

	// Step 2: approve the burner.
	approveData, err := erc20.Pack("approve", tokenMessengerAddr, req.Amount)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack approve", err)
	}
	if _, _, err := adminsigner.WriteAndWait(ctx, sourceQueue, sourceClient, e.signer, chainclient.WriteCall{To: tokenAddr, Data: approveData}, apperr.ApiCallFailed); err != nil {
		return nil, err
	}

	// Step 3: burn.
	maxFee := new(big.Int).Div(new(big.Int).Mul(req.Amount, big.NewInt(5)), big.NewInt(1000))
	finalityThreshold := uint32(2000)
	if req.TransferType == TransferFast {
		finalityThreshold = 1000
	}
	burnData, err := tokenMessenger.Pack("depositForBurn", req.Amount, destinationDomain, addressToBytes32(req.PublisherAddress), tokenAddr, [32]byte{}, maxFee, finalityThreshold)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack depositForBurn", err)
	}
	burnTxHash, burnReceipt, err := adminsigner.WriteAndWait(ctx, sourceQueue, sourceClient, e.signer, chainclient.WriteCall{To: tokenMessengerAddr, Data: burnData}, apperr.ApiCallFailed)
	if err != nil {
		return nil, err
	}

	// Step 4: extract messageHash and persist before waiting on
	// attestation, so a crash here leaves a recoverable record.
	messageHash, err := extractMessageHash(burnReceipt)
	if err != nil {
		return nil, err
	}

	payment := &domain.CrossChainPayment{
		ID:                    uuid.NewString(),
		UserID:                req.UserID,
		AgentID:               req.AgentID,
		SourceChainID:         req.SourceChainID,
		TargetChainID:         req.PayoutChainID,
		Amount:                req.Amount,
		Token:                 req.Token,
		MessageHash:           messageHash.Hex(),
		SourceTransactionHash: burnTxHash.Hex(),
		AttestationStatus:     domain.AttestationPending,
		PermitID:              req.PermitID,
		CreatedAt:             e.now(),
	}
	if err := e.store.CreateCrossChainPayment(ctx, payment); err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "persist cross-chain payment", err)
	}

	// Step 5: await attestation.
	blob, err := e.attestation.WaitV2(ctx, sourceDomain, burnTxHash.Hex())
	if err != nil {
		e.markFailed(ctx, payment.ID, err)
		return nil, apperr.Wrap(apperr.AttestationFailed, "attestation wait failed", err)
	}

	// Step 6: redeem.
	redeemData, err := messageTransmitter.Pack("receiveMessage", common.FromHex(blob.Message), common.FromHex(blob.Attestation))
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack receiveMessage", err)
	}
	targetQueue := e.signer.QueueFor(req.PayoutChainID)
	redeemTxHash, _, err := adminsigner.WriteAndWait(ctx, targetQueue, targetClient, e.signer, chainclient.WriteCall{To: messageTransmitterAddr, Data: redeemData}, apperr.ApiCallFailed)
	if err != nil {
		e.markFailed(ctx, payment.ID, err)
		return nil, err
	}

	// Step 7: finalize.
	complete := domain.AttestationComplete
	targetHash := redeemTxHash.Hex()
	completedAt := e.now().Unix()
	if err := e.store.UpdateCrossChainPayment(ctx, payment.ID, store.CrossChainPaymentPatch{
		AttestationStatus:     &complete,
		TargetTransactionHash: &targetHash,
		CompletedAt:           &completedAt,
	}); err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "finalize cross-chain payment", err)
	}
	return &Result{
		TransactionHash:     targetHash,
		MessageHash:         messageHash.Hex(),
		CrossChainPaymentID: payment.ID,
	}, nil
}

func (e *Engine) markFailed(ctx context.Context, paymentID string, cause error) {
	failed := domain.AttestationFailed
	msg := cause.Error()
	_ = e.store.UpdateCrossChainPayment(ctx, paymentID, store.CrossChainPaymentPatch{AttestationStatus: &failed, ErrorMessage: &msg})
}

// addressToBytes32 left-pads addr into the bytes32 layout depositForBurn's
// mintRecipient expects.
func addressToBytes32(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], addr.Bytes())
	return out
}

// extractMessageHash pulls the MessageSent(bytes) log out of the burn
// receipt and hashes its raw payload; the payload itself is not ABI-decoded,
// since the attestation provider keys on the keccak of the opaque message.
func extractMessageHash(receipt *types.Receipt) (common.Hash, error) {
	for _, log := range receipt.Logs {
		if len(log.Topics) > 0 && log.Topics[0] == messageSentTopic {
			return crypto.Keccak256Hash(log.Data), nil
		}
	}
	return common.Hash{}, apperr.New(apperr.InternalError, "burn receipt missing MessageSent log")
}
