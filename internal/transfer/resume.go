package transfer

import (
	"context"

	"github.com/bitsandtea/agent-mrkt/internal/adminsigner"
	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/chainclient"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

// ResumePending re-enters the cross-chain path at the attestation wait for
// a payment a crash or restart left in domain.AttestationPending. It never
// repeats the burn: payment.MessageHash and SourceTransactionHash already
// exist, so this is steps 5-7 of transferCrossChain only.
func (e *Engine) ResumePending(ctx context.Context, payment *domain.CrossChainPayment) (*Result, error) {
	if payment.AttestationStatus != domain.AttestationPending {
		return nil, apperr.New(apperr.ValidationError, "payment is not awaiting attestation")
	}

	targetClient, err := e.clientFor(payment.TargetChainID)
	if err != nil {
		return nil, err
	}
	messageTransmitterAddr, err := e.registry.MessageTransmitterAddress(payment.TargetChainID)
	if err != nil {
		return nil, err
	}
	sourceDomain, ok := e.registry.DestinationDomain(payment.SourceChainID)
	if !ok {
		return nil, apperr.New(apperr.UnsupportedRoute, "source chain has no configured destination domain")
	}

	blob, err := e.attestation.WaitV2(ctx, sourceDomain, payment.SourceTransactionHash)
	if err != nil {
		e.markFailed(ctx, payment.ID, err)
		return nil, apperr.Wrap(apperr.AttestationFailed, "attestation wait failed", err)
	}

	redeemData, err := messageTransmitter.Pack("receiveMessage", common.FromHex(blob.Message), common.FromHex(blob.Attestation))
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack receiveMessage", err)
	}
	targetQueue := e.signer.QueueFor(payment.TargetChainID)
	redeemTxHash, _, err := adminsigner.WriteAndWait(ctx, targetQueue, targetClient, e.signer, chainclient.WriteCall{To: messageTransmitterAddr, Data: redeemData}, apperr.ApiCallFailed)
	if err != nil {
		e.markFailed(ctx, payment.ID, err)
		return nil, err
	}

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
		MessageHash:         payment.MessageHash,
		CrossChainPaymentID: payment.ID,
	}, nil
}
