package router

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/publisher"
	"github.com/bitsandtea/agent-mrkt/internal/selector"
	"github.com/bitsandtea/agent-mrkt/internal/store"
	"github.com/bitsandtea/agent-mrkt/internal/transfer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// callResult carries everything HandleCall needs to build a response and
// a call log entry once process has finished.
type callResult struct {
	callType            domain.CallType
	isFreeTrial         bool
	costUSD             *big.Rat
	freeTrialsRemaining int64
	balanceAfterCall    string
	publisherData       json.RawMessage
}

// process runs steps 2-4 and 6 of §4.10: subscription check,
// pre-authorization, forward to the publisher, and settlement. Step 1
// (authenticate), step 5 (log) and step 7 (respond) live in HandleCall.
func (rt *Router) process(ctx context.Context, user *domain.User, agent *domain.Agent, req callRequest, apiCallID string) (*callResult, error) {
	sub, err := rt.store.GetSubscription(ctx, user.ID, agent.ID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.New(apperr.SubscriptionRequired, "no active subscription for this agent")
		}
		return nil, apperr.Wrap(apperr.InternalError, "load subscription", err)
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, apperr.New(apperr.SubscriptionRequired, "subscription is not active")
	}

	isFreeTrial := sub.IsFreeTrial()

	var selected *domain.Permit
	if !isFreeTrial {
		permits, err := rt.store.ListPermitsByUser(ctx, user.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.InternalError, "list permits", err)
		}
		now := rt.now()
		eligible := make([]*domain.Permit, 0, len(permits))
		for _, p := range permits {
			if p.Eligible(agent.PricePerCallUSD, now) {
				eligible = append(eligible, p)
			}
		}
		selected = selector.Select(eligible, agent, agent.PricePerCallUSD)
		if selected == nil {
			if rt.metrics != nil {
				rt.metrics.PermitSelectionFailures.Inc()
			}
			return nil, apperr.New(apperr.NoValidPermits, "no permit can cover this call")
		}
	}

	resp, err := rt.publisher.Call(ctx, agent.APIEndpoint, agent.PublisherAPIKey, publisher.Request{
		Method:     req.Method,
		Parameters: req.Parameters,
		Metadata:   publisher.Metadata{RouterVersion: routerVersion, AgentID: agent.ID},
	})
	if err != nil {
		// The API call itself failed; no settlement happens and the call is
		// not charged (§4.10 step 4's failure path never reaches step 6).
		return nil, err
	}

	result := &callResult{
		isFreeTrial:   isFreeTrial,
		costUSD:       agent.PricePerCallUSD,
		publisherData: resp.Data,
	}

	if isFreeTrial {
		if err := rt.store.UpdateSubscriptionUsage(ctx, sub.ID, true); err != nil {
			rt.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to update free-trial usage")
		}
		result.callType = domain.CallFreeTrial
		result.freeTrialsRemaining = sub.FreeTrialsRemaining - 1
		if result.freeTrialsRemaining < 0 {
			result.freeTrialsRemaining = 0
		}
		result.balanceAfterCall = "0"
		return result, nil
	}

	result.callType = domain.CallPaid
	if err := rt.settlePaid(ctx, user, agent, selected, sub.ID, apiCallID, result); err != nil {
		// A failed transfer does not refund the already-forwarded API call
		// (§4.10): the publisher's data is dropped and the caller receives
		// the settlement error instead of a success response.
		return nil, err
	}
	return result, nil
}

// settlePaid draws selected's per-call amount via the Transfer Engine and
// records the resulting usage/payment bookkeeping. It is idempotent on
// apiCallID (P2): if a Payment already exists for this call, the transfer
// is never repeated.
func (rt *Router) settlePaid(ctx context.Context, user *domain.User, agent *domain.Agent, selected *domain.Permit, subscriptionID, apiCallID string, result *callResult) error {
	if _, err := rt.store.GetPaymentByAPICallID(ctx, apiCallID); err == nil {
		return nil
	}

	req := transfer.Request{
		PermitID:         selected.ID,
		UserID:           user.ID,
		AgentID:          agent.ID,
		UserAddress:      common.HexToAddress(selected.UserAddress),
		PublisherAddress: common.HexToAddress(agent.PublisherWalletAddress),
		Token:            selected.Token,
		SourceChainID:    selected.ChainID,
		PayoutToken:      agent.PaymentPreferences.PayoutToken,
		PayoutChainID:    agent.PaymentPreferences.PayoutChainID,
		Amount:           selected.PerCallAmount(),
		TransferType:     transfer.TransferFast,
	}

	txResult, err := rt.transfer.Transfer(ctx, req)
	if err != nil {
		crossChain := req.Token != req.PayoutToken || req.SourceChainID != req.PayoutChainID
		if crossChain && rt.metrics != nil {
			rt.metrics.CrossChainPaymentsTotal.WithLabelValues("failed").Inc()
		}
		return err
	}
	if txResult.CrossChainPaymentID != "" && rt.metrics != nil {
		rt.metrics.CrossChainPaymentsTotal.WithLabelValues("complete").Inc()
	}

	newCallsUsed := selected.CallsUsed + 1
	if err := rt.store.UpdatePermitUsage(ctx, selected.ID, newCallsUsed); err != nil {
		rt.logger.Error().Err(err).Str("permit_id", selected.ID).Msg("failed to update permit usage after settlement")
	}
	if err := rt.store.UpdateSubscriptionUsage(ctx, subscriptionID, false); err != nil {
		rt.logger.Error().Err(err).Str("subscription_id", subscriptionID).Msg("failed to update paid-call usage")
	}

	payment := &domain.Payment{
		ID:                  uuid.NewString(),
		Amount:              req.Amount,
		Token:               req.Token,
		Network:             req.SourceChainID,
		TransactionHash:     txResult.TransactionHash,
		Status:              domain.PaymentCompleted,
		APICallID:           apiCallID,
		MessageHash:         txResult.MessageHash,
		CrossChainPaymentID: txResult.CrossChainPaymentID,
	}
	if err := rt.store.CreatePayment(ctx, payment); err != nil {
		rt.logger.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to persist payment record")
	}

	remaining := selected.MaxCalls - newCallsUsed
	if remaining < 0 {
		remaining = 0
	}
	result.freeTrialsRemaining = 0
	result.balanceAfterCall = new(big.Rat).Mul(big.NewRat(remaining, 1), selected.CostPerCall).FloatString(6)
	return nil
}
