// Package router implements the Router (C10): the single HTTP entry point
// that authenticates a call, authorizes it against a subscription or
// permit, forwards it to the publisher's own API, and settles payment.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/agentregistry"
	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/chainregistry"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/metrics"
	"github.com/bitsandtea/agent-mrkt/internal/middleware"
	"github.com/bitsandtea/agent-mrkt/internal/publisher"
	"github.com/bitsandtea/agent-mrkt/internal/store"
	"github.com/bitsandtea/agent-mrkt/internal/submitter"
	"github.com/bitsandtea/agent-mrkt/internal/transfer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const routerVersion = "v1"

// Router wires every component the call-routing pipeline (§4.10) touches.
type Router struct {
	agents      *agentregistry.Registry
	registry    *chainregistry.Registry
	store       store.Store
	publisher   *publisher.Client
	transfer    *transfer.Engine
	submitter   *submitter.Submitter
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
	callTimeout time.Duration
}

// New builds a Router. callTimeout bounds the detached background work
// (publisher forwarding + settlement) so a single stuck call can't leak a
// goroutine forever.
func New(agents *agentregistry.Registry, registry *chainregistry.Registry, st store.Store, pub *publisher.Client, transferEngine *transfer.Engine, permitSubmitter *submitter.Submitter, m *metrics.Metrics, logger zerolog.Logger, callTimeout time.Duration) *Router {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Router{
		agents:      agents,
		registry:    registry,
		store:       st,
		publisher:   pub,
		transfer:    transferEngine,
		submitter:   permitSubmitter,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
		callTimeout: callTimeout,
	}
}

// callRequest is the inbound body of POST /v1/router/{agentId}.
type callRequest struct {
	Method     string                 `json:"method"`
	Parameters map[string]interface{} `json:"parameters"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type billingInfo struct {
	CallType            domain.CallType `json:"call_type"`
	CostUSD             string          `json:"cost_usd"`
	FreeTrialsRemaining int64           `json:"free_trials_remaining"`
	BalanceAfterCall    string          `json:"balance_after_call"`
}

type responseMetadata struct {
	RequestID string `json:"request_id"`
	AgentID   string `json:"agent_id"`
	Timestamp int64  `json:"timestamp"`
}

type callResponse struct {
	Success  bool             `json:"success"`
	Data     json.RawMessage  `json:"data,omitempty"`
	Billing  *billingInfo     `json:"billing,omitempty"`
	Metadata responseMetadata `json:"metadata"`
}

// HandleCall serves POST /v1/router/{agentId}. Authentication is assumed to
// have already run via middleware.Auth; GetUser must succeed.
func (rt *Router) HandleCall(w http.ResponseWriter, r *http.Request) {
	requestStart := rt.now()
	requestID := middleware.GetRequestID(r.Context())

	user, ok := middleware.GetUser(r.Context())
	if !ok {
		rt.writeError(w, requestID, "", apperr.New(apperr.Unauthorized, "no authenticated user"))
		return
	}

	agentID := r.PathValue("agentId")
	agent, err := rt.agents.Agent(agentID)
	if err != nil {
		rt.logAndRespondFailure(r.Context(), user, agentID, http.StatusNotFound, requestStart)
		rt.writeError(w, requestID, agentID, err)
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		decodeErr := apperr.Wrap(apperr.InvalidJson, "decode request body", err)
		rt.logAndRespondFailure(r.Context(), user, agentID, apperr.HTTPStatus(decodeErr), requestStart)
		rt.writeError(w, requestID, agentID, decodeErr)
		return
	}
	if req.Method == "" {
		methodErr := apperr.New(apperr.InvalidParameters, "method is required")
		rt.logAndRespondFailure(r.Context(), user, agentID, apperr.HTTPStatus(methodErr), requestStart)
		rt.writeError(w, requestID, agentID, methodErr)
		return
	}

	// Steps 4-6 (forward, log, settle) must survive the inbound request
	// being cancelled: the admin write that pays the publisher is already
	// committed to the chain once submitted, and the publisher call itself
	// must be logged unconditionally even if the caller hung up. Detach
	// onto a background context bounded by callTimeout instead of r.Context().
	bgCtx, cancel := context.WithTimeout(context.Background(), rt.callTimeout)
	defer cancel()

	// apiCallID doubles as this call's log entry id and, for a paid call,
	// the Payment's idempotency key (P2): at most one Payment can ever be
	// created against it.
	apiCallID := uuid.NewString()
	result, apiErr := rt.process(bgCtx, user, agent, req, apiCallID)

	responseTime := rt.now()
	logEntry := &domain.APICallLog{
		ID:                apiCallID,
		UserID:            user.ID,
		AgentID:           agent.ID,
		RequestTimestamp:  requestStart,
		ResponseTimestamp: responseTime,
		ResponseTimeMS:    responseTime.Sub(requestStart).Milliseconds(),
	}
	if result != nil {
		logEntry.IsFreeTrial = result.isFreeTrial
		logEntry.ChargedAmountUSD = result.costUSD
		logEntry.HTTPStatus = http.StatusOK
	} else {
		logEntry.HTTPStatus = apperr.HTTPStatus(apiErr)
	}
	if err := rt.store.LogAPICall(bgCtx, logEntry); err != nil {
		rt.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to write call log")
	}

	if apiErr != nil {
		rt.recordOutcome(agent.ID, "error")
		rt.writeError(w, requestID, agent.ID, apiErr)
		return
	}

	rt.recordOutcome(agent.ID, string(result.callType))
	rt.writeJSON(w, http.StatusOK, callResponse{
		Success: true,
		Data:    result.publisherData,
		Billing: &billingInfo{
			CallType:            result.callType,
			CostUSD:             result.costUSD.FloatString(6),
			FreeTrialsRemaining: result.freeTrialsRemaining,
			BalanceAfterCall:    result.balanceAfterCall,
		},
		Metadata: responseMetadata{RequestID: requestID, AgentID: agent.ID, Timestamp: responseTime.Unix()},
	})
}

func (rt *Router) recordOutcome(agentID, outcome string) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RouterCallsTotal.WithLabelValues(agentID, outcome).Inc()
}

// logAndRespondFailure records a failure that rejects a call before process
// runs (unknown agent, malformed body, missing method) so §4.10's "log
// unconditionally" holds for every rejected call from an authenticated
// user, not only ones that reach the publisher.
func (rt *Router) logAndRespondFailure(ctx context.Context, user *domain.User, agentID string, status int, requestStart time.Time) {
	responseTime := rt.now()
	entry := &domain.APICallLog{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		AgentID:           agentID,
		RequestTimestamp:  requestStart,
		ResponseTimestamp: responseTime,
		HTTPStatus:        status,
		ResponseTimeMS:    responseTime.Sub(requestStart).Milliseconds(),
	}
	if err := rt.store.LogAPICall(ctx, entry); err != nil {
		rt.logger.Error().Err(err).Msg("failed to write call log for rejected call")
	}
}

func (rt *Router) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (rt *Router) writeError(w http.ResponseWriter, requestID, agentID string, err error) {
	status := apperr.HTTPStatus(err)
	rt.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"kind":    string(apperr.KindOf(err)),
			"message": err.Error(),
		},
		"metadata": responseMetadata{RequestID: requestID, AgentID: agentID, Timestamp: rt.now().Unix()},
	})
}

