package router

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/permitcodec"
	"github.com/bitsandtea/agent-mrkt/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// createPermitRequest is the admin-facing body of POST /permits. Amounts
// and nonces travel as decimal strings, the same convention permitcodec
// uses for typed-data encoding.
type createPermitRequest struct {
	UserAddress    string `json:"userAddress"`
	AgentID        string `json:"agentId"`
	Token          string `json:"token"`
	ChainID        uint64 `json:"chainId"`
	SpenderAddress string `json:"spenderAddress"`
	Amount         string `json:"amount"`
	Nonce          string `json:"nonce"`
	Deadline       uint64 `json:"deadline"`
	MaxCalls       int64  `json:"maxCalls"`
	CostPerCallUSD string `json:"costPerCallUsd"`
	Signature      struct {
		R string `json:"r"`
		S string `json:"s"`
		V uint8  `json:"v"`
	} `json:"signature"`
}

// HandleCreatePermit serves POST /permits: verifies the EIP-712 signature
// recovers to userAddress, stores the permit, then dispatches it for
// on-chain submission (§4.6) before responding.
func (rt *Router) HandleCreatePermit(w http.ResponseWriter, r *http.Request) {
	var req createPermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeAdminError(w, apperr.Wrap(apperr.InvalidJson, "decode permit request", err))
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		rt.writeAdminError(w, apperr.New(apperr.InvalidParameters, "amount must be a decimal integer"))
		return
	}
	nonce, ok := new(big.Int).SetString(req.Nonce, 10)
	if !ok {
		rt.writeAdminError(w, apperr.New(apperr.InvalidParameters, "nonce must be a decimal integer"))
		return
	}
	costPerCall, ok := new(big.Rat).SetString(req.CostPerCallUSD)
	if !ok {
		rt.writeAdminError(w, apperr.New(apperr.InvalidParameters, "costPerCallUsd must be a decimal number"))
		return
	}

	var rBytes, sBytes [32]byte
	copy(rBytes[:], common.FromHex(req.Signature.R))
	copy(sBytes[:], common.FromHex(req.Signature.S))

	tokenAddr, err := rt.registry.TokenAddress(req.Token, req.ChainID)
	if err != nil {
		rt.writeAdminError(w, err)
		return
	}

	vaultAddr := rt.registry.AllowanceVaultAddress()
	scheme := permitcodec.AllowanceVaultScheme{
		ChainID:           req.ChainID,
		VerifyingContract: vaultAddr,
		Token:             tokenAddr,
		Amount:            amount,
		Expiration:        req.Deadline,
		Nonce:             nonce.Uint64(),
		Spender:           common.HexToAddress(req.SpenderAddress),
		SigDeadline:       req.Deadline,
	}
	sig := permitcodec.EncodeSignature(rBytes, sBytes, req.Signature.V)
	recovered, err := scheme.RecoverSigner(sig)
	if err != nil {
		rt.writeAdminError(w, apperr.Wrap(apperr.ValidationError, "recover permit signature", err))
		return
	}
	if !strings.EqualFold(recovered.Hex(), req.UserAddress) {
		rt.writeAdminError(w, apperr.New(apperr.ValidationError, "signature does not match userAddress"))
		return
	}

	userAddress := strings.ToLower(req.UserAddress)

	permit := &domain.Permit{
		ID:             uuid.NewString(),
		UserAddress:    userAddress,
		AgentID:        req.AgentID,
		Token:          req.Token,
		ChainID:        req.ChainID,
		SpenderAddress: req.SpenderAddress,
		Amount:         amount,
		Nonce:          nonce,
		Deadline:       req.Deadline,
		Signature:      domain.Signature{R: rBytes, S: sBytes, V: req.Signature.V},
		Status:         domain.PermitActive,
		CreatedAt:      rt.now(),
		MaxCalls:       req.MaxCalls,
		CostPerCall:    costPerCall,
	}

	// I2: at most one active permit per (user, token, chainId). A newer
	// signed permit for the same triple supersedes the prior one, which is
	// retained (revoked, not deleted) for audit.
	if err := rt.supersedeActivePermits(r.Context(), userAddress, req.Token, req.ChainID); err != nil {
		rt.writeAdminError(w, apperr.Wrap(apperr.InternalError, "supersede prior permit", err))
		return
	}

	if err := rt.store.CreatePermit(r.Context(), permit); err != nil {
		rt.writeAdminError(w, apperr.Wrap(apperr.InternalError, "store permit", err))
		return
	}

	if err := rt.submitter.Submit(r.Context(), permit); err != nil {
		rt.writeAdminError(w, err)
		return
	}

	rt.writeJSON(w, http.StatusCreated, permit)
}

// supersedeActivePermits revokes every existing active permit belonging to
// userAddress for the same (token, chainId) pair, so a newly signed permit
// is always the sole active one for that triple (I2).
func (rt *Router) supersedeActivePermits(ctx context.Context, userAddress, token string, chainID uint64) error {
	existing, err := rt.store.ListPermitsByUser(ctx, userAddress)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.Status != domain.PermitActive || p.Token != token || p.ChainID != chainID {
			continue
		}
		if err := rt.store.UpdatePermitStatus(ctx, p.ID, domain.PermitRevoked); err != nil {
			return err
		}
	}
	return nil
}

// HandleListPermits serves GET /permits?userAddress=.
func (rt *Router) HandleListPermits(w http.ResponseWriter, r *http.Request) {
	userAddress := r.URL.Query().Get("userAddress")
	if userAddress == "" {
		rt.writeAdminError(w, apperr.New(apperr.InvalidParameters, "userAddress query parameter is required"))
		return
	}
	permits, err := rt.store.ListPermitsByUser(r.Context(), strings.ToLower(userAddress))
	if err != nil {
		rt.writeAdminError(w, apperr.Wrap(apperr.InternalError, "list permits", err))
		return
	}
	rt.writeJSON(w, http.StatusOK, permits)
}

type patchPermitRequest struct {
	Status *string `json:"status,omitempty"`
}

// HandleUpdatePermit serves PATCH /permits/{id}, currently supporting a
// status transition only (calls usage is adjusted exclusively by the
// Router's own settlement path, never by admin edit).
func (rt *Router) HandleUpdatePermit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req patchPermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeAdminError(w, apperr.Wrap(apperr.InvalidJson, "decode patch body", err))
		return
	}
	if req.Status == nil {
		rt.writeAdminError(w, apperr.New(apperr.InvalidParameters, "status is required"))
		return
	}
	if err := rt.store.UpdatePermitStatus(r.Context(), id, domain.PermitStatus(*req.Status)); err != nil {
		if err == store.ErrNotFound {
			rt.writeAdminError(w, apperr.New(apperr.AgentOrUserNotFound, "permit not found"))
			return
		}
		rt.writeAdminError(w, apperr.Wrap(apperr.InternalError, "update permit status", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type revokePermitRequest struct {
	PermitID string `json:"permitId"`
}

// HandleRevokePermit serves POST /permits/revoke.
func (rt *Router) HandleRevokePermit(w http.ResponseWriter, r *http.Request) {
	var req revokePermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeAdminError(w, apperr.Wrap(apperr.InvalidJson, "decode revoke body", err))
		return
	}
	if err := rt.store.UpdatePermitStatus(r.Context(), req.PermitID, domain.PermitRevoked); err != nil {
		if err == store.ErrNotFound {
			rt.writeAdminError(w, apperr.New(apperr.AgentOrUserNotFound, "permit not found"))
			return
		}
		rt.writeAdminError(w, apperr.Wrap(apperr.InternalError, "revoke permit", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) writeAdminError(w http.ResponseWriter, err error) {
	rt.writeJSON(w, apperr.HTTPStatus(err), map[string]string{
		"kind":    string(apperr.KindOf(err)),
		"message": err.Error(),
	})
}
