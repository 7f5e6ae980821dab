// Package submitter implements the Permit Submitter (C6): brings on-chain
// AllowanceVault state in sync with a freshly stored permit, enforcing
// nonce freshness and ordering the EIP-2612 approval ahead of the
// AllowanceVault permit only when it's actually needed.
package submitter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/adminsigner"
	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/chainclient"
	"github.com/bitsandtea/agent-mrkt/internal/chainregistry"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/permitcodec"
	"github.com/bitsandtea/agent-mrkt/internal/validator"
	"github.com/ethereum/go-ethereum/common"
)

func bigFromUint64(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

var (
	erc2612        = mustParseABI(erc2612ABIJSON)
	allowanceVault = mustParseABI(allowanceVaultABIJSON)
)

// Submitter drives on-chain submission of a stored permit.
type Submitter struct {
	registry  *chainregistry.Registry
	clients   map[uint64]*chainclient.Client
	validator *validator.Validator
	signer    *adminsigner.Signer
}

// New builds a Submitter over the given per-chain clients.
func New(registry *chainregistry.Registry, clients map[uint64]*chainclient.Client, v *validator.Validator, signer *adminsigner.Signer) *Submitter {
	return &Submitter{registry: registry, clients: clients, validator: v, signer: signer}
}

func (s *Submitter) clientFor(chainID uint64) (*chainclient.Client, error) {
	c, ok := s.clients[chainID]
	if !ok {
		return nil, apperr.New(apperr.UnsupportedChain, "no chain client configured")
	}
	return c, nil
}

// Submit runs the full §4.6 sequence for a single stored permit.
func (s *Submitter) Submit(ctx context.Context, p *domain.Permit) error {
	tokenAddr, err := s.registry.TokenAddress(p.Token, p.ChainID)
	if err != nil {
		return err
	}
	vaultAddr := s.registry.AllowanceVaultAddress()
	user := common.HexToAddress(p.UserAddress)
	admin := common.HexToAddress(p.SpenderAddress)

	client, err := s.clientFor(p.ChainID)
	if err != nil {
		return err
	}

	// Step 1: stale-nonce guard.
	vaultState, err := s.validator.CheckVaultAllowance(ctx, p.ChainID, vaultAddr, user, tokenAddr, admin, p.Amount, time.Now())
	if err != nil {
		return err
	}
	if vaultState.Nonce != p.Nonce.Uint64() {
		return apperr.New(apperr.PermitStale, fmt.Sprintf("on-chain nonce %d does not match permit nonce %s", vaultState.Nonce, p.Nonce.String()))
	}

	// Checked before submitting any transaction: don't spend gas on an
	// approval the user can't back anyway.
	balance, err := s.validator.CheckBalance(ctx, p.ChainID, tokenAddr, user, p.Amount)
	if err != nil {
		return err
	}
	if !balance.Sufficient {
		return apperr.New(apperr.InsufficientBalance, "user balance below permit amount")
	}

	// Step 2: conditional EIP-2612 submission.
	tokenAllowance, err := s.validator.CheckTokenAllowance(ctx, p.ChainID, tokenAddr, user, vaultAddr, p.Amount)
	if err != nil {
		return err
	}
	if !tokenAllowance.Sufficient {
		if p.TokenPermitSig == nil {
			return apperr.New(apperr.InsufficientAllowance, "token allowance insufficient and no tokenPermitSig supplied")
		}
		if err := s.submitTokenPermit(ctx, client, tokenAddr, user, vaultAddr, p.TokenPermitSig); err != nil {
			return err
		}
	}

	// Step 3: AllowanceVault submission.
	return s.submitVaultPermit(ctx, client, vaultAddr, tokenAddr, user, admin, p)
}

func (s *Submitter) submitTokenPermit(ctx context.Context, client *chainclient.Client, token, owner, spender common.Address, sig *domain.TokenPermitSig) error {
	data, err := erc2612.Pack("permit", owner, spender, maxUint256, bigFromUint64(sig.Deadline), sig.V, sig.R, sig.S)
	if err != nil {
		return apperr.Wrap(apperr.ValidationError, "pack erc2612 permit", err)
	}
	queue := s.signer.QueueFor(clientChainID(client))
	_, _, err = adminsigner.WriteAndWait(ctx, queue, client, s.signer, chainclient.WriteCall{To: token, Data: data}, apperr.ApiCallFailed)
	return err
}

func (s *Submitter) submitVaultPermit(ctx context.Context, client *chainclient.Client, vault, token, owner, admin common.Address, p *domain.Permit) error {
	single := permitSingle{
		Details: permitDetails{
			Token:      token,
			Amount:     p.Amount,
			Expiration: p.Deadline,
			Nonce:      p.Nonce.Uint64(),
		},
		Spender:     admin,
		SigDeadline: bigFromUint64(p.Deadline),
	}
	signature := permitcodec.EncodeSignature(p.Signature.R, p.Signature.S, p.Signature.V)

	data, err := allowanceVault.Pack("permit", owner, single, signature)
	if err != nil {
		return apperr.Wrap(apperr.ValidationError, "pack vault permit", err)
	}
	queue := s.signer.QueueFor(clientChainID(client))
	_, _, err = adminsigner.WriteAndWait(ctx, queue, client, s.signer, chainclient.WriteCall{To: vault, Data: data}, apperr.ApiCallFailed)
	return err
}

func clientChainID(c *chainclient.Client) uint64 { return c.ChainIDValue }
