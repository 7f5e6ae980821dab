// Package validator implements the Chain Validator (C5): read-only checks
// against a token contract and the AllowanceVault that tell whether a
// permit can actually be drawn against. The Permit Submitter runs them
// before submitting a permit on-chain; the Router's per-call path does not
// call this package.
package validator

import (
	"context"
	"math/big"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/chainclient"
	"github.com/ethereum/go-ethereum/common"
)

var (
	erc20ABI       = mustParseABI(erc20ABIJSON)
	allowanceVault = mustParseABI(allowanceVaultABIJSON)
)

// Validator runs read-only balance/allowance checks over a set of
// per-chain RPC clients.
type Validator struct {
	clients map[uint64]*chainclient.Client
}

// New builds a Validator over the given chain-id -> client map.
func New(clients map[uint64]*chainclient.Client) *Validator {
	return &Validator{clients: clients}
}

func (v *Validator) clientFor(chainID uint64) (*chainclient.Client, error) {
	c, ok := v.clients[chainID]
	if !ok {
		return nil, apperr.New(apperr.UnsupportedChain, "no chain client configured")
	}
	return c, nil
}

// BalanceResult is the outcome of §4.5 step 1.
type BalanceResult struct {
	Balance    *big.Int
	Sufficient bool
}

// CheckBalance reads balanceOf(holder) on token and compares it to required.
func (v *Validator) CheckBalance(ctx context.Context, chainID uint64, token, holder common.Address, required *big.Int) (*BalanceResult, error) {
	client, err := v.clientFor(chainID)
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack balanceOf", err)
	}
	out, err := client.ReadContract(ctx, token, data)
	if err != nil {
		return nil, err
	}
	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "unpack balanceOf", err)
	}
	balance := results[0].(*big.Int)
	return &BalanceResult{Balance: balance, Sufficient: balance.Cmp(required) >= 0}, nil
}

// AllowanceResult is the outcome of §4.5 step 2 (token -> AllowanceVault).
type AllowanceResult struct {
	Allowance  *big.Int
	Sufficient bool
}

// CheckTokenAllowance reads allowance(owner, spender) on token.
func (v *Validator) CheckTokenAllowance(ctx context.Context, chainID uint64, token, owner, spender common.Address, required *big.Int) (*AllowanceResult, error) {
	client, err := v.clientFor(chainID)
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack allowance", err)
	}
	out, err := client.ReadContract(ctx, token, data)
	if err != nil {
		return nil, err
	}
	results, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "unpack allowance", err)
	}
	allowance := results[0].(*big.Int)
	return &AllowanceResult{Allowance: allowance, Sufficient: allowance.Cmp(required) >= 0}, nil
}

// VaultAllowanceResult is the outcome of §4.5 step 3 (AllowanceVault ->
// admin).
type VaultAllowanceResult struct {
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
	Valid      bool // amount >= required && expiration > now
}

// CheckVaultAllowance reads the AllowanceVault's per-(owner,token,spender)
// allowance record.
func (v *Validator) CheckVaultAllowance(ctx context.Context, chainID uint64, vault, owner, token, admin common.Address, required *big.Int, now time.Time) (*VaultAllowanceResult, error) {
	client, err := v.clientFor(chainID)
	if err != nil {
		return nil, err
	}
	data, err := allowanceVault.Pack("allowance", owner, token, admin)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "pack vault allowance", err)
	}
	out, err := client.ReadContract(ctx, vault, data)
	if err != nil {
		return nil, err
	}
	results, err := allowanceVault.Unpack("allowance", out)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "unpack vault allowance", err)
	}

	amount := results[0].(*big.Int)
	// go-ethereum's abi package maps uintN for 32 < N <= 64 to a native
	// Go uint64, unlike uint160 above which decodes to *big.Int.
	expiration := results[1].(uint64)
	nonce := results[2].(uint64)

	valid := amount.Cmp(required) >= 0 && expiration > uint64(now.Unix())
	return &VaultAllowanceResult{Amount: amount, Expiration: expiration, Nonce: nonce, Valid: valid}, nil
}

// Request bundles the inputs for a full three-step validation pass
// (§4.5) against one permit candidate.
type Request struct {
	ChainID        uint64
	Token          common.Address
	UserAddress    common.Address
	AllowanceVault common.Address
	Admin          common.Address
	RequiredAmount *big.Int
}

// Result is the combined outcome of all three checks, enough for the
// Permit Submitter and Router to decide what to do next without
// re-reading chain state.
type Result struct {
	Balance          *BalanceResult
	TokenAllowance   *AllowanceResult
	VaultAllowance   *VaultAllowanceResult
	NeedsTokenPermit bool // token->vault allowance insufficient
	Ready            bool // vault allowance already covers the call
}

// Validate runs all three §4.5 checks in sequence. RPC errors on any step
// abort immediately; a negative result on a step is not an error.
func (v *Validator) Validate(ctx context.Context, req Request, now time.Time) (*Result, error) {
	balance, err := v.CheckBalance(ctx, req.ChainID, req.Token, req.UserAddress, req.RequiredAmount)
	if err != nil {
		return nil, err
	}

	tokenAllowance, err := v.CheckTokenAllowance(ctx, req.ChainID, req.Token, req.UserAddress, req.AllowanceVault, req.RequiredAmount)
	if err != nil {
		return nil, err
	}

	vaultAllowance, err := v.CheckVaultAllowance(ctx, req.ChainID, req.AllowanceVault, req.UserAddress, req.Token, req.Admin, req.RequiredAmount, now)
	if err != nil {
		return nil, err
	}

	return &Result{
		Balance:          balance,
		TokenAllowance:   tokenAllowance,
		VaultAllowance:   vaultAllowance,
		NeedsTokenPermit: !tokenAllowance.Sufficient,
		Ready:            vaultAllowance.Valid,
	}, nil
}
