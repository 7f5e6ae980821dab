// Package chainregistry is the static mapping from chain ids to RPC
// endpoints, token contract addresses, and the burn-mint protocol's
// per-chain constants. It is immutable once constructed.
package chainregistry

import (
	"strings"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
)

// Chain describes one supported network.
type Chain struct {
	ChainID                uint64
	Name                   string
	RPCURL                 string
	TokenMessengerAddress  common.Address
	MessageTransmitterAddress common.Address
	DestinationDomain      uint32
	HasDestinationDomain   bool
}

// Registry is the immutable, process-wide chain/token directory. Every
// field is populated at construction time; there are no setters.
type Registry struct {
	chains        map[uint64]Chain
	tokens        map[string]map[uint64]common.Address // symbol -> chainID -> address
	decimals      map[string]uint8
	allowanceVault common.Address
}

// AllowanceVaultAddress is a constant across every deployment.

// New builds a Registry from explicit chain and token tables. Intended to be
// called once at startup from config.
func New(allowanceVault common.Address, chains []Chain, tokens map[string]map[uint64]common.Address, decimals map[string]uint8) *Registry {
	chainMap := make(map[uint64]Chain, len(chains))
	for _, c := range chains {
		chainMap[c.ChainID] = c
	}
	return &Registry{
		chains:         chainMap,
		tokens:         tokens,
		decimals:       decimals,
		allowanceVault: allowanceVault,
	}
}

// TokenAddress resolves a token symbol to its contract address on chainID.
func (r *Registry) TokenAddress(symbol string, chainID uint64) (common.Address, error) {
	byChain, ok := r.tokens[strings.ToUpper(symbol)]
	if !ok {
		return common.Address{}, apperr.New(apperr.UnsupportedChain, "unknown token symbol "+symbol)
	}
	addr, ok := byChain[chainID]
	if !ok {
		return common.Address{}, apperr.New(apperr.UnsupportedChain, "token not configured for chain")
	}
	return addr, nil
}

// AllowanceVaultAddress returns the canonical AllowanceVault address, the
// same on every chain.
func (r *Registry) AllowanceVaultAddress() common.Address {
	return r.allowanceVault
}

// TokenMessengerAddress returns the burn-side contract for chainID.
func (r *Registry) TokenMessengerAddress(chainID uint64) (common.Address, error) {
	c, ok := r.chains[chainID]
	if !ok {
		return common.Address{}, apperr.New(apperr.UnsupportedChain, "chain not configured")
	}
	return c.TokenMessengerAddress, nil
}

// MessageTransmitterAddress returns the mint-side contract for chainID.
func (r *Registry) MessageTransmitterAddress(chainID uint64) (common.Address, error) {
	c, ok := r.chains[chainID]
	if !ok {
		return common.Address{}, apperr.New(apperr.UnsupportedChain, "chain not configured")
	}
	return c.MessageTransmitterAddress, nil
}

// DestinationDomain returns the attestation-protocol domain id for chainID,
// or ok=false if the chain has none configured (e.g. it is source-only).
func (r *Registry) DestinationDomain(chainID uint64) (domain uint32, ok bool) {
	c, exists := r.chains[chainID]
	if !exists || !c.HasDestinationDomain {
		return 0, false
	}
	return c.DestinationDomain, true
}

// RPCURL returns the configured RPC endpoint for chainID.
func (r *Registry) RPCURL(chainID uint64) (string, error) {
	c, ok := r.chains[chainID]
	if !ok {
		return "", apperr.New(apperr.UnsupportedChain, "chain not configured")
	}
	return c.RPCURL, nil
}

// Decimals returns the fixed decimal count for a supported stablecoin
// symbol. All supported stablecoins use 6 decimals.
func (r *Registry) Decimals(symbol string) (uint8, error) {
	d, ok := r.decimals[strings.ToUpper(symbol)]
	if !ok {
		return 0, apperr.New(apperr.UnsupportedChain, "unknown token symbol "+symbol)
	}
	return d, nil
}

// Chains returns every configured chain, for iteration (e.g. when
// constructing one chain client per chain at startup).
func (r *Registry) Chains() []Chain {
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	return out
}
