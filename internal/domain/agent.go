package domain

import "math/big"

// PaymentPreferences describes where a publisher wants to be paid.
type PaymentPreferences struct {
	PayoutToken   string // symbol, e.g. "USDC"
	PayoutChainID uint64
}

// Agent is the external, read-only description of a metered API listed on
// the marketplace. The router never mutates an Agent.
type Agent struct {
	ID                    string
	PricePerCallUSD       *big.Rat
	PaymentPreferences    PaymentPreferences
	PublisherWalletAddress string
	APIEndpoint           string
	PublisherAPIKey       string
	FreeTrialTries        int64
}

// User is the marketplace account identified by an opaque bearer API key.
// Only the SHA-256 hash of the key is ever persisted. ID is the user's
// lowercased 0x-prefixed wallet address, the same value Permit.UserAddress
// carries, so a Store lookup keyed by user never needs a second identifier.
type User struct {
	ID         string
	APIKeyHash [32]byte
	IsApproved bool
}
