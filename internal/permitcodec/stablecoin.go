package permitcodec

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// stablecoinDomainName/Version resolves the (name, version) pair EIP-2612
// requires, which depends on the exact (symbol, chainId) pair. Getting
// this wrong yields an unrecoverable signature: the user signed over a
// domain the contract never checks.
const (
	chainIDEthereumSepolia = 11155111
)

func stablecoinDomainNameVersion(symbol string, chainID uint64) (name, version string) {
	sym := strings.ToUpper(symbol)
	switch {
	case sym == "USDC" && chainID == chainIDEthereumSepolia:
		return "USD Coin", "2"
	case sym == "USDC":
		return "USD Coin", "1"
	case sym == "PYUSD":
		return "PayPal USD", "1"
	default:
		return "USD Coin", "1"
	}
}

// StableCoinPermitScheme implements Scheme for the stablecoin's built-in
// EIP-2612 permit, used only to let the AllowanceVault draw from the
// signer's balance.
type StableCoinPermitScheme struct {
	Token             common.Address
	TokenSymbol       string
	ChainID           uint64
	Owner             common.Address
	Spender           common.Address // the AllowanceVault
	Value             *big.Int
	Nonce             *big.Int
	Deadline          uint64
}

func (s StableCoinPermitScheme) TypedData() (apitypes.TypedData, error) {
	name, version := stablecoinDomainNameVersion(s.TokenSymbol, s.ChainID)

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math256(s.ChainID),
			VerifyingContract: s.Token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    s.Owner.Hex(),
			"spender":  s.Spender.Hex(),
			"value":    decString(s.Value),
			"nonce":    decString(s.Nonce),
			"deadline": decString(new(big.Int).SetUint64(s.Deadline)),
		},
	}, nil
}

func (s StableCoinPermitScheme) Digest() ([32]byte, error) {
	td, err := s.TypedData()
	if err != nil {
		return [32]byte{}, err
	}
	return digestFromTypedData(td)
}

func (s StableCoinPermitScheme) RecoverSigner(sig []byte) (common.Address, error) {
	digest, err := s.Digest()
	if err != nil {
		return common.Address{}, err
	}
	return recoverFromDigest(digest, sig)
}
