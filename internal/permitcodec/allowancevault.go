package permitcodec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// AllowanceVaultScheme implements Scheme for the canonical batched-allowance
// contract's PermitSingle typed data. The domain name/version are fixed —
// "Permit2"/"1" — across every chain; only chainId and verifyingContract
// vary.
type AllowanceVaultScheme struct {
	ChainID          uint64
	VerifyingContract common.Address // the AllowanceVault address

	Token      common.Address
	Amount     *big.Int // uint160 on-chain, transported as *big.Int here
	Expiration uint64   // uint48 on-chain
	Nonce      uint64   // uint48 on-chain

	Spender     common.Address // admin
	SigDeadline uint64         // uint256 on-chain
}

func (s AllowanceVaultScheme) TypedData() (apitypes.TypedData, error) {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"PermitDetails": {
				{Name: "token", Type: "address"},
				{Name: "amount", Type: "uint160"},
				{Name: "expiration", Type: "uint48"},
				{Name: "nonce", Type: "uint48"},
			},
			"PermitSingle": {
				{Name: "details", Type: "PermitDetails"},
				{Name: "spender", Type: "address"},
				{Name: "sigDeadline", Type: "uint256"},
			},
		},
		PrimaryType: "PermitSingle",
		Domain: apitypes.TypedDataDomain{
			Name:              "Permit2",
			Version:           "1",
			ChainId:           math256(s.ChainID),
			VerifyingContract: s.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"details": apitypes.TypedDataMessage{
				"token":      s.Token.Hex(),
				"amount":     decString(s.Amount),
				"expiration": decString(new(big.Int).SetUint64(s.Expiration)),
				"nonce":      decString(new(big.Int).SetUint64(s.Nonce)),
			},
			"spender":     s.Spender.Hex(),
			"sigDeadline": decString(new(big.Int).SetUint64(s.SigDeadline)),
		},
	}, nil
}

func (s AllowanceVaultScheme) Digest() ([32]byte, error) {
	td, err := s.TypedData()
	if err != nil {
		return [32]byte{}, err
	}
	return digestFromTypedData(td)
}

func (s AllowanceVaultScheme) RecoverSigner(sig []byte) (common.Address, error) {
	digest, err := s.Digest()
	if err != nil {
		return common.Address{}, err
	}
	return recoverFromDigest(digest, sig)
}
