// Package permitcodec builds EIP-712 typed data for the two permit schemes
// this router understands — the stablecoin's own EIP-2612 Permit, and the
// AllowanceVault's PermitSingle — and recovers signer addresses from
// signatures over either. Both schemes share the Scheme interface so the
// rest of the system (submitter, validator) never branches on which one it
// is holding.
package permitcodec

import (
	"math/big"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// math256 converts a chain id to the HexOrDecimal256 type apitypes'
// TypedDataDomain expects.
func math256(chainID uint64) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).SetUint64(chainID))
}

// Scheme encodes and recovers signatures for one EIP-712 typed-data layout.
type Scheme interface {
	// TypedData builds the full apitypes.TypedData structure for message.
	TypedData() (apitypes.TypedData, error)
	// Digest returns the EIP-712 signing hash (0x1901 prefix included) of
	// the built typed data.
	Digest() ([32]byte, error)
	// RecoverSigner recovers the address that produced sig over this
	// scheme's digest. sig is the 65-byte r‖s‖v concatenation.
	RecoverSigner(sig []byte) (common.Address, error)
}

// digestFromTypedData and recoverFromDigest are shared plumbing for both
// schemes: hash typed data per EIP-712, and recover a signer from a 65-byte
// signature.
func digestFromTypedData(td apitypes.TypedData) ([32]byte, error) {
	_, rawHash, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return [32]byte{}, apperr.Wrap(apperr.InternalError, "hash typed data", err)
	}
	var out [32]byte
	copy(out[:], rawHash)
	return out, nil
}

func recoverFromDigest(digest [32]byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, apperr.New(apperr.ValidationError, "signature must be 65 bytes (r||s||v)")
	}
	// crypto.Ecrecover / SigToPub expect v in {0,1}; permits are stored
	// with v in {27,28} per EIP-712 convention.
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, apperr.Wrap(apperr.ValidationError, "recover signer", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// EncodeSignature concatenates an (r, s, v) triple into the 65-byte form
// used on-chain and for recovery.
func EncodeSignature(r, s [32]byte, v uint8) []byte {
	out := make([]byte, 65)
	copy(out[0:32], r[:])
	copy(out[32:64], s[:])
	out[64] = v
	return out
}

// decString renders a *big.Int as a decimal string, the form apitypes'
// encoder accepts for uint256-typed message fields and the form the
// frontend sends over JSON.
func decString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
