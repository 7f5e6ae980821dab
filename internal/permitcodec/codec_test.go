package permitcodec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestStableCoinPermitRoundTrip(t *testing.T) {
	cases := []struct {
		symbol  string
		chainID uint64
	}{
		{"USDC", chainIDEthereumSepolia},
		{"USDC", 8453},
		{"PYUSD", 1},
		{"DAI", 137},
	}

	for _, tc := range cases {
		priv, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		owner := crypto.PubkeyToAddress(priv.PublicKey)

		scheme := StableCoinPermitScheme{
			Token:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
			TokenSymbol: tc.symbol,
			ChainID:     tc.chainID,
			Owner:       owner,
			Spender:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Value:       big.NewInt(1_000_000),
			Nonce:       big.NewInt(0),
			Deadline:    1893456000,
		}

		digest, err := scheme.Digest()
		if err != nil {
			t.Fatalf("digest: %v", err)
		}

		sigBytes, err := crypto.Sign(digest[:], priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		sigBytes[64] += 27

		recovered, err := scheme.RecoverSigner(sigBytes)
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		if recovered != owner {
			t.Fatalf("symbol=%s chain=%d: recovered %s, want %s", tc.symbol, tc.chainID, recovered.Hex(), owner.Hex())
		}
	}
}

func TestAllowanceVaultPermitRoundTrip(t *testing.T) {
	chains := []uint64{1, 8453, 84532, 11155111}

	for _, chainID := range chains {
		priv, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		owner := crypto.PubkeyToAddress(priv.PublicKey)

		scheme := AllowanceVaultScheme{
			ChainID:           chainID,
			VerifyingContract: common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Token:             common.HexToAddress("0x4444444444444444444444444444444444444444"),
			Amount:            big.NewInt(5_000_000),
			Expiration:        1893456000,
			Nonce:             0,
			Spender:           common.HexToAddress("0x5555555555555555555555555555555555555555"),
			SigDeadline:       1893456000,
		}

		digest, err := scheme.Digest()
		if err != nil {
			t.Fatalf("digest: %v", err)
		}

		sigBytes, err := crypto.Sign(digest[:], priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		sigBytes[64] += 27

		recovered, err := scheme.RecoverSigner(sigBytes)
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		if recovered != owner {
			t.Fatalf("chain=%d: recovered %s, want %s", chainID, recovered.Hex(), owner.Hex())
		}
	}
}

func TestStableCoinDomainVersionDisambiguation(t *testing.T) {
	name, version := stablecoinDomainNameVersion("USDC", chainIDEthereumSepolia)
	if name != "USD Coin" || version != "2" {
		t.Fatalf("USDC on sepolia: got (%s, %s)", name, version)
	}
	name, version = stablecoinDomainNameVersion("USDC", 8453)
	if name != "USD Coin" || version != "1" {
		t.Fatalf("USDC on base: got (%s, %s)", name, version)
	}
	name, version = stablecoinDomainNameVersion("PYUSD", 1)
	if name != "PayPal USD" || version != "1" {
		t.Fatalf("PYUSD: got (%s, %s)", name, version)
	}
}
