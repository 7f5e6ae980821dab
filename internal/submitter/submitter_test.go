package submitter

import (
	"bytes"
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/adminsigner"
	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/chainclient"
	"github.com/bitsandtea/agent-mrkt/internal/chainregistry"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/validator"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20AllowanceABIJSON = `[
  {"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// fakeChainRPC answers every read/write call chainclient.Client needs.
type fakeChainRPC struct {
	balance     *big.Int
	tokenAllow  *big.Int
	vaultAmount *big.Int
	vaultExpiry uint64
	vaultNonce  uint64
	sent        []ethereum.CallMsg
}

func (f *fakeChainRPC) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(8453), nil }

func (f *fakeChainRPC) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	erc20 := mustParseABI(erc20AllowanceABIJSON)
	selector := msg.Data[:4]
	switch {
	case bytes.Equal(selector, erc20.Methods["balanceOf"].ID):
		return erc20.Methods["balanceOf"].Outputs.Pack(f.balance)
	case bytes.Equal(selector, erc20.Methods["allowance"].ID):
		return erc20.Methods["allowance"].Outputs.Pack(f.tokenAllow)
	case bytes.Equal(selector, allowanceVault.Methods["allowance"].ID):
		return allowanceVault.Methods["allowance"].Outputs.Pack(f.vaultAmount, f.vaultExpiry, f.vaultNonce)
	default:
		return nil, nil
	}
}

func (f *fakeChainRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeChainRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (f *fakeChainRPC) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (f *fakeChainRPC) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.sent = append(f.sent, msg)
	return 100000, nil
}
func (f *fakeChainRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (f *fakeChainRPC) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}
func (f *fakeChainRPC) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func testRegistry() *chainregistry.Registry {
	return chainregistry.New(
		common.HexToAddress("0xVAULT"),
		[]chainregistry.Chain{{ChainID: 8453, Name: "base", RPCURL: "http://local"}},
		map[string]map[uint64]common.Address{"USDC": {8453: common.HexToAddress("0xTOKEN")}},
		map[string]uint8{"USDC": 6},
	)
}

func TestSubmitRejectsStaleNonce(t *testing.T) {
	signer := mustTestSigner(t)

	rpc := &fakeChainRPC{
		balance:     big.NewInt(10_000_000),
		tokenAllow:  big.NewInt(10_000_000),
		vaultAmount: big.NewInt(0),
		vaultExpiry: 0,
		vaultNonce:  5,
	}
	client := chainclient.New(8453, rpc, time.Second)
	clients := map[uint64]*chainclient.Client{8453: client}
	v := validator.New(clients)
	sub := New(testRegistry(), clients, v, signer)

	p := &domain.Permit{
		ChainID:        8453,
		Token:          "USDC",
		UserAddress:    "0x1111111111111111111111111111111111111111",
		SpenderAddress: signer.Address().Hex(),
		Amount:         big.NewInt(1_000_000),
		Nonce:          big.NewInt(0), // stale: on-chain nonce is 5
		Deadline:       uint64(time.Now().Add(time.Hour).Unix()),
	}

	err := sub.Submit(context.Background(), p)
	if apperr.KindOf(err) != apperr.PermitStale {
		t.Fatalf("want PermitStale, got %v", err)
	}
}

func TestSubmitInsufficientBalance(t *testing.T) {
	signer := mustTestSigner(t)

	rpc := &fakeChainRPC{
		balance:     big.NewInt(0),
		tokenAllow:  big.NewInt(10_000_000),
		vaultAmount: big.NewInt(0),
		vaultNonce:  0,
	}
	client := chainclient.New(8453, rpc, time.Second)
	clients := map[uint64]*chainclient.Client{8453: client}
	v := validator.New(clients)
	sub := New(testRegistry(), clients, v, signer)

	p := &domain.Permit{
		ChainID:        8453,
		Token:          "USDC",
		UserAddress:    "0x1111111111111111111111111111111111111111",
		SpenderAddress: signer.Address().Hex(),
		Amount:         big.NewInt(1_000_000),
		Nonce:          big.NewInt(0),
		Deadline:       uint64(time.Now().Add(time.Hour).Unix()),
	}

	err := sub.Submit(context.Background(), p)
	if apperr.KindOf(err) != apperr.InsufficientBalance {
		t.Fatalf("want InsufficientBalance, got %v", err)
	}
}

func TestSubmitHappyPathSubmitsVaultPermitOnly(t *testing.T) {
	signer := mustTestSigner(t)

	rpc := &fakeChainRPC{
		balance:     big.NewInt(10_000_000),
		tokenAllow:  big.NewInt(10_000_000), // already approved, no token permit needed
		vaultAmount: big.NewInt(0),
		vaultNonce:  0,
	}
	client := chainclient.New(8453, rpc, time.Second)
	clients := map[uint64]*chainclient.Client{8453: client}
	v := validator.New(clients)
	sub := New(testRegistry(), clients, v, signer)

	p := &domain.Permit{
		ChainID:        8453,
		Token:          "USDC",
		UserAddress:    "0x1111111111111111111111111111111111111111",
		SpenderAddress: signer.Address().Hex(),
		Amount:         big.NewInt(1_000_000),
		Nonce:          big.NewInt(0),
		Deadline:       uint64(time.Now().Add(time.Hour).Unix()),
	}

	if err := sub.Submit(context.Background(), p); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected exactly one on-chain write (vault permit only), got %d", len(rpc.sent))
	}
}

func mustTestSigner(t *testing.T) *adminsigner.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := adminsigner.New(hex.EncodeToString(crypto.FromECDSA(key)), "")
	if err != nil {
		t.Fatalf("adminsigner.New: %v", err)
	}
	return s
}
