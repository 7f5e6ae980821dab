// Package chainclient wraps per-chain RPC access: reads, signed writes, and
// receipt/log retrieval. One Client exists per configured chain id.
package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultReceiptTimeout is the bound waitForReceipt uses unless overridden.
const DefaultReceiptTimeout = 2 * time.Minute

// RPC captures the subset of ethclient.Client this package depends on, so
// tests can substitute an in-memory fake.
type RPC interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Client is the read/write gateway for one chain.
type Client struct {
	ChainIDValue   uint64
	rpc            RPC
	receiptTimeout time.Duration
}

// New wraps rpc for chainID, using DefaultReceiptTimeout unless a positive
// timeout is supplied.
func New(chainID uint64, rpc RPC, receiptTimeout time.Duration) *Client {
	if receiptTimeout <= 0 {
		receiptTimeout = DefaultReceiptTimeout
	}
	return &Client{ChainIDValue: chainID, rpc: rpc, receiptTimeout: receiptTimeout}
}

// ReadContract performs an eth_call against to with the given calldata.
func (c *Client) ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "eth_call failed", err)
	}
	return out, nil
}

// WriteCall describes a signed contract call to submit.
type WriteCall struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64 // 0 => estimate
}

// WriteContract signs and submits a transaction from signer, returning its
// hash. Nonce, gas price, and chain id are fetched fresh for every call;
// callers are responsible for serializing calls from the same signer on the
// same chain (see internal/adminsigner.AdminWriteQueue).
func (c *Client) WriteContract(ctx context.Context, signer TxSigner, call WriteCall) (common.Hash, error) {
	from := signer.Address()

	nonce, err := c.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, apperr.Wrap(apperr.InternalError, "pending nonce", err)
	}

	chainID, err := c.rpc.ChainID(ctx)
	if err != nil {
		return common.Hash{}, apperr.Wrap(apperr.InternalError, "chain id", err)
	}

	tipCap, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, apperr.Wrap(apperr.InternalError, "suggest gas tip cap", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, apperr.Wrap(apperr.InternalError, "suggest gas price", err)
	}

	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := call.GasLimit
	if gasLimit == 0 {
		estimate, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &call.To, Data: call.Data, Value: value})
		if err != nil {
			return common.Hash{}, apperr.Wrap(apperr.InternalError, "estimate gas", err)
		}
		gasLimit = estimate
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: gasPrice,
		Gas:       gasLimit,
		To:        &call.To,
		Value:     value,
		Data:      call.Data,
	})

	signedTx, err := signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, apperr.Wrap(apperr.InternalError, "sign tx", err)
	}

	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, apperr.Wrap(apperr.InternalError, "send tx", err)
	}

	return signedTx.Hash(), nil
}

// WaitForReceipt polls for a transaction receipt until it is mined or the
// configured timeout elapses.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, apperr.New(apperr.ReceiptTimeout, fmt.Sprintf("receipt for %s not found within timeout", txHash))
		case <-ticker.C:
		}
	}
}

// GetReceipt returns the receipt for txHash if it is already mined, without
// waiting.
func (c *Client) GetReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "get receipt", err)
	}
	return receipt, nil
}

// FilterLogs proxies to the underlying RPC's eth_getLogs.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.rpc.FilterLogs(ctx, q)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "filter logs", err)
	}
	return logs, nil
}

// ReceiptSucceeded reports whether a mined receipt indicates success.
func ReceiptSucceeded(r *types.Receipt) bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}
