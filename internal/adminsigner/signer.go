// Package adminsigner owns the admin keypair used to submit every on-chain
// write in the router: permit submissions, transferFrom pulls, burns, and
// redemptions. It is constructed once at startup, validated against
// ADMIN_ADDRESS, and torn down on shutdown; it is never shared between
// chains beyond holding one AdminWriteQueue per chain id.
package adminsigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/chainclient"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the admin's private key and per-chain write queues.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address

	mu     sync.Mutex
	queues map[uint64]*AdminWriteQueue
}

// New derives the admin address from keyHex (with or without "0x" prefix)
// and checks it against expectedAddress. expectedAddress may be empty to
// skip the check (e.g. in tests).
func New(keyHex, expectedAddress string) (*Signer, error) {
	keyHex = strings.TrimPrefix(keyHex, "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigurationError, "parse ADMIN_PKEY", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	if expectedAddress != "" && !strings.EqualFold(expectedAddress, addr.Hex()) {
		return nil, apperr.New(apperr.ConfigurationError,
			fmt.Sprintf("ADMIN_ADDRESS %s does not match key-derived address %s", expectedAddress, addr.Hex()))
	}

	return &Signer{key: key, address: addr, queues: make(map[uint64]*AdminWriteQueue)}, nil
}

// Address returns the admin's public address.
func (s *Signer) Address() common.Address { return s.address }

// SignTx implements chainclient.TxSigner using EIP-155/EIP-1559 signing via
// the latest signer for chainID.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.key)
}

// Close zeroes the in-memory key material. The Signer must not be used
// after Close.
func (s *Signer) Close() {
	if s.key != nil {
		s.key.D.SetInt64(0)
	}
}

// QueueFor returns (creating if necessary) the serialized write queue for
// chainID. All admin-originated writeContract calls on the same chain must
// go through the same queue to avoid nonce races (§5).
func (s *Signer) QueueFor(chainID uint64) *AdminWriteQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[chainID]
	if !ok {
		q = newAdminWriteQueue()
		s.queues[chainID] = q
	}
	return q
}

// AdminWriteQueue serializes admin writeContract calls on one chain: each
// write is submitted and its receipt awaited before the next write in the
// queue begins, so the admin account's single nonce is never raced.
type AdminWriteQueue struct {
	sem chan struct{}
}

func newAdminWriteQueue() *AdminWriteQueue {
	return &AdminWriteQueue{sem: make(chan struct{}, 1)}
}

// Do runs fn with exclusive access to this chain's admin nonce. fn is
// expected to submit a transaction and wait for its receipt before
// returning, since the slot is released only when fn returns.
func (q *AdminWriteQueue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.sem }()
	return fn(ctx)
}

// WriteAndWait is the common path: acquire the queue slot, sign+send via
// client, wait for the receipt, and surface a non-success receipt as the
// caller-supplied failure kind.
func WriteAndWait(ctx context.Context, queue *AdminWriteQueue, client *chainclient.Client, signer chainclient.TxSigner, call chainclient.WriteCall, onReceiptFailure apperr.Kind) (txHash common.Hash, receipt *types.Receipt, err error) {
	runErr := queue.Do(ctx, func(ctx context.Context) error {
		h, err := client.WriteContract(ctx, signer, call)
		if err != nil {
			return err
		}
		txHash = h
		r, err := client.WaitForReceipt(ctx, h)
		if err != nil {
			return err
		}
		receipt = r
		if !chainclient.ReceiptSucceeded(r) {
			return apperr.New(onReceiptFailure, fmt.Sprintf("tx %s reverted", h))
		}
		return nil
	})
	if runErr != nil {
		return txHash, receipt, runErr
	}
	return txHash, receipt, nil
}
