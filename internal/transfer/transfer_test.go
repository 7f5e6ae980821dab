package transfer

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/adminsigner"
	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/attestation"
	"github.com/bitsandtea/agent-mrkt/internal/chainclient"
	"github.com/bitsandtea/agent-mrkt/internal/chainregistry"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeRPC satisfies chainclient.RPC. Every write is recorded; every receipt
// carries a MessageSent log so extractMessageHash always has something to
// find, regardless of which write produced it.
type fakeRPC struct {
	chainID int64
	sent    []ethereum.CallMsg
}

func (f *fakeRPC) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(f.chainID), nil }
func (f *fakeRPC) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error)    { return big.NewInt(1), nil }
func (f *fakeRPC) SuggestGasTipCap(ctx context.Context) (*big.Int, error)  { return big.NewInt(1), nil }
func (f *fakeRPC) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.sent = append(f.sent, msg)
	return 100000, nil
}
func (f *fakeRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (f *fakeRPC) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{{
			Topics: []common.Hash{messageSentTopic},
			Data:   []byte("mock-burn-message"),
		}},
	}, nil
}
func (f *fakeRPC) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

// fakeStore implements store.Store, recording cross-chain payment writes.
type fakeStore struct {
	mu       sync.Mutex
	created  []*domain.CrossChainPayment
	patches  map[string]store.CrossChainPaymentPatch
}

func newFakeStore() *fakeStore { return &fakeStore{patches: make(map[string]store.CrossChainPaymentPatch)} }

func (s *fakeStore) CreatePermit(ctx context.Context, p *domain.Permit) error { return nil }
func (s *fakeStore) GetPermit(ctx context.Context, id string) (*domain.Permit, error) {
	return nil, store.ErrNotFound
}
func (s *fakeStore) ListPermitsByUser(ctx context.Context, userAddress string) ([]*domain.Permit, error) {
	return nil, nil
}
func (s *fakeStore) UpdatePermitStatus(ctx context.Context, id string, status domain.PermitStatus) error {
	return nil
}
func (s *fakeStore) UpdatePermitUsage(ctx context.Context, id string, callsUsed int64) error {
	return nil
}
func (s *fakeStore) CreateCrossChainPayment(ctx context.Context, p *domain.CrossChainPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, p)
	return nil
}
func (s *fakeStore) GetCrossChainPayment(ctx context.Context, id string) (*domain.CrossChainPayment, error) {
	return nil, store.ErrNotFound
}
func (s *fakeStore) UpdateCrossChainPayment(ctx context.Context, id string, patch store.CrossChainPaymentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches[id] = patch
	return nil
}
func (s *fakeStore) ListPendingCrossChainPayments(ctx context.Context) ([]*domain.CrossChainPayment, error) {
	return nil, nil
}
func (s *fakeStore) CreatePayment(ctx context.Context, p *domain.Payment) error { return nil }
func (s *fakeStore) GetPaymentByAPICallID(ctx context.Context, apiCallID string) (*domain.Payment, error) {
	return nil, store.ErrNotFound
}
func (s *fakeStore) GetSubscription(ctx context.Context, userID, agentID string) (*domain.Subscription, error) {
	return nil, store.ErrNotFound
}
func (s *fakeStore) UpdateSubscriptionUsage(ctx context.Context, id string, wasFreeTrial bool) error {
	return nil
}
func (s *fakeStore) LogAPICall(ctx context.Context, l *domain.APICallLog) error { return nil }

func testRegistry() *chainregistry.Registry {
	return chainregistry.New(
		common.HexToAddress("0xVAULT"),
		[]chainregistry.Chain{
			{ChainID: 8453, Name: "base", TokenMessengerAddress: common.HexToAddress("0xTM8453"), MessageTransmitterAddress: common.HexToAddress("0xMT8453"), DestinationDomain: 6, HasDestinationDomain: true},
			{ChainID: 10, Name: "optimism", TokenMessengerAddress: common.HexToAddress("0xTM10"), MessageTransmitterAddress: common.HexToAddress("0xMT10"), DestinationDomain: 2, HasDestinationDomain: true},
		},
		map[string]map[uint64]common.Address{"USDC": {8453: common.HexToAddress("0xTOKEN8453"), 10: common.HexToAddress("0xTOKEN10")}},
		map[string]uint8{"USDC": 6},
	)
}

func mustTestSigner(t *testing.T) *adminsigner.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := adminsigner.New(common.Bytes2Hex(crypto.FromECDSA(key)), "")
	if err != nil {
		t.Fatalf("adminsigner.New: %v", err)
	}
	return s
}

func TestTransferSameChainSubmitsSingleWrite(t *testing.T) {
	rpc := &fakeRPC{chainID: 8453}
	client := chainclient.New(8453, rpc, time.Second)
	signer := mustTestSigner(t)
	engine := New(testRegistry(), map[uint64]*chainclient.Client{8453: client}, signer, nil, nil)

	req := Request{
		UserAddress:      common.HexToAddress("0xUSER"),
		PublisherAddress: common.HexToAddress("0xPUB"),
		Token:            "USDC",
		SourceChainID:    8453,
		PayoutToken:      "USDC",
		PayoutChainID:    8453,
		Amount:           big.NewInt(1_000_000),
	}

	result, err := engine.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.MessageHash != "" || result.CrossChainPaymentID != "" {
		t.Fatalf("same-chain result should carry no cross-chain fields: %+v", result)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected exactly one on-chain write, got %d", len(rpc.sent))
	}
}

func TestTransferCrossChainRejectsNonUSDC(t *testing.T) {
	rpc := &fakeRPC{chainID: 8453}
	client := chainclient.New(8453, rpc, time.Second)
	signer := mustTestSigner(t)
	engine := New(testRegistry(), map[uint64]*chainclient.Client{8453: client}, signer, nil, nil)

	req := Request{
		Token:         "PYUSD",
		SourceChainID: 8453,
		PayoutToken:   "USDC",
		PayoutChainID: 10,
		Amount:        big.NewInt(1_000_000),
	}

	_, err := engine.Transfer(context.Background(), req)
	if apperr.KindOf(err) != apperr.UnsupportedRoute {
		t.Fatalf("want UnsupportedRoute, got %v", err)
	}
	if len(rpc.sent) != 0 {
		t.Fatalf("gate should reject before any write, got %d writes", len(rpc.sent))
	}
}

func TestTransferCrossChainHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"status":"complete","attestation":"0xaaaa","message":"0xbbbb"}]}`))
	}))
	defer srv.Close()

	sourceRPC := &fakeRPC{chainID: 8453}
	targetRPC := &fakeRPC{chainID: 10}
	sourceClient := chainclient.New(8453, sourceRPC, time.Second)
	targetClient := chainclient.New(10, targetRPC, time.Second)
	signer := mustTestSigner(t)
	attestClient := attestation.New(srv.URL, srv.Client(), 5*time.Millisecond, 5*time.Millisecond, time.Second)
	st := newFakeStore()
	engine := New(testRegistry(), map[uint64]*chainclient.Client{8453: sourceClient, 10: targetClient}, signer, attestClient, st)

	req := Request{
		PermitID:         "permit-1",
		UserID:           "user-1",
		AgentID:          "agent-1",
		UserAddress:      common.HexToAddress("0xUSER"),
		PublisherAddress: common.HexToAddress("0xPUB"),
		Token:            "USDC",
		SourceChainID:    8453,
		PayoutToken:      "USDC",
		PayoutChainID:    10,
		Amount:           big.NewInt(5_000_000),
		TransferType:     TransferFast,
	}

	result, err := engine.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.CrossChainPaymentID == "" || result.MessageHash == "" || result.TransactionHash == "" {
		t.Fatalf("incomplete result: %+v", result)
	}

	// pull, approve, burn on source; receiveMessage on target.
	if len(sourceRPC.sent) != 3 {
		t.Fatalf("expected 3 source-chain writes, got %d", len(sourceRPC.sent))
	}
	if len(targetRPC.sent) != 1 {
		t.Fatalf("expected 1 target-chain write, got %d", len(targetRPC.sent))
	}

	if len(st.created) != 1 {
		t.Fatalf("expected one persisted cross-chain payment, got %d", len(st.created))
	}
	if st.created[0].AttestationStatus != domain.AttestationPending {
		t.Fatalf("payment should be persisted as pending before the attestation wait, got %v", st.created[0].AttestationStatus)
	}

	patch, ok := st.patches[result.CrossChainPaymentID]
	if !ok {
		t.Fatalf("expected a finalizing patch for %s", result.CrossChainPaymentID)
	}
	if patch.AttestationStatus == nil || *patch.AttestationStatus != domain.AttestationComplete {
		t.Fatalf("expected finalized patch to set status complete, got %+v", patch.AttestationStatus)
	}
}

func TestTransferCrossChainUnconfiguredChainFails(t *testing.T) {
	rpc := &fakeRPC{chainID: 8453}
	client := chainclient.New(8453, rpc, time.Second)
	signer := mustTestSigner(t)
	engine := New(testRegistry(), map[uint64]*chainclient.Client{8453: client}, signer, nil, nil)

	req := Request{
		Token:         "USDC",
		SourceChainID: 8453,
		PayoutToken:   "USDC",
		PayoutChainID: 999, // no client configured
		Amount:        big.NewInt(1_000_000),
	}

	_, err := engine.Transfer(context.Background(), req)
	if apperr.KindOf(err) != apperr.UnsupportedChain {
		t.Fatalf("want UnsupportedChain, got %v", err)
	}
}
