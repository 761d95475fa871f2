package core

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/raid-guild/x402-facilitator-go/types"
)

const (
	testPayerKey      = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testPayerAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testFacilitator   = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testPayTo         = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testOtherAddress  = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	testAsset         = "0xc01efAaF7C5C61bEbFAeb358E1161b537b8bC0e0"
	testNetwork       = types.NetworkCronosTestnet
	testPaymentAmount = "1000000"
)

var testNow = time.Unix(1_700_000_000, 0)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func fixedNonce() ([32]byte, error) {
	var n [32]byte
	for i := range n {
		n[i] = byte(i + 1)
	}
	return n, nil
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	signer, err := NewPrivateKeySigner(testPayerKey)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return &Builder{
		Signer:         signer,
		Capabilities:   DefaultCapabilities(),
		DefaultNetwork: testNetwork,
		Now:            fixedClock(testNow),
		Nonce:          fixedNonce,
	}
}

func newTestGenerator() RequirementsGenerator {
	return RequirementsGenerator{
		Capabilities:   DefaultCapabilities(),
		DefaultNetwork: testNetwork,
	}
}

func testRequest() types.PaymentRequest {
	return types.PaymentRequest{
		To:    testPayTo,
		Value: testPaymentAmount,
		Asset: testAsset,
	}
}

// signedPayment builds a signed authorization and matching requirements.
func signedPayment(t *testing.T, req types.PaymentRequest) (types.PaymentAuthorization, types.PaymentRequirements) {
	t.Helper()
	auth, err := newTestBuilder(t).BuildAuthorization(context.Background(), req)
	if err != nil {
		t.Fatalf("failed to build authorization: %v", err)
	}
	reqs, err := newTestGenerator().BuildRequirements(req)
	if err != nil {
		t.Fatalf("failed to build requirements: %v", err)
	}
	return auth, reqs
}

func validVerification(reqs types.PaymentRequirements) types.VerifyResponse {
	return types.VerifyResponse{
		Scheme:     reqs.Scheme,
		Network:    reqs.Network,
		IsValid:    true,
		Payer:      testPayerAddress,
		VerifiedAt: testNow.Unix(),
	}
}

// fakeBackend is a settlement backend driven by a function.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	execute func(ctx context.Context, call int) (SettlementOutcome, error)
}

func (b *fakeBackend) Execute(ctx context.Context, _ types.PaymentAuthorization, _ types.PaymentRequirements) (SettlementOutcome, error) {
	b.mu.Lock()
	b.calls++
	call := b.calls
	b.mu.Unlock()
	if b.execute == nil {
		return SettlementOutcome{Transaction: "0xtx"}, nil
	}
	return b.execute(ctx, call)
}

func (b *fakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// reconcilingBackend adds Lookup to fakeBackend.
type reconcilingBackend struct {
	*fakeBackend
	lookups int
	lookup  func() (*SettlementOutcome, error)
}

func (b *reconcilingBackend) Lookup(_ context.Context, _ types.PaymentAuthorization, _ types.PaymentRequirements) (*SettlementOutcome, error) {
	b.lookups++
	return b.lookup()
}

type mockEthClient struct {
	callContract       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	pendingNonceAt     func(ctx context.Context, account common.Address) (uint64, error)
	suggestGasTipCap   func(ctx context.Context) (*big.Int, error)
	headerByNumber     func(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	estimateGas        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	sendTransaction    func(ctx context.Context, tx *ethtypes.Transaction) error
	transactionReceipt func(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

func (m *mockEthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if m.callContract != nil {
		return m.callContract(ctx, msg, blockNumber)
	}
	return common.LeftPadBytes(big.NewInt(1_000_000_000).Bytes(), 32), nil
}

func (m *mockEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if m.pendingNonceAt != nil {
		return m.pendingNonceAt(ctx, account)
	}
	return 0, nil
}

func (m *mockEthClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if m.suggestGasTipCap != nil {
		return m.suggestGasTipCap(ctx)
	}
	return big.NewInt(1000000000), nil
}

func (m *mockEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	if m.headerByNumber != nil {
		return m.headerByNumber(ctx, number)
	}
	return &ethtypes.Header{
		BaseFee: big.NewInt(20000000000),
	}, nil
}

func (m *mockEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if m.estimateGas != nil {
		return m.estimateGas(ctx, msg)
	}
	return 21000, nil
}

func (m *mockEthClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if m.sendTransaction != nil {
		return m.sendTransaction(ctx, tx)
	}
	return nil
}

func (m *mockEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if m.transactionReceipt != nil {
		return m.transactionReceipt(ctx, txHash)
	}
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

func setupMockEthClient(t *testing.T, client *mockEthClient) {
	t.Helper()

	originalDialChain := DialChain
	t.Cleanup(func() {
		DialChain = originalDialChain
	})

	DialChain = func(rpcURL string) (ChainClient, error) {
		return client, nil
	}
}
