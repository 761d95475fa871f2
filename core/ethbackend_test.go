package core

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raid-guild/x402-facilitator-go/types"
)

func newTestEthBackend(t *testing.T, waitForReceipt bool) *EthBackend {
	t.Helper()
	b, err := NewEthBackend(EthBackendConfig{
		Capabilities:   DefaultCapabilities(),
		RPCURLs:        map[types.Network]string{testNetwork: "http://localhost:8545"},
		PrivateKey:     testFacilitator,
		WaitForReceipt: waitForReceipt,
	})
	require.NoError(t, err)
	return b
}

func requireSettlementReason(t *testing.T, err error, reason types.ErrorReason) {
	t.Helper()
	var serr *SettlementError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, reason, serr.Reason)
}

func TestEthBackend_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("successful settlement", func(t *testing.T) {
		var sent *ethtypes.Transaction
		setupMockEthClient(t, &mockEthClient{
			sendTransaction: func(_ context.Context, tx *ethtypes.Transaction) error {
				sent = tx
				return nil
			},
		})
		auth, reqs := signedPayment(t, testRequest())

		outcome, err := newTestEthBackend(t, false).Execute(ctx, auth, reqs)
		require.NoError(t, err)

		require.NotNil(t, sent)
		assert.Equal(t, sent.Hash().Hex(), outcome.Transaction)
		assert.Equal(t, common.HexToAddress(testAsset), *sent.To())
		assert.Equal(t, big.NewInt(338), sent.ChainId())
		assert.Equal(t, uint64(21000*120/100), sent.Gas())
	})

	t.Run("successful settlement waits for the receipt", func(t *testing.T) {
		polls := 0
		setupMockEthClient(t, &mockEthClient{
			transactionReceipt: func(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
				polls++
				if polls == 1 {
					return nil, ethereum.NotFound
				}
				return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: hash}, nil
			},
		})
		b := newTestEthBackend(t, true)
		b.cfg.ReceiptPollInterval = 1
		auth, reqs := signedPayment(t, testRequest())

		outcome, err := b.Execute(ctx, auth, reqs)
		require.NoError(t, err)
		assert.NotEmpty(t, outcome.Transaction)
		assert.Equal(t, 2, polls)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			callContract: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return common.LeftPadBytes(big.NewInt(999_999).Bytes(), 32), nil
			},
		})
		auth, reqs := signedPayment(t, testRequest())

		_, err := newTestEthBackend(t, false).Execute(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonInsufficientFunds)
	})

	t.Run("native asset is unsupported", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{})
		req := testRequest()
		req.Asset = ""
		auth, reqs := signedPayment(t, req)

		_, err := newTestEthBackend(t, false).Execute(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonUnsupportedAsset)
	})

	t.Run("gas estimate above the limit", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			estimateGas: func(context.Context, ethereum.CallMsg) (uint64, error) { return 1_000_000, nil },
		})
		b := newTestEthBackend(t, false)
		b.cfg.GasLimit = 100_000
		auth, reqs := signedPayment(t, testRequest())

		_, err := b.Execute(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonInsufficientRequirementsGasLimit)
	})

	t.Run("missing base fee", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			headerByNumber: func(context.Context, *big.Int) (*ethtypes.Header, error) { return &ethtypes.Header{}, nil },
		})
		auth, reqs := signedPayment(t, testRequest())

		_, err := newTestEthBackend(t, false).Execute(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonSettlementBackend)
	})

	t.Run("send failure is a backend error", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			sendTransaction: func(context.Context, *ethtypes.Transaction) error { return errors.New("nonce too low") },
		})
		auth, reqs := signedPayment(t, testRequest())

		_, err := newTestEthBackend(t, false).Execute(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonSettlementBackend)
		assert.ErrorIs(t, err, ErrSettlementBackend)
	})

	t.Run("reverted transaction", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			transactionReceipt: func(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
				return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, TxHash: hash}, nil
			},
		})
		auth, reqs := signedPayment(t, testRequest())

		_, err := newTestEthBackend(t, true).Execute(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonTransactionFailed)
	})

	t.Run("network without an rpc url", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{})
		b := newTestEthBackend(t, false)
		b.cfg.RPCURLs = nil
		auth, reqs := signedPayment(t, testRequest())

		_, err := b.Execute(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonSettlementBackend)
	})

	t.Run("malformed signature", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{})
		auth, reqs := signedPayment(t, testRequest())
		auth.Signature = "0x1234"

		_, err := newTestEthBackend(t, false).Execute(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonInvalidAuthorizationSignature)
	})
}

func TestEthBackend_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("submitted transaction that was mined", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{})
		b := newTestEthBackend(t, false)
		auth, reqs := signedPayment(t, testRequest())

		outcome, err := b.Execute(ctx, auth, reqs)
		require.NoError(t, err)

		found, err := b.Lookup(ctx, auth, reqs)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, outcome.Transaction, found.Transaction)
	})

	t.Run("submitted transaction that is still pending", func(t *testing.T) {
		client := &mockEthClient{}
		setupMockEthClient(t, client)
		b := newTestEthBackend(t, false)
		auth, reqs := signedPayment(t, testRequest())

		_, err := b.Execute(ctx, auth, reqs)
		require.NoError(t, err)

		client.transactionReceipt = func(context.Context, common.Hash) (*ethtypes.Receipt, error) {
			return nil, ethereum.NotFound
		}
		found, err := b.Lookup(ctx, auth, reqs)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("unknown authorization that is unused", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			callContract: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return make([]byte, 32), nil
			},
		})
		auth, reqs := signedPayment(t, testRequest())

		found, err := newTestEthBackend(t, false).Lookup(ctx, auth, reqs)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("unknown authorization that was used elsewhere", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			callContract: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return common.LeftPadBytes([]byte{1}, 32), nil
			},
		})
		auth, reqs := signedPayment(t, testRequest())

		_, err := newTestEthBackend(t, false).Lookup(ctx, auth, reqs)
		requireSettlementReason(t, err, types.ErrorReasonInvalidAuthorizationNonce)
	})
}

func TestEthBackend_VerifySignature(t *testing.T) {
	ctx := context.Background()

	t.Run("verifier accepts the payer signature", func(t *testing.T) {
		v := newTestVerifier()
		v.SignatureVerifier = newTestEthBackend(t, false)
		auth, reqs := signedPayment(t, testRequest())

		response, err := v.Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.True(t, response.IsValid)
	})

	t.Run("signature for another payer is rejected", func(t *testing.T) {
		v := newTestVerifier()
		v.SignatureVerifier = newTestEthBackend(t, false)
		auth, reqs := signedPayment(t, testRequest())
		auth.From = testOtherAddress

		response, err := v.Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.False(t, response.IsValid)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationSignature, response.InvalidReason)
	})
}

func TestNewEthBackend(t *testing.T) {

	t.Run("missing private key", func(t *testing.T) {
		_, err := NewEthBackend(EthBackendConfig{})
		assert.Error(t, err)
	})

	t.Run("malformed private key", func(t *testing.T) {
		_, err := NewEthBackend(EthBackendConfig{PrivateKey: "0xzz"})
		assert.Error(t, err)
	})

	t.Run("address is derived from the key", func(t *testing.T) {
		b := newTestEthBackend(t, false)
		assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8").Hex(), b.Address())
	})
}
