package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raid-guild/x402-facilitator-go/types"
)

type stubSignatureVerifier struct {
	ok  bool
	err error
}

func (s stubSignatureVerifier) VerifySignature(context.Context, types.PaymentAuthorization, Domain) (bool, error) {
	return s.ok, s.err
}

func newTestVerifier() *Verifier {
	return &Verifier{
		Capabilities: DefaultCapabilities(),
		Now:          fixedClock(testNow),
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("valid authorization", func(t *testing.T) {
		auth, reqs := signedPayment(t, testRequest())

		response, err := newTestVerifier().Verify(ctx, auth, reqs)
		require.NoError(t, err)

		assert.True(t, response.IsValid)
		assert.Empty(t, response.InvalidReason)
		assert.Equal(t, common.HexToAddress(testPayerAddress).Hex(), response.Payer)
		assert.Equal(t, testNow.Unix(), response.VerifiedAt)
		assert.Equal(t, types.SchemeExact, response.Scheme)
		assert.Equal(t, testNetwork, response.Network)
	})

	t.Run("valid native asset authorization", func(t *testing.T) {
		req := testRequest()
		req.Asset = ""
		auth, reqs := signedPayment(t, req)

		response, err := newTestVerifier().Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.True(t, response.IsValid)
	})

	t.Run("verify has no side effects and repeats the same verdict", func(t *testing.T) {
		auth, reqs := signedPayment(t, testRequest())
		v := newTestVerifier()

		first, err := v.Verify(ctx, auth, reqs)
		require.NoError(t, err)
		second, err := v.Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	cases := []struct {
		name   string
		mutate func(a *types.PaymentAuthorization, r *types.PaymentRequirements)
		reason types.InvalidReason
	}{
		{
			name:   "recipient mismatch",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { r.PayTo = testOtherAddress },
			reason: types.InvalidReasonInvalidAuthorizationToAddressMismatch,
		},
		{
			name:   "asset mismatch",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { r.Asset = testOtherAddress },
			reason: types.InvalidReasonInvalidAuthorizationAssetMismatch,
		},
		{
			name:   "asset required but absent",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.Asset = "" },
			reason: types.InvalidReasonInvalidAuthorizationAssetMismatch,
		},
		{
			name:   "amount one unit below required",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { r.MaxAmountRequired = "1000001" },
			reason: types.InvalidReasonInvalidAuthorizationValueInsufficient,
		},
		{
			name:   "malformed amount",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.Value = "lots" },
			reason: types.InvalidReasonInvalidAuthorizationValue,
		},
		{
			name:   "malformed required amount",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { r.MaxAmountRequired = "" },
			reason: types.InvalidReasonInvalidRequirementsMaxAmount,
		},
		{
			name:   "negative requirements timeout",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { r.MaxTimeoutSeconds = -1 },
			reason: types.InvalidReasonInvalidRequirementsMaxTimeout,
		},
		{
			name:   "not yet valid",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.ValidAfter = testNow.Unix() + 1 },
			reason: types.InvalidReasonInvalidAuthorizationValidAfter,
		},
		{
			name:   "expired one second ago",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.ValidBefore = testNow.Unix() - 1 },
			reason: types.InvalidReasonInvalidAuthorizationValidBefore,
		},
		{
			name:   "network mismatch",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.Network = types.NetworkSepolia },
			reason: types.InvalidReasonInvalidNetworkMismatch,
		},
		{
			name: "unsupported network",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) {
				a.Network = "solana"
				r.Network = "solana"
			},
			reason: types.InvalidReasonInvalidNetwork,
		},
		{
			name: "unsupported asset",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) {
				a.Asset = testOtherAddress
				r.Asset = testOtherAddress
			},
			reason: types.InvalidReasonInvalidPaymentRequirements,
		},
		{
			name:   "malformed nonce",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.Nonce = "0x1234" },
			reason: types.InvalidReasonInvalidAuthorizationNonce,
		},
		{
			name:   "malformed payer",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.From = "alice" },
			reason: types.InvalidReasonInvalidAuthorizationFromAddress,
		},
		{
			name:   "signature from another payer",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.From = testOtherAddress },
			reason: types.InvalidReasonInvalidAuthorizationSignature,
		},
		{
			name:   "tampered amount",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.Value = "2000000" },
			reason: types.InvalidReasonInvalidAuthorizationSignature,
		},
		{
			name:   "truncated signature",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { a.Signature = a.Signature[:20] },
			reason: types.InvalidReasonInvalidAuthorizationSignature,
		},
		{
			name:   "signed under another domain",
			mutate: func(a *types.PaymentAuthorization, r *types.PaymentRequirements) { r.Extra = &types.Extra{Name: "USDC", Version: "2"} },
			reason: types.InvalidReasonInvalidAuthorizationSignature,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name+" is invalid", func(t *testing.T) {
			auth, reqs := signedPayment(t, testRequest())
			tc.mutate(&auth, &reqs)

			response, err := newTestVerifier().Verify(ctx, auth, reqs)
			require.NoError(t, err)
			assert.False(t, response.IsValid)
			assert.Equal(t, tc.reason, response.InvalidReason)
			assert.Empty(t, response.Payer)
		})
	}

	t.Run("recipient is checked before amount", func(t *testing.T) {
		auth, reqs := signedPayment(t, testRequest())
		reqs.PayTo = testOtherAddress
		reqs.MaxAmountRequired = "999999999"

		response, err := newTestVerifier().Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationToAddressMismatch, response.InvalidReason)
	})

	t.Run("amount is checked before the time window", func(t *testing.T) {
		auth, reqs := signedPayment(t, testRequest())
		reqs.MaxAmountRequired = "999999999"
		auth.ValidBefore = testNow.Unix() - 100

		response, err := newTestVerifier().Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationValueInsufficient, response.InvalidReason)
	})

	t.Run("amount above required is valid", func(t *testing.T) {
		auth, reqs := signedPayment(t, testRequest())
		reqs.MaxAmountRequired = "999999"

		response, err := newTestVerifier().Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.True(t, response.IsValid)
	})

	t.Run("validBefore equal to now is valid", func(t *testing.T) {
		req := testRequest()
		req.ValidBefore = int64Ptr(testNow.Unix() + 100)
		auth, reqs := signedPayment(t, req)

		v := newTestVerifier()
		v.Now = fixedClock(testNow.Add(100 * time.Second))

		response, err := v.Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.True(t, response.IsValid)
	})

	t.Run("validAfter equal to now is valid", func(t *testing.T) {
		req := testRequest()
		req.ValidAfter = int64Ptr(testNow.Unix())
		auth, reqs := signedPayment(t, req)

		response, err := newTestVerifier().Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.True(t, response.IsValid)
	})

	t.Run("legacy v values are accepted", func(t *testing.T) {
		auth, reqs := signedPayment(t, testRequest())
		sig := common.FromHex(auth.Signature)
		sig[64] -= 27
		auth.Signature = "0x" + common.Bytes2Hex(sig)

		response, err := newTestVerifier().Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.True(t, response.IsValid)
	})

	t.Run("signature verifier failure is an error", func(t *testing.T) {
		auth, reqs := signedPayment(t, testRequest())
		v := newTestVerifier()
		v.SignatureVerifier = stubSignatureVerifier{err: errors.New("rpc unavailable")}

		_, err := v.Verify(ctx, auth, reqs)
		assert.Error(t, err)
	})

	t.Run("custom signature verifier decides validity", func(t *testing.T) {
		auth, reqs := signedPayment(t, testRequest())
		v := newTestVerifier()
		v.SignatureVerifier = stubSignatureVerifier{ok: false}

		response, err := v.Verify(ctx, auth, reqs)
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationSignature, response.InvalidReason)
	})
}
