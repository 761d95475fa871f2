package core

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Verifier checks authorizations against requirements without touching the
// ledger. Checks run in a fixed order and the first failure is reported.
type Verifier struct {
	Capabilities Capabilities

	// SignatureVerifier defaults to RecoverVerifier.
	SignatureVerifier SignatureVerifier

	// Now defaults to the wall clock.
	Now func() time.Time
}

// Verify verifies the authorization against the requirements. Invalid
// payments are reported in the response; a non-nil error is only returned
// when the signature verifier itself fails.
func (v *Verifier) Verify(ctx context.Context, a types.PaymentAuthorization, r types.PaymentRequirements) (types.VerifyResponse, error) {

	now := v.now()

	// Verify the authorization to address matches the required pay to address
	if !sameAddress(a.To, r.PayTo) {
		return invalid(r, types.InvalidReasonInvalidAuthorizationToAddressMismatch), nil
	}

	// Verify the authorization asset matches the required asset
	if !sameAsset(a.Asset, r.Asset) {
		return invalid(r, types.InvalidReasonInvalidAuthorizationAssetMismatch), nil
	}

	// Convert the authorization value from string to big.Int
	authValue, ok := new(big.Int).SetString(a.Value, 10)
	if !ok || authValue.Sign() <= 0 {
		return invalid(r, types.InvalidReasonInvalidAuthorizationValue), nil
	}

	// Convert the max amount required from string to big.Int
	required, ok := new(big.Int).SetString(r.MaxAmountRequired, 10)
	if !ok || required.Sign() < 0 {
		return invalid(r, types.InvalidReasonInvalidRequirementsMaxAmount), nil
	}

	// Verify the requirements timeout is usable
	if r.MaxTimeoutSeconds < 0 {
		return invalid(r, types.InvalidReasonInvalidRequirementsMaxTimeout), nil
	}

	// Verify the authorization value covers the required amount
	if authValue.Cmp(required) < 0 {
		return invalid(r, types.InvalidReasonInvalidAuthorizationValueInsufficient), nil
	}

	// Verify the authorization is already active
	if now.Unix() < a.ValidAfter {
		return invalid(r, types.InvalidReasonInvalidAuthorizationValidAfter), nil
	}

	// Verify the authorization has not expired (validBefore is inclusive)
	if now.Unix() > a.ValidBefore {
		return invalid(r, types.InvalidReasonInvalidAuthorizationValidBefore), nil
	}

	// Verify the authorization network matches the required network
	if a.Network != r.Network {
		return invalid(r, types.InvalidReasonInvalidNetworkMismatch), nil
	}

	// Resolve the signing domain for the network and asset
	domain, reason := v.domain(r)
	if reason != "" {
		return invalid(r, reason), nil
	}

	// Verify authorization from is a valid address
	if !common.IsHexAddress(a.From) {
		return invalid(r, types.InvalidReasonInvalidAuthorizationFromAddress), nil
	}

	// Verify the nonce is a bytes32 value
	if _, err := decodeNonce(a.Nonce); err != nil {
		return invalid(r, types.InvalidReasonInvalidAuthorizationNonce), nil
	}

	// Verify the typed data message can be hashed
	if _, err := AuthorizationDigest(domain, a); err != nil {
		return invalid(r, types.InvalidReasonInvalidTypedDataMessage), nil
	}

	// Verify the signature was produced by the payer
	ok, err := v.signatureVerifier().VerifySignature(ctx, a, domain)
	if err != nil {
		return types.VerifyResponse{}, fmt.Errorf("failed to verify signature: %w", err)
	}
	if !ok {
		return invalid(r, types.InvalidReasonInvalidAuthorizationSignature), nil
	}

	// Return verify response valid with the payer address
	return types.VerifyResponse{
		Scheme:     r.Scheme,
		Network:    r.Network,
		IsValid:    true,
		Payer:      common.HexToAddress(a.From).Hex(),
		VerifiedAt: now.Unix(),
	}, nil
}

// domain resolves the EIP-712 domain the payer should have signed in.
func (v *Verifier) domain(r types.PaymentRequirements) (Domain, types.InvalidReason) {
	info, ok := v.Capabilities.Lookup(r.Network)
	if !ok {
		return Domain{}, types.InvalidReasonInvalidNetwork
	}
	asset, ok := info.Asset(r.Asset)
	if !ok {
		return Domain{}, types.InvalidReasonInvalidPaymentRequirements
	}
	if r.Extra != nil && r.Extra.Name != "" {
		asset.Name = r.Extra.Name
		asset.Version = r.Extra.Version
	}
	return info.Domain(asset), ""
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) signatureVerifier() SignatureVerifier {
	if v.SignatureVerifier != nil {
		return v.SignatureVerifier
	}
	return RecoverVerifier{}
}

func invalid(r types.PaymentRequirements, reason types.InvalidReason) types.VerifyResponse {
	return types.VerifyResponse{
		Scheme:        r.Scheme,
		Network:       r.Network,
		IsValid:       false,
		InvalidReason: reason,
	}
}

func sameAddress(a, b string) bool {
	return common.IsHexAddress(a) && common.IsHexAddress(b) && common.HexToAddress(a) == common.HexToAddress(b)
}

// sameAsset treats two absent assets as the same native asset.
func sameAsset(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return sameAddress(a, b)
}
