package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// DefaultValiditySeconds is the authorization lifetime when validBefore is absent.
const DefaultValiditySeconds = 600

// Builder produces signed payment authorizations on the payer side.
type Builder struct {
	Signer         Signer
	Capabilities   Capabilities
	DefaultNetwork types.Network

	// Now and Nonce default to the wall clock and crypto/rand.
	Now   func() time.Time
	Nonce func() ([32]byte, error)
}

// BuildAuthorization validates the request, fills in defaults and signs the
// resulting EIP-3009 transfer authorization.
func (b *Builder) BuildAuthorization(ctx context.Context, req types.PaymentRequest) (types.PaymentAuthorization, error) {

	// Verify a signer is configured
	if b.Signer == nil {
		return types.PaymentAuthorization{}, fmt.Errorf("%w: no signer configured", ErrSignerUnavailable)
	}

	// Verify the request fields
	if err := validateRequest(req); err != nil {
		return types.PaymentAuthorization{}, err
	}

	// Resolve the network and asset to an EIP-712 domain
	network := req.Network
	if network == "" {
		network = b.DefaultNetwork
	}
	info, ok := b.Capabilities.Lookup(network)
	if !ok {
		return types.PaymentAuthorization{}, invalidInput("unsupported network %q", network)
	}
	asset, ok := info.Asset(req.Asset)
	if !ok {
		return types.PaymentAuthorization{}, invalidInput("unsupported asset %q on %s", req.Asset, network)
	}

	// Apply the validity window defaults
	now := b.now()
	validAfter := int64(0)
	if req.ValidAfter != nil {
		validAfter = *req.ValidAfter
	}
	validBefore := now.Unix() + DefaultValiditySeconds
	if req.ValidBefore != nil {
		validBefore = *req.ValidBefore
	}
	if validAfter >= validBefore {
		return types.PaymentAuthorization{}, invalidInput("validAfter %d must be before validBefore %d", validAfter, validBefore)
	}

	// Generate the replay protection nonce
	nonce, err := b.nonce()
	if err != nil {
		return types.PaymentAuthorization{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	auth := types.PaymentAuthorization{
		Scheme:      types.SchemeExact,
		Network:     network,
		From:        b.Signer.Address(),
		To:          common.HexToAddress(req.To).Hex(),
		Value:       canonicalAmount(req.Value),
		Asset:       canonicalAsset(req.Asset),
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       hexutil.Encode(nonce[:]),
	}

	// Compute the digest and request a signature over it
	digest, err := AuthorizationDigest(info.Domain(asset), auth)
	if err != nil {
		return types.PaymentAuthorization{}, invalidInput("%v", err)
	}
	signature, err := b.Signer.Sign(ctx, digest)
	if err != nil {
		return types.PaymentAuthorization{}, fmt.Errorf("%w: %v", ErrSignerUnavailable, err)
	}
	auth.Signature = "0x" + hex.EncodeToString(signature)

	return auth, nil
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Builder) nonce() ([32]byte, error) {
	if b.Nonce != nil {
		return b.Nonce()
	}
	var n [32]byte
	_, err := rand.Read(n[:])
	return n, err
}

// validateRequest checks the fields shared by authorizations and requirements.
func validateRequest(req types.PaymentRequest) error {
	if !common.IsHexAddress(req.To) {
		return invalidInput("recipient %q is not a valid address", req.To)
	}
	if _, err := parseAmount(req.Value); err != nil {
		return err
	}
	if req.Asset != "" && !common.IsHexAddress(req.Asset) {
		return invalidInput("asset %q is not a valid address", req.Asset)
	}
	if req.ValidAfter != nil && req.ValidBefore != nil && *req.ValidAfter >= *req.ValidBefore {
		return invalidInput("validAfter %d must be before validBefore %d", *req.ValidAfter, *req.ValidBefore)
	}
	if req.MaxTimeoutSeconds < 0 {
		return invalidInput("maxTimeoutSeconds must not be negative")
	}
	return nil
}

// parseAmount parses a strictly positive base-unit decimal integer.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, invalidInput("amount is required")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, invalidInput("amount %q is not a base-unit integer", s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, invalidInput("amount %q must be positive", s)
	}
	return v, nil
}

func canonicalAmount(s string) string {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return s
	}
	return v.String()
}

func canonicalAsset(s string) string {
	if s == "" {
		return ""
	}
	return common.HexToAddress(s).Hex()
}
