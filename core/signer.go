package core

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Signer signs authorization digests on behalf of a payer.
type Signer interface {
	// Sign returns a 65 byte [R || S || V] signature over the digest.
	Sign(ctx context.Context, digest []byte) ([]byte, error)
	// Address returns the payer address that signatures recover to.
	Address() string
}

// SignatureVerifier checks that an authorization was signed by its payer.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, a types.PaymentAuthorization, d Domain) (bool, error)
}

// PrivateKeySigner signs with a local secp256k1 key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewPrivateKeySigner parses a hex private key, with or without 0x prefix.
func NewPrivateKeySigner(hexKey string) (*PrivateKeySigner, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("%w: private key is not configured", ErrSignerUnavailable)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrSignerUnavailable, err)
	}
	return &PrivateKeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Sign signs the digest and returns the signature with V in {27, 28}.
func (s *PrivateKeySigner) Sign(_ context.Context, digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Address returns the checksummed signer address.
func (s *PrivateKeySigner) Address() string {
	return s.address.Hex()
}

// RecoverVerifier verifies signatures offline by recovering the signer's
// public key from the digest.
type RecoverVerifier struct{}

// VerifySignature reports whether the signature recovers to a.From.
// Malformed signatures are reported as invalid, not as errors.
func (RecoverVerifier) VerifySignature(_ context.Context, a types.PaymentAuthorization, d Domain) (bool, error) {

	// Compute the typed data digest
	sighash, err := AuthorizationDigest(d, a)
	if err != nil {
		return false, nil
	}

	// Parse the payload signature
	signature, err := common.ParseHexOrString(a.Signature)
	if err != nil {
		return false, nil
	}

	// Verify the signature is exactly 65 bytes (32 bytes r + 32 bytes s + 1 byte v)
	if len(signature) != 65 {
		return false, nil
	}

	// Convert the V value of the signature if necessary (27/28 → 0/1)
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] == 27 || sig[64] == 28 {
		sig[64] -= 27
	}

	// Recover the public key
	pubkey, err := crypto.SigToPub(sighash, sig)
	if err != nil {
		return false, nil
	}

	// Verify the sender matches the authorization from
	return crypto.PubkeyToAddress(*pubkey) == common.HexToAddress(a.From), nil
}
