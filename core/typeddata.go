package core

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Domain is the EIP-712 domain of a transfer authorization.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

var transferWithAuthorizationTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// AuthorizationDigest computes the EIP-712 digest of the authorization's
// TransferWithAuthorization message. Signature fields are ignored.
func AuthorizationDigest(d Domain, a types.PaymentAuthorization) ([]byte, error) {

	// Convert the authorization value from string to big.Int
	value, ok := new(big.Int).SetString(a.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value %q", a.Value)
	}

	// Decode the nonce from hex to bytes
	nonce, err := decodeNonce(a.Nonce)
	if err != nil {
		return nil, err
	}

	// Convert the chain ID to hex or decimal
	hexChainID := math.HexOrDecimal256(*big.NewInt(d.ChainID))

	// Construct the typed data
	typedData := apitypes.TypedData{
		Types:       transferWithAuthorizationTypes,
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           &hexChainID,
			VerifyingContract: d.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        a.From,
			"to":          a.To,
			"value":       value,
			"validAfter":  big.NewInt(a.ValidAfter),
			"validBefore": big.NewInt(a.ValidBefore),
			"nonce":       nonce,
		},
	}

	// Compute the domain hash
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	// Compute the message hash
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Construct the signature hash
	rawData := append(append([]byte("\x19\x01"), domainSeparator...), typedDataHash...)
	return crypto.Keccak256(rawData), nil
}

// decodeNonce decodes a 0x-prefixed bytes32 nonce.
func decodeNonce(s string) ([32]byte, error) {
	var nonce [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nonce, fmt.Errorf("invalid authorization nonce: %w", err)
	}
	if len(b) != 32 {
		return nonce, fmt.Errorf("nonce must be exactly 32 bytes, got %d bytes", len(b))
	}
	copy(nonce[:], b)
	return nonce, nil
}
