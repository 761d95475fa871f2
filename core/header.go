package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// NewPaymentID returns a fresh payment identifier.
func NewPaymentID() string {
	return "pay_" + uuid.NewString()
}

// PayloadFromAuthorization converts an authorization to its wire payload.
func PayloadFromAuthorization(a types.PaymentAuthorization) types.PaymentPayload {
	return types.PaymentPayload{
		X402Version: types.X402Version1,
		Scheme:      a.Scheme,
		Network:     a.Network,
		Payload: types.Payload{
			Signature: a.Signature,
			Authorization: types.Authorization{
				From:        a.From,
				To:          a.To,
				Value:       a.Value,
				ValidAfter:  a.ValidAfter,
				ValidBefore: a.ValidBefore,
				Nonce:       a.Nonce,
				Asset:       a.Asset,
			},
		},
	}
}

// AuthorizationFromPayload converts a wire payload back to an authorization.
func AuthorizationFromPayload(p types.PaymentPayload) types.PaymentAuthorization {
	return types.PaymentAuthorization{
		Scheme:      p.Scheme,
		Network:     p.Network,
		From:        p.Payload.Authorization.From,
		To:          p.Payload.Authorization.To,
		Value:       p.Payload.Authorization.Value,
		Asset:       p.Payload.Authorization.Asset,
		ValidAfter:  p.Payload.Authorization.ValidAfter,
		ValidBefore: p.Payload.Authorization.ValidBefore,
		Nonce:       p.Payload.Authorization.Nonce,
		Signature:   p.Payload.Signature,
	}
}

// EncodeHeader encodes the authorization as a base64 payment header.
func EncodeHeader(a types.PaymentAuthorization) (string, error) {
	b, err := json.Marshal(PayloadFromAuthorization(a))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeHeader parses a base64 payment header.
func DecodeHeader(header string) (types.PaymentAuthorization, error) {
	b, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return types.PaymentAuthorization{}, invalidInput("payment header is not base64: %v", err)
	}
	var payload types.PaymentPayload
	if err := json.Unmarshal(b, &payload); err != nil {
		return types.PaymentAuthorization{}, invalidInput("payment header is not a payment payload: %v", err)
	}
	if payload.X402Version != types.X402Version1 {
		return types.PaymentAuthorization{}, invalidInput("unsupported x402 version %d", payload.X402Version)
	}
	if payload.Scheme != types.SchemeExact {
		return types.PaymentAuthorization{}, invalidInput("unsupported scheme %q", payload.Scheme)
	}
	return AuthorizationFromPayload(payload), nil
}

// DecodePayload parses a payment payload sent as raw JSON instead of a header.
func DecodePayload(raw json.RawMessage) (types.PaymentAuthorization, error) {
	var payload types.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return types.PaymentAuthorization{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return AuthorizationFromPayload(payload), nil
}
