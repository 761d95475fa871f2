package types

import (
	"encoding/json"
	"time"
)

// PaymentRequest is the payer input for a single payment attempt.
type PaymentRequest struct {
	To                string  `json:"to"`
	Value             string  `json:"value"`
	Asset             string  `json:"asset,omitempty"`
	Network           Network `json:"network,omitempty"`
	ValidAfter        *int64  `json:"validAfter,omitempty"`
	ValidBefore       *int64  `json:"validBefore,omitempty"`
	Description       string  `json:"description,omitempty"`
	MaxTimeoutSeconds int64   `json:"maxTimeoutSeconds,omitempty"`
	MimeType          string  `json:"mimeType,omitempty"`
}

// PaymentAuthorization is a signed, time-bounded transfer authorization.
// An empty Asset means the network's native asset.
type PaymentAuthorization struct {
	Scheme      Scheme  `json:"scheme"`
	Network     Network `json:"network"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	Asset       string  `json:"asset,omitempty"`
	ValidAfter  int64   `json:"validAfter"`
	ValidBefore int64   `json:"validBefore"`
	Nonce       string  `json:"nonce"`
	Signature   string  `json:"signature"`
}

// PaymentRequirements is the payment requirements.
type PaymentRequirements struct {
	Scheme            Scheme  `json:"scheme"`
	Network           Network `json:"network"`
	PayTo             string  `json:"payTo"`
	Asset             string  `json:"asset,omitempty"`
	MaxAmountRequired string  `json:"maxAmountRequired"`
	MaxTimeoutSeconds int64   `json:"maxTimeoutSeconds"`
	Description       string  `json:"description"`
	MimeType          string  `json:"mimeType,omitempty"`
	Extra             *Extra  `json:"extra,omitempty"`
}

// Extra is the extra of the payment requirements.
type Extra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentPayload is the payment payload carried by the payment header.
type PaymentPayload struct {
	X402Version X402Version `json:"x402Version"`
	Scheme      Scheme      `json:"scheme"`
	Network     Network     `json:"network"`
	Payload     Payload     `json:"payload"`
}

// Payload is the payload of the payment payload.
type Payload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization is the authorization of the payload.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Asset       string `json:"asset,omitempty"`
}

// LedgerEntry records one settled payment.
type LedgerEntry struct {
	PaymentID   string        `json:"paymentId"`
	Status      PaymentStatus `json:"status"`
	Transaction string        `json:"transaction,omitempty"`
	Payer       string        `json:"payer"`
	PayTo       string        `json:"payTo"`
	Amount      string        `json:"amount"`
	Asset       string        `json:"asset,omitempty"`
	Network     Network       `json:"network"`
	SettledAt   time.Time     `json:"settledAt"`
}

// RequestBody is the request body.
type RequestBody struct {
	X402Version         X402Version     `json:"x402Version"`
	PaymentID           string          `json:"paymentId,omitempty"`
	PaymentHeader       string          `json:"paymentHeader,omitempty"`
	PaymentPayload      json.RawMessage `json:"paymentPayload,omitempty"`
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
}

// SettleResponse is the response of the settle operation.
type SettleResponse struct {
	Scheme         Scheme        `json:"scheme,omitempty"`
	Network        Network       `json:"network,omitempty"`
	Success        bool          `json:"success"`
	PaymentID      string        `json:"paymentId,omitempty"`
	Transaction    string        `json:"transaction,omitempty"`
	AlreadySettled bool          `json:"alreadySettled,omitempty"`
	Payer          string        `json:"payer,omitempty"`
	Entry          *LedgerEntry  `json:"entry,omitempty"`
	ErrorReason    ErrorReason   `json:"errorReason,omitempty"`
	InvalidReason  InvalidReason `json:"invalidReason,omitempty"`
}

// VerifyResponse is the response of the verify operation.
type VerifyResponse struct {
	Scheme        Scheme        `json:"scheme,omitempty"`
	Network       Network       `json:"network,omitempty"`
	IsValid       bool          `json:"isValid"`
	Payer         string        `json:"payer,omitempty"`
	InvalidReason InvalidReason `json:"invalidReason,omitempty"`
	VerifiedAt    int64         `json:"verifiedAt,omitempty"`
}

// SupportedKind is a supported (version, scheme, network) combination.
type SupportedKind struct {
	X402Version X402Version `json:"x402Version"`
	Scheme      Scheme      `json:"scheme"`
	Network     Network     `json:"network"`
	ChainID     int64       `json:"chainId"`
	Assets      []Asset     `json:"assets,omitempty"`
}

// Asset describes a token accepted on a network.
type Asset struct {
	Address  string `json:"address,omitempty"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Decimals int    `json:"decimals"`
	Native   bool   `json:"native,omitempty"`
}

// SupportedResponse is the response of the supported operation.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// PaymentResult is what a payer hands to a merchant for one payment attempt.
type PaymentResult struct {
	PaymentID           string              `json:"paymentId"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
	SignerAddress       string              `json:"signerAddress"`
	ExpiresAt           int64               `json:"expiresAt"`
	SubmittedTo         string              `json:"submittedTo,omitempty"`
	MerchantResponse    json.RawMessage     `json:"merchantResponse,omitempty"`
}
