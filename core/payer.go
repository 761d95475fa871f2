package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Payer produces everything a client hands to a merchant for one payment:
// a fresh payment id, the signed payment header and the requirements the
// merchant verifies it against.
type Payer struct {
	Builder   *Builder
	Generator *RequirementsGenerator

	// HTTPClient is used to submit payments to a merchant endpoint.
	HTTPClient *http.Client
}

// Pay builds and signs a payment for the request. When endpoint is not
// empty the payment is posted to it and the merchant's reply is attached
// to the result. A failed submission still returns the built payment.
func (p *Payer) Pay(ctx context.Context, req types.PaymentRequest, endpoint string) (types.PaymentResult, error) {
	if req.Network == "" {
		req.Network = p.Builder.DefaultNetwork
	}

	reqs, err := p.Generator.BuildRequirements(req)
	if err != nil {
		return types.PaymentResult{}, err
	}

	auth, err := p.Builder.BuildAuthorization(ctx, req)
	if err != nil {
		return types.PaymentResult{}, err
	}

	header, err := EncodeHeader(auth)
	if err != nil {
		return types.PaymentResult{}, fmt.Errorf("failed to encode payment header: %w", err)
	}

	result := types.PaymentResult{
		PaymentID:           NewPaymentID(),
		PaymentHeader:       header,
		PaymentRequirements: reqs,
		SignerAddress:       auth.From,
		ExpiresAt:           auth.ValidBefore,
	}
	if endpoint == "" {
		return result, nil
	}

	result.SubmittedTo = endpoint
	body, err := p.submit(ctx, endpoint, result)
	result.MerchantResponse = body
	return result, err
}

func (p *Payer) submit(ctx context.Context, endpoint string, result types.PaymentResult) (json.RawMessage, error) {
	reqsJSON, err := json.Marshal(result.PaymentRequirements)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment requirements: %w", err)
	}
	payload, err := json.Marshal(types.RequestBody{
		X402Version:         types.X402Version1,
		PaymentID:           result.PaymentID,
		PaymentHeader:       result.PaymentHeader,
		PaymentRequirements: reqsJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, invalidInput("invalid merchant endpoint %q: %v", endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to submit payment to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read merchant response: %w", err)
	}
	var body json.RawMessage
	if json.Valid(raw) {
		body = raw
	} else if len(raw) > 0 {
		body, _ = json.Marshal(string(raw))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("merchant %s responded with status %d", endpoint, resp.StatusCode)
	}
	return body, nil
}

func (p *Payer) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
