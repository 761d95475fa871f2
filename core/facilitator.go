package core

import (
	"context"
	"errors"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Facilitator runs the merchant side of a payment: verify, then settle
// immediately.
type Facilitator struct {
	Verifier    *Verifier
	Coordinator *Coordinator
}

// VerifyAndSettle verifies the authorization and settles it under the
// payment id. Protocol failures are reported in the response. The error is
// only set for failures the caller cannot act on, such as a broken signature
// verifier.
func (f *Facilitator) VerifyAndSettle(ctx context.Context, paymentID string, a types.PaymentAuthorization, r types.PaymentRequirements) (types.SettleResponse, error) {
	response := types.SettleResponse{
		Scheme:    r.Scheme,
		Network:   r.Network,
		PaymentID: paymentID,
	}

	// Verify the payment id is present
	if paymentID == "" {
		response.ErrorReason = types.ErrorReasonInvalidPaymentID
		return response, nil
	}

	// Verify the authorization against the requirements
	verification, err := f.Verifier.Verify(ctx, a, r)
	if err != nil {
		return types.SettleResponse{}, err
	}

	// Settle the payment and record it in the ledger
	result, err := f.Coordinator.Settle(ctx, SettleParams{
		PaymentID:     paymentID,
		Authorization: a,
		Requirements:  r,
		Verification:  verification,
	})

	var verificationErr *VerificationError
	var settlementErr *SettlementError
	switch {
	case err == nil:
	case errors.As(err, &verificationErr):
		response.ErrorReason = types.ErrorReasonVerificationFailed
		response.InvalidReason = verificationErr.Reason
		return response, nil
	case errors.As(err, &settlementErr):
		response.ErrorReason = settlementErr.Reason
		return response, nil
	case errors.Is(err, ErrInvalidInput):
		response.ErrorReason = types.ErrorReasonInvalidPaymentID
		return response, nil
	default:
		return types.SettleResponse{}, err
	}

	entry := result.Entry
	response.Success = true
	response.Transaction = entry.Transaction
	response.AlreadySettled = result.AlreadySettled
	response.Payer = entry.Payer
	response.Entry = &entry
	return response, nil
}
