package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Settle verifies a payment and settles it under its payment id. Repeating
// the request with the same payment id returns the recorded settlement.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {

	// Decode the request body
	var requestBody types.RequestBody
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Decode the authorization and requirements
	auth, reqs, reason := decodeRequest(requestBody)
	if reason != "" {
		writeJSON(w, http.StatusOK, settleFailure(reqs, requestBody.PaymentID, reason))
		return
	}

	// Verify and settle the payment
	response, err := h.Facilitator.VerifyAndSettle(r.Context(), requestBody.PaymentID, auth, reqs)
	if err != nil {
		log.Printf("settle failed for payment %s: %v", requestBody.PaymentID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// settleFailure maps a request decoding failure to a settle response.
func settleFailure(reqs types.PaymentRequirements, paymentID string, reason types.InvalidReason) types.SettleResponse {
	response := types.SettleResponse{
		Scheme:    reqs.Scheme,
		Network:   reqs.Network,
		Success:   false,
		PaymentID: paymentID,
	}
	switch reason {
	case types.InvalidReasonInvalidX402Version,
		types.InvalidReasonInvalidPaymentPayload,
		types.InvalidReasonInvalidPaymentRequirements:
		response.ErrorReason = types.ErrorReason(reason)
	default:
		response.ErrorReason = types.ErrorReasonVerificationFailed
		response.InvalidReason = reason
	}
	return response
}
