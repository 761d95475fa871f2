package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/raid-guild/x402-facilitator-go/core"
	"github.com/raid-guild/x402-facilitator-go/types"
)

type authorizeRequest struct {
	types.PaymentRequest

	// Endpoint, when set, receives the payment for immediate settlement.
	Endpoint string `json:"apiEndpoint,omitempty"`
}

type authorizeFailure struct {
	Error   string               `json:"error"`
	Payment *types.PaymentResult `json:"payment,omitempty"`
}

// Authorize builds and signs a payment with the facilitator's payer key.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	if h.Payer == nil {
		writeError(w, http.StatusServiceUnavailable, "payer signer is not configured")
		return
	}

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.Payer.Pay(r.Context(), req.PaymentRequest, req.Endpoint)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrSignerUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case result.PaymentID != "":
			log.Printf("payment %s built but submission failed: %v", result.PaymentID, err)
			writeJSON(w, http.StatusBadGateway, authorizeFailure{Error: err.Error(), Payment: &result})
		default:
			log.Printf("authorization failed: %v", err)
			writeError(w, http.StatusInternalServerError, "authorization failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
