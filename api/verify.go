package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Verify checks a payment against its requirements without settling it.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {

	// Decode the request body
	var requestBody types.RequestBody
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Decode the authorization and requirements
	auth, reqs, reason := decodeRequest(requestBody)
	if reason != "" {
		writeJSON(w, http.StatusOK, types.VerifyResponse{
			Scheme:        reqs.Scheme,
			Network:       reqs.Network,
			IsValid:       false,
			InvalidReason: reason,
		})
		return
	}

	// Verify the authorization
	response, err := h.Facilitator.Verifier.Verify(r.Context(), auth, reqs)
	if err != nil {
		log.Printf("verify failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, response)
}
