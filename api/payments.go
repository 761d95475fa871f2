package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/raid-guild/x402-facilitator-go/ledger"
)

// GetPayment returns the ledger entry for a payment id. A payment with an
// entry has been settled and entitles the payer to the purchased resource.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	entry, err := h.Ledger.Get(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		log.Printf("failed to get payment %s: %v", paymentID, err)
		writeError(w, http.StatusInternalServerError, "get payment failed")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// ListPayments returns every settled payment.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.List(r.Context())
	if err != nil {
		log.Printf("failed to list payments: %v", err)
		writeError(w, http.StatusInternalServerError, "list payments failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payments": entries,
		"count":    len(entries),
	})
}
