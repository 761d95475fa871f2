package handler

import (
	"net/http"
)

// Supported lists the networks, schemes and assets the facilitator accepts.
func (h *Handler) Supported(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Capabilities.Supported())
}
