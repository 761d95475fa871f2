package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raid-guild/x402-facilitator-go/auth"
	"github.com/raid-guild/x402-facilitator-go/core"
	"github.com/raid-guild/x402-facilitator-go/ledger"
	"github.com/raid-guild/x402-facilitator-go/types"
)

// Handler serves the facilitator HTTP API.
type Handler struct {
	Facilitator  *core.Facilitator
	Ledger       ledger.Ledger
	Capabilities core.Capabilities

	// Payer is optional. Without it POST /authorizations responds 503.
	Payer *core.Payer

	// Auth, Limiter and Events are optional.
	Auth    *auth.Authenticator
	Limiter *RateLimiter
	Events  *Hub
}

// Routes builds the router for the API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/supported", h.Supported)

	r.Group(func(r chi.Router) {
		if h.Auth != nil {
			r.Use(h.Auth.Middleware)
		}

		r.Post("/verify", h.Verify)
		r.With(h.limit).Post("/settle", h.Settle)
		r.With(h.limit).Post("/authorizations", h.Authorize)

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Get("/stream", h.StreamPayments)
			r.Get("/{paymentId}", h.GetPayment)
		})
	})

	return r
}

func (h *Handler) limit(next http.Handler) http.Handler {
	if h.Limiter == nil {
		return next
	}
	return h.Limiter.Middleware(next)
}

// decodeRequest extracts the authorization and requirements from a verify or
// settle request body.
func decodeRequest(body types.RequestBody) (types.PaymentAuthorization, types.PaymentRequirements, types.InvalidReason) {

	// Check the x402 version
	if body.X402Version != types.X402Version1 {
		return types.PaymentAuthorization{}, types.PaymentRequirements{}, types.InvalidReasonInvalidX402Version
	}

	// Decode the payment header or the inline payment payload
	var auth types.PaymentAuthorization
	var err error
	switch {
	case body.PaymentHeader != "":
		auth, err = core.DecodeHeader(body.PaymentHeader)
	case len(body.PaymentPayload) > 0:
		auth, err = core.DecodePayload(body.PaymentPayload)
	default:
		return types.PaymentAuthorization{}, types.PaymentRequirements{}, types.InvalidReasonInvalidPaymentPayload
	}
	if err != nil {
		return types.PaymentAuthorization{}, types.PaymentRequirements{}, types.InvalidReasonInvalidPaymentPayload
	}

	// Unmarshal the payment requirements
	var reqs types.PaymentRequirements
	if err := json.Unmarshal(body.PaymentRequirements, &reqs); err != nil {
		return types.PaymentAuthorization{}, types.PaymentRequirements{}, types.InvalidReasonInvalidPaymentRequirements
	}

	// Check the payment scheme
	if auth.Scheme != types.SchemeExact {
		return auth, reqs, types.InvalidReasonInvalidScheme
	}
	if reqs.Scheme != auth.Scheme {
		return auth, reqs, types.InvalidReasonInvalidSchemeMismatch
	}

	return auth, reqs, ""
}

// writeJSON writes the value as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {

	// Marshal the response into JSON bytes
	responseBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Set the content type and write the status code
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Write the response bytes to the response body
	if _, err := w.Write(responseBytes); err != nil {
		// Header already written so we log the error
		log.Printf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
