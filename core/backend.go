package core

import (
	"context"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// SettlementOutcome is a confirmed settlement.
type SettlementOutcome struct {
	Transaction string
}

// SettlementBackend executes verified authorizations against the ledger of
// record. Implementations should return a *SettlementError for failures.
type SettlementBackend interface {
	Execute(ctx context.Context, a types.PaymentAuthorization, r types.PaymentRequirements) (SettlementOutcome, error)
}

// Reconciler is implemented by backends that can report the outcome of a
// previous attempt whose result was lost to a timeout. Lookup returns nil
// when the backend has no record of the attempt.
type Reconciler interface {
	Lookup(ctx context.Context, a types.PaymentAuthorization, r types.PaymentRequirements) (*SettlementOutcome, error)
}
