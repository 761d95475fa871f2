// Package ledger records settled payments keyed by payment id.
//
// A ledger holds at most one entry per payment id. Insert is an atomic
// insert-if-absent: when an entry already exists it is returned unchanged and
// the new entry is discarded, so a settled payment is never overwritten by a
// later attempt.
package ledger

import (
	"context"
	"errors"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// ErrNotFound is returned when no entry exists for a payment id.
var ErrNotFound = errors.New("payment not found")

// Ledger stores settled payments.
type Ledger interface {
	// Insert stores the entry unless one exists for its payment id. It
	// returns the stored entry and whether this call created it.
	Insert(ctx context.Context, entry types.LedgerEntry) (types.LedgerEntry, bool, error)

	// Get returns the entry for the payment id or ErrNotFound.
	Get(ctx context.Context, paymentID string) (types.LedgerEntry, error)

	// List returns all entries ordered by settlement time.
	List(ctx context.Context) ([]types.LedgerEntry, error)
}
