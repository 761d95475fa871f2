package core

import (
	"errors"
	"fmt"

	"github.com/raid-guild/x402-facilitator-go/types"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrSignerUnavailable  = errors.New("signer unavailable")
	ErrVerificationFailed = errors.New("verification failed")
	ErrSettlementBackend  = errors.New("settlement backend error")
)

// VerificationError reports why an authorization was refused for settlement.
type VerificationError struct {
	Reason types.InvalidReason
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: %s", e.Reason)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerificationFailed
}

// SettlementError is a backend failure. No ledger entry exists for the
// attempt, so it can be retried with the same payment id.
type SettlementError struct {
	Reason types.ErrorReason
	Err    error
}

func (e *SettlementError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("settlement failed: %s", e.Reason)
	}
	return fmt.Sprintf("settlement failed: %s: %v", e.Reason, e.Err)
}

func (e *SettlementError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSettlementBackend}
	}
	return []error{ErrSettlementBackend, e.Err}
}

// Timeout reports whether the backend call was abandoned after its deadline.
func (e *SettlementError) Timeout() bool {
	return e.Reason == types.ErrorReasonSettlementTimeout
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
