package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/raid-guild/x402-facilitator-go/ledger"
	"github.com/raid-guild/x402-facilitator-go/types"
)

var tracer = otel.Tracer("github.com/raid-guild/x402-facilitator-go/core")

// SettleParams is one settlement attempt.
type SettleParams struct {
	PaymentID     string
	Authorization types.PaymentAuthorization
	Requirements  types.PaymentRequirements

	// Verification is the verdict the Verifier returned for the
	// authorization and requirements.
	Verification types.VerifyResponse
}

// SettleResult is the ledger entry for a payment id. AlreadySettled is set
// when the entry was created by an earlier or concurrent attempt.
type SettleResult struct {
	Entry          types.LedgerEntry
	AlreadySettled bool
}

// Coordinator submits verified authorizations to a settlement backend and
// records each successful settlement in the ledger exactly once per payment
// id.
type Coordinator struct {
	Backend SettlementBackend
	Ledger  ledger.Ledger

	// Now defaults to the wall clock.
	Now func() time.Time

	// OnSettled is called once for every entry this coordinator creates.
	OnSettled func(types.LedgerEntry)

	group singleflight.Group

	mu       sync.Mutex
	timedOut map[string]struct{}
}

// NewCoordinator creates a coordinator over the backend and ledger.
func NewCoordinator(backend SettlementBackend, l ledger.Ledger) *Coordinator {
	return &Coordinator{Backend: backend, Ledger: l}
}

// Settle settles the authorization under the payment id. Failures leave no
// ledger entry, so the same payment id can be retried.
func (c *Coordinator) Settle(ctx context.Context, p SettleParams) (res SettleResult, err error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Settle")
	span.SetAttributes(
		attribute.String("x402.payment_id", p.PaymentID),
		attribute.String("x402.network", string(p.Requirements.Network)),
	)
	defer func() {
		span.SetAttributes(attribute.Bool("x402.already_settled", res.AlreadySettled))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if p.PaymentID == "" {
		return SettleResult{}, invalidInput("payment id is required")
	}
	if c.Backend == nil || c.Ledger == nil {
		return SettleResult{}, &SettlementError{Reason: types.ErrorReasonSettlementBackend, Err: errors.New("settlement backend is not configured")}
	}

	// Only authorizations the Verifier accepted may settle or see an entry
	if err := checkVerdict(p.Verification); err != nil {
		return SettleResult{}, err
	}

	// Check the ledger first so settled payments never reach the backend
	if entry, err := c.Ledger.Get(ctx, p.PaymentID); err == nil {
		if err := matchEntry(entry, p); err != nil {
			return SettleResult{}, err
		}
		return SettleResult{Entry: entry, AlreadySettled: true}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return SettleResult{}, backendError(err)
	}

	// Verify the verdict is still fresh
	if err := c.checkFreshness(p); err != nil {
		return SettleResult{}, err
	}

	executed := false
	v, err, _ := c.group.Do(p.PaymentID, func() (any, error) {
		executed = true
		return c.settle(ctx, p)
	})
	if err != nil {
		return SettleResult{}, err
	}

	res = v.(SettleResult)
	if !executed {
		res.AlreadySettled = true
	}
	if res.AlreadySettled {
		if err := matchEntry(res.Entry, p); err != nil {
			return SettleResult{}, err
		}
	}
	return res, nil
}

// settle runs once per payment id at a time.
func (c *Coordinator) settle(ctx context.Context, p SettleParams) (SettleResult, error) {
	// Re-check the ledger in case a previous flight finished after the first lookup
	if entry, err := c.Ledger.Get(ctx, p.PaymentID); err == nil {
		return SettleResult{Entry: entry, AlreadySettled: true}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return SettleResult{}, backendError(err)
	}

	outcome, err := c.reconcile(ctx, p)
	if err != nil {
		return SettleResult{}, err
	}
	if outcome == nil {
		executed, err := c.execute(ctx, p)
		if err != nil {
			return SettleResult{}, err
		}
		outcome = &executed
	}
	c.clearTimeout(p.PaymentID)

	entry := types.LedgerEntry{
		PaymentID:   p.PaymentID,
		Status:      types.PaymentStatusSettled,
		Transaction: outcome.Transaction,
		Payer:       payer(p),
		PayTo:       p.Requirements.PayTo,
		Amount:      p.Authorization.Value,
		Asset:       p.Requirements.Asset,
		Network:     p.Requirements.Network,
		SettledAt:   c.now().UTC(),
	}

	stored, created, err := c.Ledger.Insert(ctx, entry)
	if err != nil {
		log.Printf("settled payment %s in %s but failed to record it: %v", p.PaymentID, outcome.Transaction, err)
		return SettleResult{}, backendError(fmt.Errorf("failed to record settlement: %w", err))
	}
	if created {
		log.Printf("settled payment %s: transaction %s", p.PaymentID, outcome.Transaction)
		if c.OnSettled != nil {
			c.OnSettled(stored)
		}
	}
	return SettleResult{Entry: stored, AlreadySettled: !created}, nil
}

// execute calls the backend under the requirements' timeout. The backend may
// ignore cancellation, so the call is abandoned once the deadline passes.
func (c *Coordinator) execute(ctx context.Context, p SettleParams) (SettlementOutcome, error) {
	timeout := time.Duration(maxTimeout(p.Requirements)) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		outcome SettlementOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := c.Backend.Execute(execCtx, p.Authorization, p.Requirements)
		done <- result{outcome, err}
	}()

	var res result
	abandoned := false
	select {
	case res = <-done:
	case <-execCtx.Done():
		abandoned = true
		res = result{err: execCtx.Err()}
	}

	if res.err == nil {
		if res.outcome.Transaction == "" {
			return SettlementOutcome{}, backendError(errors.New("backend returned no transaction reference"))
		}
		return res.outcome, nil
	}

	// Whether the deadline or the caller ended the call, the backend may
	// still execute it, so the next attempt has to reconcile first.
	if abandoned || errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled) {
		c.markTimeout(p.PaymentID)
		if ctx.Err() != nil {
			log.Printf("settlement of payment %s abandoned by the caller: %v", p.PaymentID, ctx.Err())
		} else {
			log.Printf("settlement of payment %s timed out after %s", p.PaymentID, timeout)
		}
		return SettlementOutcome{}, &SettlementError{Reason: types.ErrorReasonSettlementTimeout, Err: res.err}
	}

	var settleErr *SettlementError
	if errors.As(res.err, &settleErr) {
		return SettlementOutcome{}, settleErr
	}
	return SettlementOutcome{}, backendError(res.err)
}

// reconcile asks the backend what happened to a previous attempt that timed
// out. It returns nil when there is nothing to reconcile.
func (c *Coordinator) reconcile(ctx context.Context, p SettleParams) (*SettlementOutcome, error) {
	if !c.hasTimedOut(p.PaymentID) {
		return nil, nil
	}
	rec, ok := c.Backend.(Reconciler)
	if !ok {
		return nil, nil
	}

	outcome, err := rec.Lookup(ctx, p.Authorization, p.Requirements)
	if err != nil {
		var settleErr *SettlementError
		if errors.As(err, &settleErr) {
			return nil, settleErr
		}
		return nil, backendError(err)
	}
	if outcome != nil {
		log.Printf("reconciled timed out payment %s: transaction %s", p.PaymentID, outcome.Transaction)
	}
	return outcome, nil
}

func checkVerdict(v types.VerifyResponse) error {
	if v.IsValid {
		return nil
	}
	reason := v.InvalidReason
	if reason == "" {
		reason = types.InvalidReasonInvalidPaymentPayload
	}
	return &VerificationError{Reason: reason}
}

func (c *Coordinator) checkFreshness(p SettleParams) error {
	v := p.Verification
	now := c.now().Unix()
	if v.VerifiedAt == 0 || now > v.VerifiedAt+maxTimeout(p.Requirements) {
		return &VerificationError{Reason: types.InvalidReasonVerificationStale}
	}
	if now > p.Authorization.ValidBefore {
		return &VerificationError{Reason: types.InvalidReasonInvalidAuthorizationValidBefore}
	}
	return nil
}

// matchEntry refuses to hand an existing entry to an authorization for a
// different payment that reuses its payment id.
func matchEntry(e types.LedgerEntry, p SettleParams) error {
	switch {
	case !strings.EqualFold(e.Payer, payer(p)),
		!strings.EqualFold(e.PayTo, p.Requirements.PayTo),
		!sameAmount(e.Amount, p.Authorization.Value),
		e.Network != p.Requirements.Network:
		return invalidInput("payment id %s was settled for a different payment", p.PaymentID)
	}
	return nil
}

func sameAmount(a, b string) bool {
	x, okX := new(big.Int).SetString(a, 10)
	y, okY := new(big.Int).SetString(b, 10)
	if !okX || !okY {
		return a == b
	}
	return x.Cmp(y) == 0
}

func (c *Coordinator) markTimeout(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timedOut == nil {
		c.timedOut = make(map[string]struct{})
	}
	c.timedOut[id] = struct{}{}
}

func (c *Coordinator) clearTimeout(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timedOut, id)
}

func (c *Coordinator) hasTimedOut(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timedOut[id]
	return ok
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func maxTimeout(r types.PaymentRequirements) int64 {
	if r.MaxTimeoutSeconds > 0 {
		return r.MaxTimeoutSeconds
	}
	return DefaultMaxTimeoutSeconds
}

func payer(p SettleParams) string {
	if p.Verification.Payer != "" {
		return p.Verification.Payer
	}
	return common.HexToAddress(p.Authorization.From).Hex()
}
