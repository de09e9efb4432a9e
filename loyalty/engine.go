/*
engine.go - The customer ledger engine

PURPOSE:
  The single writer path for point-affecting mutations. Applies
  EARN/BURN/EXPIRE commands to a customer's balance, re-derives the
  tier, and emits exactly one ledger entry per successful mutation.

CONTRACT (AdjustPoints):
  1. points must be a positive integer (ErrInvalidPoints otherwise)
  2. Unknown customer -> ErrCustomerNotFound
  3. BURN and EXPIRE are bounded by the available balance
     (*InsufficientBalanceError). EXPIRE is strict: it rejects rather
     than clamping to zero.
  4. EARN: available += points, lifetime += points
     BURN/EXPIRE: available -= points (lifetime untouched)
  5. Tier is re-derived from the post-update lifetime total inside the
     store's atomic section; TierSince moves when the tier changes
  6. One ledger entry, snapshot taken AFTER the mutation, delta signed
     by kind, magnitude equal to the requested points

WRITE ORDERING:
  Balance update first, ledger append second. If the append fails the
  operation reports *HistoryAppendError - the balance change has
  already been persisted. This at-least-once gap is surfaced and
  logged, never hidden, and never blindly retried (a retry would
  duplicate the entry).

CONCURRENCY:
  Serialization of concurrent adjustments for one customer is the
  store's job (AtomicAdjust). The engine itself is stateless apart
  from the injected clock and holds no locks.

SEE ALSO:
  - store.go: AtomicAdjust semantics
  - recorder.go: Drives the EARN path for purchases
  - engine_test.go: Invariant and lost-update coverage
*/
package loyalty

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/loyalty-engine/metrics"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine applies point adjustments. Customers and History are
// required; Invalidator, Metrics, and Logger are optional. Now
// defaults to time.Now.
type Engine struct {
	Customers CustomerStore
	History   HistoryStore

	Invalidator Invalidator
	Metrics     *metrics.Metrics
	Logger      *log.Logger

	Now func() time.Time
}

// NewEngine creates an engine over the given stores.
func NewEngine(customers CustomerStore, history HistoryStore) *Engine {
	return &Engine{Customers: customers, History: history}
}

// AdjustContext carries the descriptive context of an adjustment.
type AdjustContext struct {
	// Title is the human-readable description; empty selects a
	// default per kind.
	Title string

	// Transaction links EARN entries to their originating purchase.
	Transaction *TransactionRef

	// OccurredAt may be backdated (payment time); zero means now.
	OccurredAt time.Time
}

// AdjustResult is the updated public view returned to callers.
type AdjustResult struct {
	Customer   *Customer
	Entry      LedgerEntry
	NewBalance int64
	NewTier    Tier
}

// AdjustPoints is the single mutation operation. See the file header
// for the full contract.
func (e *Engine) AdjustPoints(ctx context.Context, customerID string, points int64, kind EntryKind, actx AdjustContext) (*AdjustResult, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPoints, points)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	delta := PointsDelta{Available: kind.Sign() * points}
	if kind == EntryEarn {
		delta.Lifetime = points
	}

	now := e.now()
	customer, err := e.Customers.AtomicAdjust(ctx, customerID, delta, now)
	if err != nil {
		return nil, err
	}

	entry := NewEntry(customer, kind, points, actx, now)
	if err := e.History.Append(ctx, entry); err != nil {
		// Balance already committed; see WRITE ORDERING above.
		appendErr := &HistoryAppendError{EntryID: entry.ID, Err: err}
		e.logf("ALERT: %v", appendErr)
		return nil, appendErr
	}

	e.Metrics.RecordAdjust(string(kind), points)
	e.invalidate(ctx)

	return &AdjustResult{
		Customer:   customer,
		Entry:      entry,
		NewBalance: customer.Membership.AvailablePoints,
		NewTier:    customer.Membership.Tier,
	}, nil
}

// =============================================================================
// CONVENIENCE OPERATIONS
// =============================================================================

// Burn redeems points. An empty title defaults to "Redeemed points".
func (e *Engine) Burn(ctx context.Context, customerID string, points int64, title string) (*AdjustResult, error) {
	return e.AdjustPoints(ctx, customerID, points, EntryBurn, AdjustContext{Title: title})
}

// Expire lapses points. Strict: bounded by the available balance.
func (e *Engine) Expire(ctx context.Context, customerID string, points int64) (*AdjustResult, error) {
	return e.AdjustPoints(ctx, customerID, points, EntryExpire, AdjustContext{})
}

// ListLedger returns ledger entries, newest first, optionally filtered
// to one customer. Empty customerID lists everything.
func (e *Engine) ListLedger(ctx context.Context, customerID string) ([]LedgerEntry, error) {
	return e.History.ListEntries(ctx, ListOptions{CustomerID: customerID})
}

// =============================================================================
// INTERNAL
// =============================================================================

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// invalidate signals the cache layer. Best-effort: the Invalidator
// swallows its own failures, so this can never fail the operation.
func (e *Engine) invalidate(ctx context.Context) {
	if e.Invalidator != nil {
		e.Invalidator.CustomersChanged(ctx)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
