/*
entry.go - The immutable ledger entry

PURPOSE:
  A LedgerEntry is the audit record of exactly one point-affecting
  event. The ledger is append-only: entries are created once per
  successful engine mutation and never modified. The only deletion is
  the store-level cascade when a transaction is removed.

INVARIANTS:
  1. IMMUTABLE: Once written, an entry is never updated
  2. ONE PER MUTATION: Every successful balance change produces
     exactly one entry; no entry exists without its balance change
  3. SNAPSHOT: Customer identity is captured AFTER the mutation, so
     the entry's tier reflects the post-mutation state
  4. SIGNED DELTA: PointsDelta is positive for EARN, negative for
     BURN/EXPIRE; its magnitude equals the requested points

ID GENERATION:
  Ids combine the customer id, a nanosecond timestamp, a process-wide
  monotonic counter, and the entry kind. Millisecond timestamps alone
  collide under concurrent adjustments for the same customer; the
  counter removes that risk.

SEE ALSO:
  - engine.go: The only producer of ledger entries
  - store.go: HistoryStore append/list contract
*/
package loyalty

import (
	"fmt"
	"sync/atomic"
	"time"
)

// =============================================================================
// ENTRY KIND
// =============================================================================

// EntryKind is the kind of point-affecting event.
type EntryKind string

const (
	EntryEarn   EntryKind = "EARN"   // credit from a purchase or grant
	EntryBurn   EntryKind = "BURN"   // redemption debit
	EntryExpire EntryKind = "EXPIRE" // lapse debit
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryEarn, EntryBurn, EntryExpire:
		return true
	}
	return false
}

// Sign returns +1 for EARN and -1 for BURN/EXPIRE.
func (k EntryKind) Sign() int64 {
	if k == EntryEarn {
		return 1
	}
	return -1
}

// =============================================================================
// LEDGER ENTRY
// =============================================================================

// LedgerEntry is one immutable audit record.
type LedgerEntry struct {
	ID       string
	Customer CustomerRef // post-mutation snapshot
	Kind     EntryKind

	// PointsDelta is signed: positive for EARN, negative otherwise.
	PointsDelta int64

	Title string

	// Transaction is set when the entry originates from a purchase.
	Transaction *TransactionRef

	// OccurredAt may be backdated (e.g. the payment time); CreatedAt
	// is always the recording time.
	OccurredAt time.Time
	CreatedAt  time.Time
}

// TransactionRef links an EARN entry to its originating purchase.
type TransactionRef struct {
	Code    string
	Total   int64 // minor currency units
	Store   string
	Channel string
}

// entrySeq disambiguates entries created within the same nanosecond.
var entrySeq atomic.Uint64

// NewEntryID builds a collision-resistant entry id.
// Format: LOG-<customer>-<unixnano>-<seq>-<kind>.
func NewEntryID(customerID string, kind EntryKind, at time.Time) string {
	return fmt.Sprintf("LOG-%s-%d-%d-%s", customerID, at.UnixNano(), entrySeq.Add(1), kind)
}

// NewEntry builds the ledger entry for a completed adjustment. The
// customer must already reflect the post-mutation state.
func NewEntry(customer *Customer, kind EntryKind, points int64, cctx AdjustContext, now time.Time) LedgerEntry {
	occurred := cctx.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	title := cctx.Title
	if title == "" {
		title = defaultTitle(kind)
	}
	return LedgerEntry{
		ID:          NewEntryID(customer.ID, kind, now),
		Customer:    customer.Ref(),
		Kind:        kind,
		PointsDelta: kind.Sign() * points,
		Title:       title,
		Transaction: cctx.Transaction,
		OccurredAt:  occurred,
		CreatedAt:   now,
	}
}

func defaultTitle(kind EntryKind) string {
	switch kind {
	case EntryEarn:
		return "Earned points"
	case EntryBurn:
		return "Redeemed points"
	case EntryExpire:
		return "Points expired"
	}
	return "Points updated"
}
