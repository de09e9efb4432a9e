/*
Package loyalty provides the core points-and-tier ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for a loyalty
  program back office: customers with point balances, purchase
  transactions, and the append-only ledger of every point-affecting
  event. The engine mutates balances, re-derives membership tiers, and
  guarantees the audit trail stays consistent with those mutations.

KEY CONCEPTS IN THIS FILE (types.go):
  - Customer: The mutable aggregate (balance + lifetime points + tier)
  - Membership: The point-bearing part of a customer
  - Transaction: A purchase record, written once, read mostly
  - CustomerRef: Denormalized snapshot embedded in entries/transactions

DESIGN PRINCIPLES:
  1. Points are int64 - no fractional points exist in this domain
  2. Money is int64 in minor currency units; decimal only at the edges
     (line-item extension, see recorder.go)
  3. Snapshots, not references: ledger entries and transactions carry a
     copy of the customer identity at event time, never a live pointer
  4. The engine (engine.go) is the only writer of Membership fields

SEE ALSO:
  - tier.go: Tier thresholds and the TierFor policy function
  - entry.go: The immutable ledger entry type
  - engine.go: The balance/tier mutation engine
  - store.go: Persistence contracts
*/
package loyalty

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CUSTOMER - The mutable aggregate
// =============================================================================

// Customer is the loyalty program member. Descriptive fields carry no
// invariants; Membership does (see engine.go and tier.go).
type Customer struct {
	ID       string
	FullName string
	Phone    string
	Email    string
	Address  Address
	Status   string

	Membership Membership

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Address struct {
	City    string
	Country string
}

// Membership holds the point-bearing state of a customer.
//
// INVARIANTS (enforced by the engine + stores, verified in tests):
//   - AvailablePoints >= 0 at all times
//   - LifetimeEarned is monotonically non-decreasing
//   - Tier == TierFor(LifetimeEarned) after every mutation
type Membership struct {
	Tier            Tier
	AvailablePoints int64
	LifetimeEarned  int64
	TierSince       time.Time
}

// Ref returns the denormalized snapshot of this customer for embedding
// in ledger entries and transactions. Snapshots are frozen at event
// time and must never be updated retroactively.
func (c *Customer) Ref() CustomerRef {
	return CustomerRef{
		ID:   c.ID,
		Name: c.FullName,
		Tier: c.Membership.Tier,
	}
}

// CustomerRef is a point-in-time snapshot of a customer's identity.
type CustomerRef struct {
	ID   string
	Name string
	Tier Tier
}

// =============================================================================
// TRANSACTION - Purchase record (written once)
// =============================================================================

// Transaction records a single purchase. Exactly one EARN ledger entry
// is associated with a transaction via TransactionRef.Code.
type Transaction struct {
	ID       string
	Customer CustomerRef // snapshot at purchase time
	Store    StoreRef
	Channel  string
	Items    []TransactionItem

	// Subtotal is in minor currency units and never negative.
	Subtotal int64

	// PointsEarned is derived at recording time (see recorder.go).
	PointsEarned int64

	PaidAt    time.Time
	CreatedAt time.Time
}

// StoreRef identifies the point of sale.
type StoreRef struct {
	Code string
	Name string
}

// TransactionItem is a purchase line. Price is in minor currency units
// but kept as a decimal so unit prices (e.g. priced-by-weight goods)
// may be fractional; line totals settle to whole minor units.
type TransactionItem struct {
	SKU      string
	Name     string
	Qty      int64
	Price    decimal.Decimal
	Category string
}

// =============================================================================
// ID GENERATION
// =============================================================================

// NewCustomerID returns an opaque unique customer id.
// Format: CUS-XXXXXXXX. The format is not load-bearing for correctness.
func NewCustomerID() string {
	return "CUS-" + shortUUID()
}

// NewTransactionID returns a transaction id carrying the purchase date
// for operator readability plus a random suffix for uniqueness.
// Format: TX-YYYYMMDD-XXXXXXXX.
func NewTransactionID(at time.Time) string {
	return "TX-" + at.UTC().Format("20060102") + "-" + shortUUID()
}

func shortUUID() string {
	id := uuid.NewString()
	return strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}
