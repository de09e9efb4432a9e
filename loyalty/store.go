/*
store.go - Persistence contracts consumed by the engine

PURPOSE:
  Defines the interfaces between the domain logic and the database.
  The engine depends on these contracts only; SQLite and in-memory
  implementations live in store/sqlite and loyalty/store. A single
  concrete store typically implements all three interfaces, so method
  names are distinct across them.

KEY INTERFACES:
  CustomerStore:    Customer persistence + the atomic point adjustment
  HistoryStore:     Append-only ledger entry persistence
  TransactionStore: Purchase records
  Invalidator:      Fire-and-forget "customer set changed" signal

ATOMIC ADJUSTMENT:
  AtomicAdjust is the single conditional read-modify-write primitive.
  The store applies the delta server-side (guarded so the available
  balance can never go negative), re-derives the tier from the RESULT
  of that update via TierFor, and returns the post-mutation customer.
  A caller that reads a balance, computes in memory, and writes back
  unconditionally has a lost-update race; no such path exists here.

CASCADE RULES (store-level, not engine concerns):
  - Deleting a customer removes that customer's ledger entries
  - Deleting a transaction removes its EARN ledger entry but does NOT
    reverse the customer's balance (audit simplicity over reversal)

SEE ALSO:
  - engine.go: The only caller of AtomicAdjust
  - loyalty/store/memory.go: In-memory implementation for tests
  - store/sqlite/sqlite.go: Production implementation
*/
package loyalty

import (
	"context"
	"time"
)

// =============================================================================
// CUSTOMER STORE
// =============================================================================

// PointsDelta is the server-side increment applied by AtomicAdjust.
// Lifetime is zero for debits - LifetimeEarned only ever grows.
type PointsDelta struct {
	Available int64
	Lifetime  int64
}

// CustomerStore persists customers.
type CustomerStore interface {
	// FindCustomer returns the customer or ErrCustomerNotFound.
	FindCustomer(ctx context.Context, id string) (*Customer, error)

	// AtomicAdjust applies delta atomically, re-derives the tier from
	// the updated lifetime total, and sets TierSince to now when the
	// tier changes. Returns the post-mutation customer.
	//
	// Fails with ErrCustomerNotFound, or *InsufficientBalanceError when
	// the available balance would go negative. Concurrent calls for the
	// same customer serialize; none is lost.
	AtomicAdjust(ctx context.Context, id string, delta PointsDelta, now time.Time) (*Customer, error)

	// CreateCustomer persists a new customer.
	CreateCustomer(ctx context.Context, c *Customer) error

	// UpdateCustomer persists descriptive fields only. Membership
	// fields are owned by AtomicAdjust; writing them here would bypass
	// the ledger.
	UpdateCustomer(ctx context.Context, c *Customer) error

	// DeleteCustomer removes the customer and cascades their ledger
	// entries.
	DeleteCustomer(ctx context.Context, id string) error

	// ListCustomers returns customers matching opts.
	ListCustomers(ctx context.Context, opts ListOptions) ([]Customer, error)
}

// =============================================================================
// HISTORY STORE - Append-only
// =============================================================================

// HistoryStore persists ledger entries. There is no update operation:
// entries are immutable once appended.
type HistoryStore interface {
	// Append adds one entry. Appending an existing id is an error.
	Append(ctx context.Context, entry LedgerEntry) error

	// ListEntries returns entries matching opts, newest first by
	// default.
	ListEntries(ctx context.Context, opts ListOptions) ([]LedgerEntry, error)

	// DeleteByTransaction removes the entries referencing a
	// transaction code. Only used by the transaction delete cascade.
	DeleteByTransaction(ctx context.Context, code string) error
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

// TransactionStore persists purchase records.
type TransactionStore interface {
	// CreateTransaction persists a new transaction.
	CreateTransaction(ctx context.Context, tx *Transaction) error

	// FindTransaction returns the transaction or
	// ErrTransactionNotFound.
	FindTransaction(ctx context.Context, id string) (*Transaction, error)

	// DeleteTransaction removes the transaction and cascades its EARN
	// ledger entry. The customer's balance is intentionally left
	// untouched.
	DeleteTransaction(ctx context.Context, id string) error

	// ListTransactions returns transactions matching opts.
	ListTransactions(ctx context.Context, opts ListOptions) ([]Transaction, error)
}

// =============================================================================
// CACHE INVALIDATION
// =============================================================================

// Invalidator receives the fire-and-forget "customer set changed"
// signal after successful adjustments. Delivery failures must never
// fail the business operation; implementations swallow their own
// errors.
type Invalidator interface {
	CustomersChanged(ctx context.Context)
}

// =============================================================================
// LIST OPTIONS - Query surface filters
// =============================================================================

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions is the shared filter/sort contract of the query surface.
// Fields apply per collection:
//   - Search: substring match on identifying fields (id, name, phone,
//     email for customers; id, customer id/name for transactions)
//   - CustomerID: exact filter (ledger entries, transactions)
//   - From/To: paidAt range (transactions), createdAt range (entries)
//   - MinSubtotal/MaxSubtotal: subtotal range (transactions)
//   - SortBy/Order: one field, ascending or descending; each store
//     documents its default
type ListOptions struct {
	Search     string
	CustomerID string

	From *time.Time
	To   *time.Time

	MinSubtotal *int64
	MaxSubtotal *int64

	SortBy string
	Order  SortOrder
}
