// Package store provides in-memory implementations of the loyalty
// persistence contracts, for tests and development.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/loyalty-engine/loyalty"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements CustomerStore, HistoryStore, and TransactionStore
// behind a single mutex. AtomicAdjust holds the write lock for the
// whole read-modify-write, which serializes concurrent adjustments
// the way the production store's database transaction does.
type Memory struct {
	mu           sync.RWMutex
	customers    map[string]*loyalty.Customer
	entries      []loyalty.LedgerEntry
	entryIDs     map[string]bool
	transactions map[string]*loyalty.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		customers:    make(map[string]*loyalty.Customer),
		entryIDs:     make(map[string]bool),
		transactions: make(map[string]*loyalty.Transaction),
	}
}

var (
	_ loyalty.CustomerStore    = (*Memory)(nil)
	_ loyalty.HistoryStore     = (*Memory)(nil)
	_ loyalty.TransactionStore = (*Memory)(nil)
)

// =============================================================================
// CUSTOMER STORE
// =============================================================================

func (m *Memory) FindCustomer(_ context.Context, id string) (*loyalty.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, loyalty.ErrCustomerNotFound
	}
	copied := *c
	return &copied, nil
}

// AtomicAdjust applies the delta under the write lock and re-derives
// the tier from the result. See loyalty.CustomerStore.
func (m *Memory) AtomicAdjust(_ context.Context, id string, delta loyalty.PointsDelta, now time.Time) (*loyalty.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, loyalty.ErrCustomerNotFound
	}

	if c.Membership.AvailablePoints+delta.Available < 0 {
		return nil, &loyalty.InsufficientBalanceError{
			CustomerID: id,
			Available:  c.Membership.AvailablePoints,
			Requested:  -delta.Available,
		}
	}

	c.Membership.AvailablePoints += delta.Available
	c.Membership.LifetimeEarned += delta.Lifetime

	if tier := loyalty.TierFor(c.Membership.LifetimeEarned); tier != c.Membership.Tier {
		c.Membership.Tier = tier
		c.Membership.TierSince = now
	}
	c.UpdatedAt = now

	copied := *c
	return &copied, nil
}

func (m *Memory) CreateCustomer(_ context.Context, c *loyalty.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[c.ID]; ok {
		return fmt.Errorf("customer %s already exists", c.ID)
	}
	copied := *c
	m.customers[c.ID] = &copied
	return nil
}

// UpdateCustomer persists descriptive fields only.
func (m *Memory) UpdateCustomer(_ context.Context, c *loyalty.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.customers[c.ID]
	if !ok {
		return loyalty.ErrCustomerNotFound
	}
	existing.FullName = c.FullName
	existing.Phone = c.Phone
	existing.Email = c.Email
	existing.Address = c.Address
	existing.Status = c.Status
	existing.UpdatedAt = c.UpdatedAt
	return nil
}

// DeleteCustomer removes the customer and cascades their ledger
// entries.
func (m *Memory) DeleteCustomer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[id]; !ok {
		return loyalty.ErrCustomerNotFound
	}
	delete(m.customers, id)

	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Customer.ID != id {
			kept = append(kept, e)
		} else {
			delete(m.entryIDs, e.ID)
		}
	}
	m.entries = kept
	return nil
}

func (m *Memory) ListCustomers(_ context.Context, opts loyalty.ListOptions) ([]loyalty.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []loyalty.Customer
	search := strings.ToLower(opts.Search)
	for _, c := range m.customers {
		if search != "" && !containsAny(search, c.ID, c.FullName, c.Phone, c.Email) {
			continue
		}
		result = append(result, *c)
	}
	sortCustomers(result, opts)
	return result, nil
}

// =============================================================================
// HISTORY STORE
// =============================================================================

func (m *Memory) Append(_ context.Context, entry loyalty.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entryIDs[entry.ID] {
		return fmt.Errorf("ledger entry %s already exists", entry.ID)
	}
	m.entryIDs[entry.ID] = true
	m.entries = append(m.entries, entry)
	return nil
}

// ListEntries returns ledger entries, newest first by default.
func (m *Memory) ListEntries(_ context.Context, opts loyalty.ListOptions) ([]loyalty.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []loyalty.LedgerEntry
	for _, e := range m.entries {
		if opts.CustomerID != "" && e.Customer.ID != opts.CustomerID {
			continue
		}
		if opts.From != nil && e.CreatedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.CreatedAt.After(*opts.To) {
			continue
		}
		result = append(result, e)
	}
	sortEntries(result, opts)
	return result, nil
}

func (m *Memory) DeleteByTransaction(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Transaction != nil && e.Transaction.Code == code {
			delete(m.entryIDs, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return nil
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func (m *Memory) CreateTransaction(_ context.Context, tx *loyalty.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[tx.ID]; ok {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	copied := *tx
	m.transactions[tx.ID] = &copied
	return nil
}

func (m *Memory) FindTransaction(_ context.Context, id string) (*loyalty.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, loyalty.ErrTransactionNotFound
	}
	copied := *tx
	return &copied, nil
}

// DeleteTransaction removes the transaction and cascades its EARN
// entry. Balances are intentionally left untouched.
func (m *Memory) DeleteTransaction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[id]; !ok {
		return loyalty.ErrTransactionNotFound
	}
	delete(m.transactions, id)

	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Transaction != nil && e.Transaction.Code == id {
			delete(m.entryIDs, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, opts loyalty.ListOptions) ([]loyalty.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []loyalty.Transaction
	search := strings.ToLower(opts.Search)
	for _, tx := range m.transactions {
		if search != "" && !containsAny(search, tx.ID, tx.Customer.ID, tx.Customer.Name) {
			continue
		}
		if opts.CustomerID != "" && tx.Customer.ID != opts.CustomerID {
			continue
		}
		if opts.From != nil && tx.PaidAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && tx.PaidAt.After(*opts.To) {
			continue
		}
		if opts.MinSubtotal != nil && tx.Subtotal < *opts.MinSubtotal {
			continue
		}
		if opts.MaxSubtotal != nil && tx.Subtotal > *opts.MaxSubtotal {
			continue
		}
		result = append(result, *tx)
	}
	sortTransactions(result, opts)
	return result, nil
}

// =============================================================================
// FILTER/SORT HELPERS
// =============================================================================

func containsAny(search string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func ascending(opts loyalty.ListOptions) bool {
	return opts.Order == loyalty.SortAsc
}

func sortCustomers(cs []loyalty.Customer, opts loyalty.ListOptions) {
	asc := ascending(opts)
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		var less bool
		switch opts.SortBy {
		case "fullName":
			less = a.FullName < b.FullName
		case "availablePoints":
			less = a.Membership.AvailablePoints < b.Membership.AvailablePoints
		case "lifetimeEarned":
			less = a.Membership.LifetimeEarned < b.Membership.LifetimeEarned
		case "tier":
			less = a.Membership.Tier.Rank() < b.Membership.Tier.Rank()
		default: // createdAt
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})
}

func sortTransactions(txs []loyalty.Transaction, opts loyalty.ListOptions) {
	asc := ascending(opts)
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		var less bool
		switch opts.SortBy {
		case "subtotal":
			less = a.Subtotal < b.Subtotal
		case "pointsEarned":
			less = a.PointsEarned < b.PointsEarned
		case "createdAt":
			less = a.CreatedAt.Before(b.CreatedAt)
		default: // paidAt
			less = a.PaidAt.Before(b.PaidAt)
		}
		if asc {
			return less
		}
		return !less
	})
}

func sortEntries(es []loyalty.LedgerEntry, opts loyalty.ListOptions) {
	asc := opts.Order == loyalty.SortAsc
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i], es[j]
		var less bool
		switch opts.SortBy {
		case "occurredAt":
			less = a.OccurredAt.Before(b.OccurredAt)
		default: // createdAt
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})
}
