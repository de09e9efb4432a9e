package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loyalty-engine/loyalty"
	"github.com/warp/loyalty-engine/loyalty/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newCustomer(id, name string, available, lifetime int64, createdAt time.Time) *loyalty.Customer {
	return &loyalty.Customer{
		ID:       id,
		FullName: name,
		Phone:    "+84900000000",
		Email:    name + "@example.com",
		Status:   "active",
		Membership: loyalty.Membership{
			Tier:            loyalty.TierFor(lifetime),
			AvailablePoints: available,
			LifetimeEarned:  lifetime,
			TierSince:       createdAt,
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func newEntry(id, customerID string, kind loyalty.EntryKind, delta int64, txCode string, at time.Time) loyalty.LedgerEntry {
	e := loyalty.LedgerEntry{
		ID:          id,
		Customer:    loyalty.CustomerRef{ID: customerID, Name: "x", Tier: loyalty.TierBronze},
		Kind:        kind,
		PointsDelta: delta,
		OccurredAt:  at,
		CreatedAt:   at,
	}
	if txCode != "" {
		e.Transaction = &loyalty.TransactionRef{Code: txCode, Total: 1000}
	}
	return e
}

var baseTime = time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)

// =============================================================================
// ATOMIC ADJUST
// =============================================================================

func TestMemory_AtomicAdjust_Credit(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateCustomer(ctx, newCustomer("CUS-1", "Ana", 10, 10, baseTime)))

	got, err := mem.AtomicAdjust(ctx, "CUS-1", loyalty.PointsDelta{Available: 40, Lifetime: 40}, baseTime.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(50), got.Membership.AvailablePoints)
	assert.Equal(t, int64(50), got.Membership.LifetimeEarned)
	assert.Equal(t, loyalty.TierSilver, got.Membership.Tier)
}

func TestMemory_AtomicAdjust_DebitGuard(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateCustomer(ctx, newCustomer("CUS-1", "Ana", 10, 10, baseTime)))

	_, err := mem.AtomicAdjust(ctx, "CUS-1", loyalty.PointsDelta{Available: -11}, baseTime)
	require.Error(t, err)
	assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)

	// Balance unchanged after the rejection.
	got, err := mem.FindCustomer(ctx, "CUS-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Membership.AvailablePoints)
}

func TestMemory_AtomicAdjust_TierSinceOnlyOnChange(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateCustomer(ctx, newCustomer("CUS-1", "Ana", 100, 100, baseTime)))

	later := baseTime.Add(48 * time.Hour)
	got, err := mem.AtomicAdjust(ctx, "CUS-1", loyalty.PointsDelta{Available: 50, Lifetime: 50}, later)
	require.NoError(t, err)

	// Still SILVER; TierSince must not move.
	assert.Equal(t, loyalty.TierSilver, got.Membership.Tier)
	assert.True(t, got.Membership.TierSince.Equal(baseTime))

	got, err = mem.AtomicAdjust(ctx, "CUS-1", loyalty.PointsDelta{Available: 2000, Lifetime: 2000}, later)
	require.NoError(t, err)
	assert.Equal(t, loyalty.TierGold, got.Membership.Tier)
	assert.True(t, got.Membership.TierSince.Equal(later))
}

func TestMemory_AtomicAdjust_NotFound(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.AtomicAdjust(context.Background(), "CUS-NOPE", loyalty.PointsDelta{Available: 1}, baseTime)
	assert.ErrorIs(t, err, loyalty.ErrCustomerNotFound)
}

// =============================================================================
// CUSTOMER CRUD
// =============================================================================

func TestMemory_UpdateCustomer_DescriptiveOnly(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateCustomer(ctx, newCustomer("CUS-1", "Ana", 500, 500, baseTime)))

	update := newCustomer("CUS-1", "Ana Maria", 0, 0, baseTime)
	update.Phone = "+84911111111"
	require.NoError(t, mem.UpdateCustomer(ctx, update))

	got, err := mem.FindCustomer(ctx, "CUS-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.FullName)
	assert.Equal(t, "+84911111111", got.Phone)
	// Membership is owned by AtomicAdjust and must survive the update
	// untouched even though the payload carried zeros.
	assert.Equal(t, int64(500), got.Membership.AvailablePoints)
	assert.Equal(t, int64(500), got.Membership.LifetimeEarned)
}

func TestMemory_DeleteCustomer_CascadesEntries(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateCustomer(ctx, newCustomer("CUS-1", "Ana", 0, 0, baseTime)))
	require.NoError(t, mem.Append(ctx, newEntry("LOG-1", "CUS-1", loyalty.EntryEarn, 10, "", baseTime)))
	require.NoError(t, mem.Append(ctx, newEntry("LOG-2", "CUS-2", loyalty.EntryEarn, 10, "", baseTime)))

	require.NoError(t, mem.DeleteCustomer(ctx, "CUS-1"))

	_, err := mem.FindCustomer(ctx, "CUS-1")
	assert.ErrorIs(t, err, loyalty.ErrCustomerNotFound)

	entries, err := mem.ListEntries(ctx, loyalty.ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "LOG-2", entries[0].ID)
}

func TestMemory_ListCustomers_SearchAndSort(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateCustomer(ctx, newCustomer("CUS-1", "Ana", 300, 300, baseTime)))
	require.NoError(t, mem.CreateCustomer(ctx, newCustomer("CUS-2", "Binh", 100, 2100, baseTime.Add(time.Hour))))
	require.NoError(t, mem.CreateCustomer(ctx, newCustomer("CUS-3", "Anouk", 200, 5200, baseTime.Add(2*time.Hour))))

	// Substring search over name
	found, err := mem.ListCustomers(ctx, loyalty.ListOptions{Search: "an"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	// Sort by availablePoints ascending
	found, err = mem.ListCustomers(ctx, loyalty.ListOptions{SortBy: "availablePoints", Order: loyalty.SortAsc})
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "CUS-2", found[0].ID)
	assert.Equal(t, "CUS-1", found[2].ID)

	// Sort by tier descending ranks PLATINUM first
	found, err = mem.ListCustomers(ctx, loyalty.ListOptions{SortBy: "tier", Order: loyalty.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, "CUS-3", found[0].ID)

	// Default: createdAt descending
	found, err = mem.ListCustomers(ctx, loyalty.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "CUS-3", found[0].ID)
	assert.Equal(t, "CUS-1", found[2].ID)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestMemory_Append_RejectsDuplicateID(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Append(ctx, newEntry("LOG-1", "CUS-1", loyalty.EntryEarn, 10, "", baseTime)))

	err := mem.Append(ctx, newEntry("LOG-1", "CUS-1", loyalty.EntryBurn, -5, "", baseTime))
	assert.Error(t, err)
}

func TestMemory_ListEntries_Filters(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Append(ctx, newEntry("LOG-1", "CUS-1", loyalty.EntryEarn, 10, "", baseTime)))
	require.NoError(t, mem.Append(ctx, newEntry("LOG-2", "CUS-1", loyalty.EntryBurn, -5, "", baseTime.Add(time.Hour))))
	require.NoError(t, mem.Append(ctx, newEntry("LOG-3", "CUS-2", loyalty.EntryEarn, 20, "", baseTime.Add(2*time.Hour))))

	entries, err := mem.ListEntries(ctx, loyalty.ListOptions{CustomerID: "CUS-1"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	from := baseTime.Add(30 * time.Minute)
	entries, err = mem.ListEntries(ctx, loyalty.ListOptions{From: &from})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Newest first by default
	entries, err = mem.ListEntries(ctx, loyalty.ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "LOG-3", entries[0].ID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestMemory_DeleteTransaction_CascadesEarnEntry(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateTransaction(ctx, &loyalty.Transaction{
		ID:       "TX-20260601-AAAA0001",
		Customer: loyalty.CustomerRef{ID: "CUS-1"},
		Subtotal: 10_000,
		PaidAt:   baseTime,
	}))
	require.NoError(t, mem.Append(ctx, newEntry("LOG-1", "CUS-1", loyalty.EntryEarn, 10, "TX-20260601-AAAA0001", baseTime)))
	require.NoError(t, mem.Append(ctx, newEntry("LOG-2", "CUS-1", loyalty.EntryBurn, -3, "", baseTime)))

	require.NoError(t, mem.DeleteTransaction(ctx, "TX-20260601-AAAA0001"))

	_, err := mem.FindTransaction(ctx, "TX-20260601-AAAA0001")
	assert.ErrorIs(t, err, loyalty.ErrTransactionNotFound)

	// Only the linked EARN entry is gone.
	entries, err := mem.ListEntries(ctx, loyalty.ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "LOG-2", entries[0].ID)
}

func TestMemory_ListTransactions_Filters(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	for i, tx := range []*loyalty.Transaction{
		{ID: "TX-A", Customer: loyalty.CustomerRef{ID: "CUS-1", Name: "Ana"}, Subtotal: 50_000, PaidAt: baseTime},
		{ID: "TX-B", Customer: loyalty.CustomerRef{ID: "CUS-2", Name: "Binh"}, Subtotal: 150_000, PaidAt: baseTime.Add(time.Hour)},
		{ID: "TX-C", Customer: loyalty.CustomerRef{ID: "CUS-1", Name: "Ana"}, Subtotal: 250_000, PaidAt: baseTime.Add(2 * time.Hour)},
	} {
		tx.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		require.NoError(t, mem.CreateTransaction(ctx, tx))
	}

	txs, err := mem.ListTransactions(ctx, loyalty.ListOptions{CustomerID: "CUS-1"})
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	min := int64(100_000)
	max := int64(200_000)
	txs, err = mem.ListTransactions(ctx, loyalty.ListOptions{MinSubtotal: &min, MaxSubtotal: &max})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "TX-B", txs[0].ID)

	txs, err = mem.ListTransactions(ctx, loyalty.ListOptions{Search: "binh"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "TX-B", txs[0].ID)

	// Default: paidAt descending
	txs, err = mem.ListTransactions(ctx, loyalty.ListOptions{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "TX-C", txs[0].ID)
}
