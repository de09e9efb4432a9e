package loyalty_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loyalty-engine/loyalty"
	"github.com/warp/loyalty-engine/loyalty/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRecorder(t *testing.T) (*loyalty.Recorder, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	engine := loyalty.NewEngine(mem, mem)
	return loyalty.NewRecorder(mem, mem, engine), mem
}

// =============================================================================
// POINTS DERIVATION
// =============================================================================

func TestRecordTransaction_DerivesPointsFromSubtotal(t *testing.T) {
	// GIVEN: A subtotal of 150,000 minor units
	// WHEN: Recording the purchase
	// THEN: floor(150000 / 1000) = 150 points earned

	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Subtotal:   150_000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(150), result.Transaction.PointsEarned)
	assert.Equal(t, int64(150), result.NewBalance)
}

func TestRecordTransaction_FlooringNeverRoundsUp(t *testing.T) {
	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Subtotal:   1_999,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Transaction.PointsEarned)
}

func TestRecordTransaction_ExplicitPointsOverride(t *testing.T) {
	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	override := int64(999)
	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID:     c.ID,
		Subtotal:       150_000,
		ExplicitPoints: &override,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(999), result.Transaction.PointsEarned)
	assert.Equal(t, int64(999), result.NewBalance)
}

func TestRecordTransaction_SubtotalFromItems(t *testing.T) {
	// GIVEN: No subtotal, two line items with a fractional unit price
	// WHEN: Recording
	// THEN: Subtotal is the decimal extension settled to whole units

	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Items: []loyalty.TransactionItem{
			{SKU: "RICE-1", Name: "Rice 1kg", Qty: 3, Price: decimal.NewFromInt(45_000)},
			{SKU: "FISH-W", Name: "Fish by weight", Qty: 1, Price: decimal.RequireFromString("32500.5")},
		},
	})
	require.NoError(t, err)

	// 3*45000 + 32500.5 = 167500.5, settles to 167501 (half away
	// from zero), earning 167 points.
	assert.Equal(t, int64(167_501), result.Transaction.Subtotal)
	assert.Equal(t, int64(167), result.Transaction.PointsEarned)
}

func TestRecordTransaction_NegativeItemPrice_Rejected(t *testing.T) {
	// GIVEN: No subtotal, a line item with a negative price
	// WHEN: Recording
	// THEN: The derived subtotal is rejected and nothing is persisted

	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	_, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Items: []loyalty.TransactionItem{
			{SKU: "REF-1", Name: "Mispriced refund", Qty: 2, Price: decimal.NewFromInt(-45_000)},
		},
	})
	require.ErrorIs(t, err, loyalty.ErrInvalidSubtotal)

	txs, err := mem.ListTransactions(ctx, loyalty.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// TRANSACTION SHAPE
// =============================================================================

func TestRecordTransaction_LedgerLink(t *testing.T) {
	// The EARN entry carries a reference back to the transaction.
	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Subtotal:   50_000,
		Store:      loyalty.StoreRef{Code: "HCM-02", Name: "Saigon Centre"},
		Channel:    "POS",
	})
	require.NoError(t, err)

	entries, err := mem.ListEntries(ctx, loyalty.ListOptions{CustomerID: c.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NotNil(t, entries[0].Transaction)
	assert.Equal(t, result.Transaction.ID, entries[0].Transaction.Code)
	assert.Equal(t, int64(50_000), entries[0].Transaction.Total)
	assert.Equal(t, "HCM-02", entries[0].Transaction.Store)
	assert.Equal(t, "POS", entries[0].Transaction.Channel)
}

func TestRecordTransaction_SnapshotIsPrePurchase(t *testing.T) {
	// The transaction's customer snapshot is frozen before the earn,
	// so a tier upgrade caused by this very purchase is not visible
	// on the transaction itself.
	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 1999, 1999) // SILVER, one point from GOLD

	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Subtotal:   10_000,
	})
	require.NoError(t, err)

	assert.Equal(t, loyalty.TierSilver, result.Transaction.Customer.Tier)
	assert.Equal(t, loyalty.TierGold, result.NewTier)
}

func TestRecordTransaction_Defaults(t *testing.T) {
	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Subtotal:   5_000,
	})
	require.NoError(t, err)

	assert.Equal(t, loyalty.DefaultStore, result.Transaction.Store)
	assert.Equal(t, loyalty.DefaultChannel, result.Transaction.Channel)
	assert.False(t, result.Transaction.PaidAt.IsZero())
}

func TestRecordTransaction_BackdatedPaidAt(t *testing.T) {
	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	paidAt := time.Date(2026, time.February, 14, 18, 30, 0, 0, time.UTC)
	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Subtotal:   20_000,
		PaidAt:     paidAt,
	})
	require.NoError(t, err)

	assert.True(t, result.Transaction.PaidAt.Equal(paidAt))

	entries, err := mem.ListEntries(ctx, loyalty.ListOptions{CustomerID: c.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].OccurredAt.Equal(paidAt))
}

// =============================================================================
// ZERO-POINT AND INVALID PURCHASES
// =============================================================================

func TestRecordTransaction_ZeroPoints_NoLedgerEntry(t *testing.T) {
	// A purchase below the points unit persists the transaction but
	// writes no ledger entry and leaves the balance untouched.
	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 40, 40)

	result, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Subtotal:   999,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.Transaction.PointsEarned)
	assert.Equal(t, int64(40), result.NewBalance)

	txs, err := mem.ListTransactions(ctx, loyalty.ListOptions{CustomerID: c.ID})
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	entries, err := mem.ListEntries(ctx, loyalty.ListOptions{CustomerID: c.ID})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordTransaction_Validation(t *testing.T) {
	recorder, mem := newTestRecorder(t)
	ctx := context.Background()
	c := seedCustomer(t, mem, 0, 0)

	_, err := recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: c.ID,
		Subtotal:   -1,
	})
	assert.ErrorIs(t, err, loyalty.ErrInvalidSubtotal)

	negative := int64(-10)
	_, err = recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID:     c.ID,
		Subtotal:       10_000,
		ExplicitPoints: &negative,
	})
	assert.ErrorIs(t, err, loyalty.ErrInvalidPoints)

	_, err = recorder.RecordTransaction(ctx, loyalty.RecordInput{
		CustomerID: "CUS-MISSING",
		Subtotal:   10_000,
	})
	assert.ErrorIs(t, err, loyalty.ErrCustomerNotFound)
}
