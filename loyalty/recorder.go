/*
recorder.go - The transaction recorder (purchase -> EARN)

PURPOSE:
  Builds a purchase transaction record and drives the engine's EARN
  path. This is the only producer of transactions and the only caller
  of AdjustPoints with a TransactionRef.

POINTS POLICY:
  pointsEarned = explicit override when provided,
                 else floor(subtotal / PointsPerUnit)
  PointsPerUnit is 1000 minor currency units per point.

SUBTOTAL:
  The caller usually supplies the subtotal directly (minor units).
  When it is omitted but line items are present, the recorder extends
  the items with decimal arithmetic (qty x price, exact) and settles
  the sum to whole minor units. Unit prices may be fractional
  (priced-by-weight goods); extended totals may not drift.

ZERO-POINT PURCHASES:
  A purchase under PointsPerUnit earns nothing. The transaction is
  still persisted; the ledger step is skipped because the engine
  rejects non-positive adjustments. The returned balance/tier are the
  customer's current values.

SEE ALSO:
  - engine.go: The EARN path
  - store.go: TransactionStore, including the delete cascade rule
*/
package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PointsPerUnit is how many minor currency units earn one point.
const PointsPerUnit int64 = 1000

// Defaults applied when a purchase omits its origin.
var (
	DefaultStore   = StoreRef{Code: "ONLINE", Name: "Online"}
	DefaultChannel = "WEB"
)

// =============================================================================
// RECORDER
// =============================================================================

// Recorder persists purchase transactions and drives the EARN path.
type Recorder struct {
	Customers    CustomerStore
	Transactions TransactionStore
	Engine       *Engine

	Now func() time.Time
}

// NewRecorder creates a recorder over the engine's stores.
func NewRecorder(customers CustomerStore, transactions TransactionStore, engine *Engine) *Recorder {
	return &Recorder{Customers: customers, Transactions: transactions, Engine: engine}
}

// RecordInput is the typed, boundary-validated purchase command.
type RecordInput struct {
	CustomerID string

	// Subtotal in minor currency units; zero with Items present means
	// "derive from the items".
	Subtotal int64
	Items    []TransactionItem

	// ExplicitPoints overrides the derived points when non-nil.
	ExplicitPoints *int64

	Store   StoreRef
	Channel string

	// PaidAt may be backdated; zero means now.
	PaidAt time.Time
}

// RecordResult is the transaction plus the engine's updated view.
type RecordResult struct {
	Transaction *Transaction
	NewBalance  int64
	NewTier     Tier
}

// RecordTransaction validates, persists the purchase, and earns points
// through the engine.
func (r *Recorder) RecordTransaction(ctx context.Context, in RecordInput) (*RecordResult, error) {
	if in.Subtotal < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSubtotal, in.Subtotal)
	}
	if in.ExplicitPoints != nil && *in.ExplicitPoints < 0 {
		return nil, fmt.Errorf("%w: explicit points %d", ErrInvalidPoints, *in.ExplicitPoints)
	}

	customer, err := r.Customers.FindCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	subtotal := in.Subtotal
	if subtotal == 0 && len(in.Items) > 0 {
		subtotal = SubtotalFromItems(in.Items)
		// Re-check: a negative item price can derive a negative
		// subtotal, which must not reach the store.
		if subtotal < 0 {
			return nil, fmt.Errorf("%w: derived from items: %d", ErrInvalidSubtotal, subtotal)
		}
	}

	points := subtotal / PointsPerUnit
	if in.ExplicitPoints != nil {
		points = *in.ExplicitPoints
	}

	store := in.Store
	if store.Code == "" {
		store = DefaultStore
	}
	channel := in.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	tx := &Transaction{
		ID:           NewTransactionID(now),
		Customer:     customer.Ref(), // snapshot at purchase time, pre-earn
		Store:        store,
		Channel:      channel,
		Items:        in.Items,
		Subtotal:     subtotal,
		PointsEarned: points,
		PaidAt:       paidAt,
		CreatedAt:    now,
	}
	if err := r.Transactions.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	if points == 0 {
		return &RecordResult{
			Transaction: tx,
			NewBalance:  customer.Membership.AvailablePoints,
			NewTier:     customer.Membership.Tier,
		}, nil
	}

	adjusted, err := r.Engine.AdjustPoints(ctx, in.CustomerID, points, EntryEarn, AdjustContext{
		Title: fmt.Sprintf("Earned from transaction %s", tx.ID),
		Transaction: &TransactionRef{
			Code:    tx.ID,
			Total:   subtotal,
			Store:   store.Code,
			Channel: channel,
		},
		OccurredAt: paidAt,
	})
	if err != nil {
		return nil, err
	}

	return &RecordResult{
		Transaction: tx,
		NewBalance:  adjusted.NewBalance,
		NewTier:     adjusted.NewTier,
	}, nil
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// LINE-ITEM EXTENSION
// =============================================================================

// SubtotalFromItems extends line items (qty x price) with exact
// decimal arithmetic and settles the total to whole minor units,
// rounding half away from zero.
func SubtotalFromItems(items []TransactionItem) int64 {
	total := decimal.Zero
	for _, item := range items {
		line := item.Price.Mul(decimal.NewFromInt(item.Qty))
		total = total.Add(line)
	}
	return total.Round(0).IntPart()
}
