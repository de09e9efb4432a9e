/*
seed.go - Demo data loader

PURPOSE:
  Populates the store with a realistic demo data set: customers at
  each tier, purchase transactions, and burn activity. All data flows
  through the recorder and engine, never straight into the stores, so
  the seeded state satisfies every ledger invariant.

USAGE:
  POST /api/seed

  Idempotency: not idempotent. Each call adds a fresh batch on top of
  whatever exists. Intended for empty dev databases.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/loyalty"
)

type seedCustomer struct {
	fullName string
	phone    string
	email    string
	city     string
	country  string

	// purchases in minor currency units; tiers emerge from these
	purchases []int64
	burn      int64
}

var seedCustomers = []seedCustomer{
	{
		fullName:  "Mai Tran",
		phone:     "+84901234501",
		email:     "mai.tran@example.com",
		city:      "Hanoi",
		country:   "VN",
		purchases: []int64{850_000, 420_000}, // SILVER
		burn:      200,
	},
	{
		fullName:  "Quang Pham",
		phone:     "+84901234502",
		email:     "quang.pham@example.com",
		city:      "Da Nang",
		country:   "VN",
		purchases: []int64{1_500_000, 700_000}, // GOLD
	},
	{
		fullName:  "Linh Nguyen",
		phone:     "+84901234503",
		email:     "linh.nguyen@example.com",
		city:      "Ho Chi Minh City",
		country:   "VN",
		purchases: []int64{3_200_000, 2_100_000}, // PLATINUM
		burn:      1500,
	},
	{
		fullName: "Duc Le",
		phone:    "+84901234504",
		email:    "duc.le@example.com",
		city:     "Hue",
		country:  "VN",
		// no purchases yet: BRONZE
	},
}

// Seed loads the demo data set.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	created, err := h.seed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed demo data", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"customers": created,
		"message":   "demo data loaded",
	})
}

func (h *Handler) seed(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	for i, sc := range seedCustomers {
		customer := &loyalty.Customer{
			ID:       loyalty.NewCustomerID(),
			FullName: sc.fullName,
			Phone:    sc.phone,
			Email:    sc.email,
			Address:  loyalty.Address{City: sc.city, Country: sc.country},
			Status:   "active",
			Membership: loyalty.Membership{
				Tier:      loyalty.TierFor(0),
				TierSince: now,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := h.Customers.CreateCustomer(ctx, customer); err != nil {
			return i, fmt.Errorf("seed customer %s: %w", sc.fullName, err)
		}

		for j, subtotal := range sc.purchases {
			paidAt := now.AddDate(0, 0, -(len(sc.purchases)-j)*7)
			_, err := h.Recorder.RecordTransaction(ctx, loyalty.RecordInput{
				CustomerID: customer.ID,
				Subtotal:   subtotal,
				Items: []loyalty.TransactionItem{
					{
						SKU:      fmt.Sprintf("SKU-%03d", j+1),
						Name:     "Demo basket",
						Qty:      1,
						Price:    decimal.NewFromInt(subtotal),
						Category: "demo",
					},
				},
				Store:   loyalty.StoreRef{Code: "HN-01", Name: "Flagship Hanoi"},
				Channel: "POS",
				PaidAt:  paidAt,
			})
			if err != nil {
				return i, fmt.Errorf("seed transaction for %s: %w", sc.fullName, err)
			}
		}

		if sc.burn > 0 {
			if _, err := h.Engine.Burn(ctx, customer.ID, sc.burn, "Redeemed voucher"); err != nil {
				return i, fmt.Errorf("seed burn for %s: %w", sc.fullName, err)
			}
		}
	}
	return len(seedCustomers), nil
}
