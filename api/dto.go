/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract,
  allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Requests validate themselves via a Validate() method; handlers call
  it right after decoding so malformed commands never reach the
  domain layer.

SEE ALSO:
  - handlers.go: Uses these types
  - loyalty/types.go: The domain model these map from
*/
package api

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/loyalty"
)

// =============================================================================
// CUSTOMER TYPES
// =============================================================================

// CustomerDTO represents a customer in API responses.
type CustomerDTO struct {
	ID         string        `json:"id"`
	FullName   string        `json:"fullName"`
	Phone      string        `json:"phone,omitempty"`
	Email      string        `json:"email,omitempty"`
	Address    AddressDTO    `json:"address"`
	Status     string        `json:"status"`
	Membership MembershipDTO `json:"membership"`
	CreatedAt  string        `json:"createdAt"`
	UpdatedAt  string        `json:"updatedAt"`
}

type AddressDTO struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

type MembershipDTO struct {
	Tier            string `json:"tier"`
	AvailablePoints int64  `json:"availablePoints"`
	LifetimeEarned  int64  `json:"lifetimeEarned"`
	TierSince       string `json:"tierSince"`
}

func toCustomerDTO(c *loyalty.Customer) CustomerDTO {
	return CustomerDTO{
		ID:       c.ID,
		FullName: c.FullName,
		Phone:    c.Phone,
		Email:    c.Email,
		Address:  AddressDTO{City: c.Address.City, Country: c.Address.Country},
		Status:   c.Status,
		Membership: MembershipDTO{
			Tier:            string(c.Membership.Tier),
			AvailablePoints: c.Membership.AvailablePoints,
			LifetimeEarned:  c.Membership.LifetimeEarned,
			TierSince:       c.Membership.TierSince.Format(time.RFC3339),
		},
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}

func toCustomerDTOs(customers []loyalty.Customer) []CustomerDTO {
	dtos := make([]CustomerDTO, len(customers))
	for i := range customers {
		dtos[i] = toCustomerDTO(&customers[i])
	}
	return dtos
}

// CustomerRequest is the create/update payload for a customer.
type CustomerRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Status   string `json:"status"`
}

func (r *CustomerRequest) Validate() error {
	if r.FullName == "" {
		return errors.New("fullName is required")
	}
	return nil
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// TransactionDTO represents a purchase in API responses.
type TransactionDTO struct {
	ID           string               `json:"id"`
	Customer     CustomerRefDTO       `json:"customer"`
	Store        StoreRefDTO          `json:"store"`
	Channel      string               `json:"channel"`
	Items        []TransactionItemDTO `json:"items,omitempty"`
	Subtotal     int64                `json:"subtotal"`
	PointsEarned int64                `json:"pointsEarned"`
	PaidAt       string               `json:"paidAt"`
	CreatedAt    string               `json:"createdAt"`
}

type CustomerRefDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

type StoreRefDTO struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

type TransactionItemDTO struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Qty      int64           `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category,omitempty"`
}

func toTransactionDTO(tx *loyalty.Transaction) TransactionDTO {
	items := make([]TransactionItemDTO, len(tx.Items))
	for i, item := range tx.Items {
		items[i] = TransactionItemDTO{
			SKU:      item.SKU,
			Name:     item.Name,
			Qty:      item.Qty,
			Price:    item.Price,
			Category: item.Category,
		}
	}
	return TransactionDTO{
		ID: tx.ID,
		Customer: CustomerRefDTO{
			ID:   tx.Customer.ID,
			Name: tx.Customer.Name,
			Tier: string(tx.Customer.Tier),
		},
		Store:        StoreRefDTO{Code: tx.Store.Code, Name: tx.Store.Name},
		Channel:      tx.Channel,
		Items:        items,
		Subtotal:     tx.Subtotal,
		PointsEarned: tx.PointsEarned,
		PaidAt:       tx.PaidAt.Format(time.RFC3339),
		CreatedAt:    tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []loyalty.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	return dtos
}

// RecordTransactionRequest is the purchase-recording payload.
// Points, when present, overrides the subtotal-derived award.
type RecordTransactionRequest struct {
	CustomerID string               `json:"customerId"`
	Subtotal   int64                `json:"subtotal"`
	Items      []TransactionItemDTO `json:"items"`
	Points     *int64               `json:"points"`
	Store      StoreRefDTO          `json:"store"`
	Channel    string               `json:"channel"`
	PaidAt     string               `json:"paidAt"`
}

func (r *RecordTransactionRequest) Validate() error {
	if r.CustomerID == "" {
		return errors.New("customerId is required")
	}
	if r.Subtotal < 0 {
		return errors.New("subtotal must not be negative")
	}
	if r.Subtotal == 0 && len(r.Items) == 0 {
		return errors.New("subtotal or items is required")
	}
	if r.Points != nil && *r.Points < 0 {
		return errors.New("points must not be negative")
	}
	for _, item := range r.Items {
		if item.Qty <= 0 {
			return errors.New("item qty must be positive")
		}
		if item.Price.IsNegative() {
			return errors.New("item price must not be negative")
		}
	}
	return nil
}

func (r *RecordTransactionRequest) toInput() (loyalty.RecordInput, error) {
	var paidAt time.Time
	if r.PaidAt != "" {
		t, err := time.Parse(time.RFC3339, r.PaidAt)
		if err != nil {
			return loyalty.RecordInput{}, errors.New("invalid paidAt format (use RFC3339)")
		}
		paidAt = t
	}

	items := make([]loyalty.TransactionItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = loyalty.TransactionItem{
			SKU:      item.SKU,
			Name:     item.Name,
			Qty:      item.Qty,
			Price:    item.Price,
			Category: item.Category,
		}
	}

	return loyalty.RecordInput{
		CustomerID:     r.CustomerID,
		Subtotal:       r.Subtotal,
		Items:          items,
		ExplicitPoints: r.Points,
		Store:          loyalty.StoreRef{Code: r.Store.Code, Name: r.Store.Name},
		Channel:        r.Channel,
		PaidAt:         paidAt,
	}, nil
}

// RecordTransactionResponse wraps the stored transaction with the
// customer's post-earn standing.
type RecordTransactionResponse struct {
	Transaction TransactionDTO `json:"transaction"`
	NewBalance  int64          `json:"newBalance"`
	NewTier     string         `json:"newTier"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// LedgerEntryDTO represents one history line in API responses.
type LedgerEntryDTO struct {
	ID          string             `json:"id"`
	Customer    CustomerRefDTO     `json:"customer"`
	Kind        string             `json:"kind"`
	PointsDelta int64              `json:"pointsDelta"`
	Title       string             `json:"title,omitempty"`
	Transaction *TransactionRefDTO `json:"transaction,omitempty"`
	OccurredAt  string             `json:"occurredAt"`
	CreatedAt   string             `json:"createdAt"`
}

type TransactionRefDTO struct {
	Code    string `json:"code"`
	Total   int64  `json:"total"`
	Store   string `json:"store,omitempty"`
	Channel string `json:"channel,omitempty"`
}

func toLedgerEntryDTO(e loyalty.LedgerEntry) LedgerEntryDTO {
	dto := LedgerEntryDTO{
		ID: e.ID,
		Customer: CustomerRefDTO{
			ID:   e.Customer.ID,
			Name: e.Customer.Name,
			Tier: string(e.Customer.Tier),
		},
		Kind:        string(e.Kind),
		PointsDelta: e.PointsDelta,
		Title:       e.Title,
		OccurredAt:  e.OccurredAt.Format(time.RFC3339),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.Transaction != nil {
		dto.Transaction = &TransactionRefDTO{
			Code:    e.Transaction.Code,
			Total:   e.Transaction.Total,
			Store:   e.Transaction.Store,
			Channel: e.Transaction.Channel,
		}
	}
	return dto
}

func toLedgerEntryDTOs(entries []loyalty.LedgerEntry) []LedgerEntryDTO {
	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerEntryDTO(e)
	}
	return dtos
}

// AdjustPointsRequest is the burn/expire payload.
type AdjustPointsRequest struct {
	CustomerID string `json:"customerId"`
	Points     int64  `json:"points"`
	Reason     string `json:"reason"`
}

func (r *AdjustPointsRequest) Validate() error {
	if r.CustomerID == "" {
		return errors.New("customerId is required")
	}
	if r.Points <= 0 {
		return errors.New("points must be positive")
	}
	return nil
}

// AdjustPointsResponse is the post-adjustment standing.
type AdjustPointsResponse struct {
	Entry      LedgerEntryDTO `json:"entry"`
	NewBalance int64          `json:"newBalance"`
	NewTier    string         `json:"newTier"`
}

// =============================================================================
// DASHBOARD TYPES
// =============================================================================

// DashboardDTO is the back-office landing summary.
type DashboardDTO struct {
	TotalCustomers     int              `json:"totalCustomers"`
	TotalTransactions  int              `json:"totalTransactions"`
	TiersBreakdown     map[string]int   `json:"tiersBreakdown"`
	PointsOutstanding  int64            `json:"pointsOutstanding"`
	LifetimeEarned     int64            `json:"lifetimeEarned"`
	RecentTransactions []TransactionDTO `json:"recentTransactions"`
	RecentActivity     []LedgerEntryDTO `json:"recentActivity"`
}

// =============================================================================
// SHARED TYPES
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
