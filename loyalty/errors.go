/*
errors.go - Centralized error types for the loyalty engine

PURPOSE:
  All domain error types in one place. Callers classify failures with
  errors.Is/As; the HTTP layer maps classes to status codes.

TAXONOMY:
  NotFound            unknown customer / transaction
  InvalidArgument     non-positive points, bad kind, negative subtotal
  InsufficientBalance burn/expire exceeds the available balance
  StorageFailure      store unavailable or write failed
  HistoryAppend       balance committed but the ledger append failed -
                      the documented at-least-once gap, surfaced loudly,
                      never retried blindly (a naive retry would write
                      duplicate entries)

USAGE:
  if errors.Is(err, loyalty.ErrInsufficientBalance) { ... }

  var short *loyalty.InsufficientBalanceError
  if errors.As(err, &short) { short.Shortfall ... }
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCustomerNotFound is returned when the referenced customer
	// does not exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrTransactionNotFound is returned when the referenced
	// transaction does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidPoints is returned for zero or negative point amounts.
	ErrInvalidPoints = errors.New("points must be a positive integer")

	// ErrInvalidKind is returned for an unknown entry kind.
	ErrInvalidKind = errors.New("invalid entry kind")

	// ErrInvalidSubtotal is returned for a negative purchase subtotal.
	ErrInvalidSubtotal = errors.New("subtotal must not be negative")

	// ErrInsufficientBalance is returned when a debit exceeds the
	// available balance. EXPIRE is strict: it is bounded by the
	// current balance the same way BURN is.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrHistoryAppend is returned when the balance update committed
	// but the ledger append did not.
	ErrHistoryAppend = errors.New("ledger append failed after balance update")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a balance shortage.
type InsufficientBalanceError struct {
	CustomerID string
	Available  int64
	Requested  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %d, requested %d",
		e.CustomerID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// Shortfall is how many points were missing.
func (e *InsufficientBalanceError) Shortfall() int64 {
	return e.Requested - e.Available
}

// HistoryAppendError reports the inconsistency window where a balance
// mutation persisted but its ledger entry did not.
type HistoryAppendError struct {
	EntryID string
	Err     error
}

func (e *HistoryAppendError) Error() string {
	return fmt.Sprintf("ledger append failed for %s after balance update: %v", e.EntryID, e.Err)
}

func (e *HistoryAppendError) Unwrap() error {
	return ErrHistoryAppend
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsClientError reports whether the error is correctable by the caller
// (4xx-equivalent). Storage failures are not client errors.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPoints) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidSubtotal) ||
		errors.Is(err, ErrInsufficientBalance)
}
