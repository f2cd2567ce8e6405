/*
errors.go - Centralized error types for the stock-ledger engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers distinguish failures with errors.Is against the sentinels;
  structured types carry the context needed for user-facing messages
  (e.g. how much stock was actually available).

ERROR CATEGORIES:
  1. Lookup errors - Unknown or duplicate ids
  2. Validation errors - Bad input (non-positive quantity, missing date)
  3. Consumption errors - Mutation blocked by prior lot consumption
  4. Invariant errors - Internal consistency failures (bugs, not bad input)

USAGE:
  out, err := svc.Withdraw(ctx, productID, qty, date, nil, nil)
  var insufficient *ledger.InsufficientStockError
  if errors.As(err, &insufficient) {
      // show insufficient.Available to the user
  }

SEE ALSO:
  - store.go: Store operations returning these errors
  - service.go: Cross-entity invariant enforcement
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID is returned when inserting a record whose id is already
	// present. Should not occur under correct id generation.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrDuplicateSKU is returned when a product create/update collides with
	// another product's SKU.
	ErrDuplicateSKU = errors.New("duplicate sku")

	// ErrValidation is returned for invalid caller input.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when a withdrawal exceeds the total
	// remaining quantity across a product's live lots.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPartiallyConsumed is returned when deleting a lot that has already
	// been partially or fully consumed.
	ErrPartiallyConsumed = errors.New("lot partially consumed")

	// ErrConsumedQuantity is returned when shrinking a lot below the amount
	// already consumed from it.
	ErrConsumedQuantity = errors.New("quantity below consumed amount")

	// ErrProductHasHistory is returned when deleting a product that still
	// owns lots or journal history.
	ErrProductHasHistory = errors.New("product has transaction history")

	// ErrInvariantViolation indicates an internal consistency check failed.
	// Unreachable given correct call discipline; raised means a bug.
	ErrInvariantViolation = errors.New("invariant violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports a withdrawal that exceeds available stock.
// Available lets callers produce a precise user-facing message.
type InsufficientStockError struct {
	ProductID string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %s, only %s available",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ConsumedQuantityError reports an attempt to shrink a lot below what has
// already been withdrawn from it.
type ConsumedQuantityError struct {
	EntryID   string
	Consumed  decimal.Decimal
	Requested decimal.Decimal
}

func (e *ConsumedQuantityError) Error() string {
	return fmt.Sprintf("cannot reduce lot %s to %s: %s already consumed",
		e.EntryID, e.Requested, e.Consumed)
}

func (e *ConsumedQuantityError) Unwrap() error {
	return ErrConsumedQuantity
}

// PartiallyConsumedError reports a delete attempt on a touched lot.
type PartiallyConsumedError struct {
	EntryID   string
	Remaining decimal.Decimal
	Quantity  decimal.Decimal
}

func (e *PartiallyConsumedError) Error() string {
	return fmt.Sprintf("cannot delete lot %s: %s of %s remaining",
		e.EntryID, e.Remaining, e.Quantity)
}

func (e *PartiallyConsumedError) Unwrap() error {
	return ErrPartiallyConsumed
}

// ValidationError reports invalid caller input on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvariantViolationError reports a lot delta that would leave
// RemainingQuantity outside [0, Quantity].
type InvariantViolationError struct {
	EntryID string
	Result  decimal.Decimal
	Max     decimal.Decimal
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("lot %s: remaining quantity %s outside [0, %s]",
		e.EntryID, e.Result, e.Max)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrPartiallyConsumed) ||
		errors.Is(err, ErrConsumedQuantity) ||
		errors.Is(err, ErrDuplicateSKU) ||
		errors.Is(err, ErrProductHasHistory)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
