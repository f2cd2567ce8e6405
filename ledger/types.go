/*
Package ledger provides the core stock-ledger engine.

PURPOSE:
  This package contains the types and algorithms for FIFO inventory
  valuation. Stock arrives in discrete lots, each with its own cost basis;
  withdrawals consume the oldest lots first, and a product's current stock
  and weighted-average cost are always derived from its surviving lots.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: Catalog record whose stock/cost fields are derived, never set
  - StockEntry: One lot - a receipt of inventory at a fixed unit price
  - StockOutput: One withdrawal, valued by FIFO lot consumption
  - StockOutputLine: How much a withdrawal drew from a single lot
  - Transaction: Journal row documenting an entry or output event

DESIGN PRINCIPLES:
  1. Derived state: Product.CurrentStock/AverageCost are recomputed from
     lots by the valuation aggregator, never mutated by callers
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Auditability: Exhausted lots are kept; every event leaves a journal row
  4. Reversibility: Deleting a withdrawal restores exactly what it consumed

USAGE:
  entry := ledger.StockEntry{
      ProductID:         "prod-123",
      Quantity:          decimal.NewFromInt(80),
      RemainingQuantity: decimal.NewFromInt(80),
      UnitPrice:         decimal.RequireFromString("5.0"),
  }

SEE ALSO:
  - allocation.go: FIFO lot selection
  - service.go: The only component allowed to mutate stores
  - valuation.go: Derived stock/cost recomputation
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRODUCT - Catalog record with derived stock totals
// =============================================================================

// Product is a catalog record. CurrentStock and AverageCost are derived
// fields: they are written only by Revalue, never by callers.
type Product struct {
	ID          string
	Name        string
	SKU         string
	Description string
	Units       *string

	// Derived from live lots. Do not set directly.
	CurrentStock decimal.Decimal
	AverageCost  decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// STOCK ENTRY - One lot of received inventory
// =============================================================================

// StockEntry is a lot: one discrete receipt of inventory at a fixed unit
// price. EntryDate is the FIFO ordering key.
//
// INVARIANT: 0 <= RemainingQuantity <= Quantity at all times.
//
// A lot with RemainingQuantity == 0 is exhausted. Exhausted lots remain in
// the store for audit but are excluded from future allocation.
type StockEntry struct {
	ID                string
	ProductID         string
	Quantity          decimal.Decimal
	RemainingQuantity decimal.Decimal
	UnitPrice         decimal.Decimal
	EntryDate         time.Time
	Notes             *string
	CreatedAt         time.Time
}

// LotState describes where a lot sits in its consumption lifecycle.
type LotState string

const (
	LotOpen              LotState = "open"               // untouched, deletable
	LotPartiallyConsumed LotState = "partially_consumed" // some quantity withdrawn
	LotExhausted         LotState = "exhausted"          // fully withdrawn, audit only
)

// State derives the lot's consumption state from its quantities.
func (e StockEntry) State() LotState {
	switch {
	case e.RemainingQuantity.IsZero():
		return LotExhausted
	case e.RemainingQuantity.Equal(e.Quantity):
		return LotOpen
	default:
		return LotPartiallyConsumed
	}
}

// Consumed returns how much of the lot has been withdrawn.
func (e StockEntry) Consumed() decimal.Decimal {
	return e.Quantity.Sub(e.RemainingQuantity)
}

// =============================================================================
// STOCK OUTPUT - One withdrawal, valued by FIFO
// =============================================================================

// StockOutput is a withdrawal event. TotalCost is the literal sum of its
// allocation lines (quantity x frozen lot price), NOT quantity x average
// cost. Totals are fixed once persisted; changing the quantity means
// replacing the record wholesale.
type StockOutput struct {
	ID              string
	ProductID       string
	TotalQuantity   decimal.Decimal
	TotalCost       decimal.Decimal
	ReferenceNumber *string
	OutputDate      time.Time
	Notes           *string
	CreatedAt       time.Time
}

// StockOutputLine records how much a withdrawal drew from a single lot.
// UnitPrice is copied from the lot at allocation time and stays frozen.
// Lines live and die with their parent output and are never edited.
type StockOutputLine struct {
	ID            string
	StockOutputID string
	StockEntryID  string
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
}

// =============================================================================
// TRANSACTION - Journal row for entry/output events
// =============================================================================

type TransactionType string

const (
	TransactionTypeEntry  TransactionType = "entry"
	TransactionTypeOutput TransactionType = "output"
)

// Transaction is a journal row documenting an entry or output event.
// ReferenceID points at the StockEntry or StockOutput it documents.
// Rows are appended on creation and retracted when the referenced record
// is deleted; at most one row exists per (ReferenceID, Type).
type Transaction struct {
	ID          string
	Type        TransactionType
	ProductID   string
	Quantity    decimal.Decimal
	Date        time.Time
	ReferenceID string
	Notes       *string
}
