/*
allocation.go - FIFO lot selection

PURPOSE:
  Given a product's lots and a requested withdrawal quantity, decide which
  lots satisfy it and at what cost. Allocation is a pure function over a
  pre-fetched lot slice: it performs NO mutation, so it is trivially
  unit-testable and the caller (the ledger service) owns the apply step.

ALGORITHM:
  1. Filter lots with RemainingQuantity > 0
  2. Stable-sort ascending by EntryDate (ties keep insertion order)
  3. If the filtered total is short, fail with InsufficientStockError
     carrying the available quantity
  4. Walk the sorted lots, taking min(still-needed, lot remaining) from
     each and freezing the lot's unit price onto the emitted line
  5. TotalCost is the exact sum of per-line quantity x price - never a
     re-derivation from an average

SEE ALSO:
  - service.go: Applies the computed split inside one transaction
  - valuation.go: The weighted-average side of the calculation
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION RESULT
// =============================================================================

// AllocationLine is one planned draw against a single lot.
type AllocationLine struct {
	EntryID       string
	QuantityTaken decimal.Decimal
	UnitPrice     decimal.Decimal
}

// Allocation is the full FIFO split for a requested quantity.
type Allocation struct {
	Lines     []AllocationLine
	TotalCost decimal.Decimal
}

// =============================================================================
// FIFO ALLOCATION
// =============================================================================

// Allocate computes the FIFO split of quantity across the given lots.
// The input slice is not modified and no store is touched; the caller is
// responsible for applying the resulting deltas.
//
// Returns an InsufficientStockError (carrying the available total) when the
// live lots cannot cover the request.
func Allocate(productID string, entries []StockEntry, quantity decimal.Decimal) (Allocation, error) {
	if !quantity.IsPositive() {
		return Allocation{}, &ValidationError{Field: "quantity", Message: "must be positive"}
	}

	available := make([]StockEntry, 0, len(entries))
	for _, e := range entries {
		if e.RemainingQuantity.IsPositive() {
			available = append(available, e)
		}
	}

	// Stable sort: lots sharing an EntryDate keep their insertion order.
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].EntryDate.Before(available[j].EntryDate)
	})

	total := decimal.Zero
	for _, e := range available {
		total = total.Add(e.RemainingQuantity)
	}
	if total.LessThan(quantity) {
		return Allocation{}, &InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: total,
		}
	}

	var alloc Allocation
	remaining := quantity
	for _, e := range available {
		if !remaining.IsPositive() {
			break
		}

		take := remaining
		if take.GreaterThan(e.RemainingQuantity) {
			take = e.RemainingQuantity
		}

		alloc.Lines = append(alloc.Lines, AllocationLine{
			EntryID:       e.ID,
			QuantityTaken: take,
			UnitPrice:     e.UnitPrice,
		})
		alloc.TotalCost = alloc.TotalCost.Add(take.Mul(e.UnitPrice))
		remaining = remaining.Sub(take)
	}

	return alloc, nil
}
