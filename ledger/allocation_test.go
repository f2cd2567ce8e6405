package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lot(id string, remaining, quantity, price string, date time.Time) ledger.StockEntry {
	return ledger.StockEntry{
		ID:                id,
		ProductID:         "prod-1",
		Quantity:          dec(quantity),
		RemainingQuantity: dec(remaining),
		UnitPrice:         dec(price),
		EntryDate:         date,
	}
}

var (
	jan = time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC)
	mar = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
)

// =============================================================================
// FIFO ORDER TESTS
// =============================================================================

func TestAllocate_OldestLotFirst(t *testing.T) {
	// GIVEN: Two lots, the older one large enough to cover the request
	// WHEN: Allocating less than the oldest lot's remaining quantity
	// THEN: Only the oldest lot is consumed

	entries := []ledger.StockEntry{
		lot("e-feb", "50", "50", "5.5", feb),
		lot("e-jan", "80", "80", "5.0", jan),
	}

	alloc, err := ledger.Allocate("prod-1", entries, dec("20"))
	require.NoError(t, err)

	require.Len(t, alloc.Lines, 1)
	assert.Equal(t, "e-jan", alloc.Lines[0].EntryID)
	assert.True(t, alloc.Lines[0].QuantityTaken.Equal(dec("20")))
	assert.True(t, alloc.Lines[0].UnitPrice.Equal(dec("5.0")))
	assert.True(t, alloc.TotalCost.Equal(dec("100")), "20 x 5.0, got %s", alloc.TotalCost)
}

func TestAllocate_CrossesLotBoundary(t *testing.T) {
	// GIVEN: 80 units @ 5.0 (January) and 50 units @ 5.5 (February)
	// WHEN: Allocating 100 units
	// THEN: The January lot is exhausted and 20 units come from February,
	//       at each lot's own frozen price

	entries := []ledger.StockEntry{
		lot("e-jan", "80", "80", "5.0", jan),
		lot("e-feb", "50", "50", "5.5", feb),
	}

	alloc, err := ledger.Allocate("prod-1", entries, dec("100"))
	require.NoError(t, err)

	require.Len(t, alloc.Lines, 2)
	assert.Equal(t, "e-jan", alloc.Lines[0].EntryID)
	assert.True(t, alloc.Lines[0].QuantityTaken.Equal(dec("80")))
	assert.Equal(t, "e-feb", alloc.Lines[1].EntryID)
	assert.True(t, alloc.Lines[1].QuantityTaken.Equal(dec("20")))

	// 80*5.0 + 20*5.5 = 400 + 110 = 510, never 100 x average cost
	assert.True(t, alloc.TotalCost.Equal(dec("510")), "got %s", alloc.TotalCost)
}

func TestAllocate_SkipsExhaustedLots(t *testing.T) {
	// GIVEN: The oldest lot is fully consumed
	// WHEN: Allocating
	// THEN: Consumption starts at the oldest lot with remaining stock

	entries := []ledger.StockEntry{
		lot("e-jan", "0", "80", "5.0", jan),
		lot("e-feb", "50", "50", "5.5", feb),
	}

	alloc, err := ledger.Allocate("prod-1", entries, dec("10"))
	require.NoError(t, err)

	require.Len(t, alloc.Lines, 1)
	assert.Equal(t, "e-feb", alloc.Lines[0].EntryID)
}

func TestAllocate_PartiallyConsumedLotContributesRemainder(t *testing.T) {
	// GIVEN: The oldest lot has 30 of 80 remaining
	// WHEN: Allocating 40
	// THEN: 30 come from the old lot and 10 from the next

	entries := []ledger.StockEntry{
		lot("e-jan", "30", "80", "5.0", jan),
		lot("e-feb", "50", "50", "5.5", feb),
	}

	alloc, err := ledger.Allocate("prod-1", entries, dec("40"))
	require.NoError(t, err)

	require.Len(t, alloc.Lines, 2)
	assert.True(t, alloc.Lines[0].QuantityTaken.Equal(dec("30")))
	assert.True(t, alloc.Lines[1].QuantityTaken.Equal(dec("10")))
}

func TestAllocate_EqualDates_InsertionOrderTieBreak(t *testing.T) {
	// GIVEN: Two lots received on the same date
	// WHEN: Allocating across them
	// THEN: The lots are consumed in the order the store returned them

	entries := []ledger.StockEntry{
		lot("e-first", "10", "10", "1.0", jan),
		lot("e-second", "10", "10", "2.0", jan),
	}

	alloc, err := ledger.Allocate("prod-1", entries, dec("15"))
	require.NoError(t, err)

	require.Len(t, alloc.Lines, 2)
	assert.Equal(t, "e-first", alloc.Lines[0].EntryID)
	assert.True(t, alloc.Lines[0].QuantityTaken.Equal(dec("10")))
	assert.Equal(t, "e-second", alloc.Lines[1].EntryID)
	assert.True(t, alloc.Lines[1].QuantityTaken.Equal(dec("5")))
}

// =============================================================================
// QUANTITY CONSERVATION AND COST EXACTNESS
// =============================================================================

func TestAllocate_LineQuantitiesSumToRequest(t *testing.T) {
	// GIVEN: Several lots with fractional quantities
	// WHEN: Allocating a fractional amount
	// THEN: The line quantities sum exactly to the request

	entries := []ledger.StockEntry{
		lot("e-1", "12.5", "12.5", "3.33", jan),
		lot("e-2", "7.25", "7.25", "3.40", feb),
		lot("e-3", "100", "100", "3.10", mar),
	}

	requested := dec("19.8")
	alloc, err := ledger.Allocate("prod-1", entries, requested)
	require.NoError(t, err)

	sum := decimal.Zero
	cost := decimal.Zero
	for _, l := range alloc.Lines {
		sum = sum.Add(l.QuantityTaken)
		cost = cost.Add(l.QuantityTaken.Mul(l.UnitPrice))
	}
	assert.True(t, sum.Equal(requested), "sum %s != requested %s", sum, requested)
	assert.True(t, cost.Equal(alloc.TotalCost), "line cost sum %s != total %s", cost, alloc.TotalCost)
}

func TestAllocate_ExactlyAvailable(t *testing.T) {
	// GIVEN: Total remaining stock of 130
	// WHEN: Allocating exactly 130
	// THEN: Allocation succeeds and exhausts every lot

	entries := []ledger.StockEntry{
		lot("e-jan", "80", "80", "5.0", jan),
		lot("e-feb", "50", "50", "5.5", feb),
	}

	alloc, err := ledger.Allocate("prod-1", entries, dec("130"))
	require.NoError(t, err)
	require.Len(t, alloc.Lines, 2)
	assert.True(t, alloc.TotalCost.Equal(dec("675")))
}

// =============================================================================
// INSUFFICIENT STOCK
// =============================================================================

func TestAllocate_InsufficientStock(t *testing.T) {
	// GIVEN: 130 units available in total
	// WHEN: Allocating 131
	// THEN: InsufficientStockError carries requested and available amounts

	entries := []ledger.StockEntry{
		lot("e-jan", "80", "80", "5.0", jan),
		lot("e-feb", "50", "50", "5.5", feb),
	}

	_, err := ledger.Allocate("prod-1", entries, dec("131"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	var insufficientErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	assert.True(t, insufficientErr.Requested.Equal(dec("131")))
	assert.True(t, insufficientErr.Available.Equal(dec("130")))
}

func TestAllocate_NoLots(t *testing.T) {
	// GIVEN: A product with no lots at all
	// WHEN: Allocating anything
	// THEN: Insufficient stock with zero available

	_, err := ledger.Allocate("prod-1", nil, dec("1"))
	require.Error(t, err)

	var insufficientErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	assert.True(t, insufficientErr.Available.IsZero())
}
