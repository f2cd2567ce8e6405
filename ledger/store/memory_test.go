package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/ledger/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testDate = time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)

func entry(id, productID, quantity string, date time.Time) ledger.StockEntry {
	return ledger.StockEntry{
		ID:                id,
		ProductID:         productID,
		Quantity:          dec(quantity),
		RemainingQuantity: dec(quantity),
		UnitPrice:         dec("1.0"),
		EntryDate:         date,
		CreatedAt:         time.Now().UTC(),
	}
}

// =============================================================================
// FIFO ORDERING
// =============================================================================

func TestMemory_ListEntries_DateOrder(t *testing.T) {
	// GIVEN: Lots inserted out of date order
	// WHEN: Listing by product
	// THEN: Lots come back in entry-date order

	m := store.NewMemory()
	ctx := context.Background()

	later := testDate.AddDate(0, 1, 0)
	require.NoError(t, m.InsertEntry(ctx, entry("e-2", "p-1", "10", later)))
	require.NoError(t, m.InsertEntry(ctx, entry("e-1", "p-1", "10", testDate)))

	entries, err := m.ListEntriesByProduct(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e-1", entries[0].ID)
	assert.Equal(t, "e-2", entries[1].ID)
}

func TestMemory_ListEntries_InsertionOrderTieBreak(t *testing.T) {
	// GIVEN: Three lots sharing the same entry date
	// WHEN: Listing by product
	// THEN: Insertion order decides the FIFO position

	m := store.NewMemory()
	ctx := context.Background()

	for _, id := range []string{"e-a", "e-b", "e-c"} {
		require.NoError(t, m.InsertEntry(ctx, entry(id, "p-1", "10", testDate)))
	}

	entries, err := m.ListEntriesByProduct(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e-a", entries[0].ID)
	assert.Equal(t, "e-b", entries[1].ID)
	assert.Equal(t, "e-c", entries[2].ID)
}

// =============================================================================
// ENTRY DELTA BOUNDS
// =============================================================================

func TestMemory_ApplyEntryDelta_Bounds(t *testing.T) {
	// GIVEN: A lot of 10 units
	// WHEN: Applying deltas that would leave remaining outside [0, quantity]
	// THEN: The write is rejected with InvariantViolationError

	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertEntry(ctx, entry("e-1", "p-1", "10", testDate)))

	// Consume 4, leaving 6.
	require.NoError(t, m.ApplyEntryDelta(ctx, "e-1", dec("-4")))

	// Consuming 7 more would go negative.
	err := m.ApplyEntryDelta(ctx, "e-1", dec("-7"))
	var invErr *ledger.InvariantViolationError
	assert.ErrorAs(t, err, &invErr)

	// Restoring 5 would exceed the original quantity.
	err = m.ApplyEntryDelta(ctx, "e-1", dec("5"))
	assert.ErrorAs(t, err, &invErr)

	// The failed writes left remaining untouched.
	e, err := m.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, e.RemainingQuantity.Equal(dec("6")))
}

// =============================================================================
// JOURNAL
// =============================================================================

func TestMemory_RetractTransaction_ByReferenceAndType(t *testing.T) {
	// GIVEN: Entry and output rows sharing a product
	// WHEN: Retracting by (reference, type)
	// THEN: Only the matching row disappears

	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendTransaction(ctx, ledger.Transaction{
		ID: "t-1", Type: ledger.TransactionTypeEntry, ProductID: "p-1",
		Quantity: dec("10"), Date: testDate, ReferenceID: "e-1",
	}))
	require.NoError(t, m.AppendTransaction(ctx, ledger.Transaction{
		ID: "t-2", Type: ledger.TransactionTypeOutput, ProductID: "p-1",
		Quantity: dec("5"), Date: testDate, ReferenceID: "o-1",
	}))

	require.NoError(t, m.RetractTransaction(ctx, "e-1", ledger.TransactionTypeEntry))

	txs, err := m.ListTransactionsByProduct(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "o-1", txs[0].ReferenceID)

	err = m.RetractTransaction(ctx, "e-1", ledger.TransactionTypeEntry)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// TRANSACTION ROLLBACK
// =============================================================================

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: A store with one lot
	// WHEN: A transaction mutates several collections and then fails
	// THEN: Every mutation is rolled back

	tm := store.NewTxMemory()
	ctx := context.Background()

	require.NoError(t, tm.InsertProduct(ctx, ledger.Product{
		ID: "p-1", Name: "Beans", SKU: "SKU-1",
		CurrentStock: dec("10"), AverageCost: dec("5"),
	}))
	require.NoError(t, tm.InsertEntry(ctx, entry("e-1", "p-1", "10", testDate)))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(st ledger.Store) error {
		if err := st.ApplyEntryDelta(ctx, "e-1", dec("-4")); err != nil {
			return err
		}
		if err := st.InsertOutput(ctx, ledger.StockOutput{
			ID: "o-1", ProductID: "p-1",
			TotalQuantity: dec("4"), TotalCost: dec("20"),
			OutputDate: testDate, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	e, err := tm.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, e.RemainingQuantity.Equal(dec("10")), "delta rolled back")

	_, err = tm.GetOutput(ctx, "o-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound, "insert rolled back")
}

func TestTxMemory_CommitOnSuccess(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: A transaction succeeds
	// THEN: Its writes are visible afterwards

	tm := store.NewTxMemory()
	ctx := context.Background()

	err := tm.WithTx(ctx, func(st ledger.Store) error {
		return st.InsertProduct(ctx, ledger.Product{
			ID: "p-1", Name: "Beans", SKU: "SKU-1",
			CurrentStock: dec("0"), AverageCost: dec("0"),
		})
	})
	require.NoError(t, err)

	p, err := tm.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Beans", p.Name)
}

// =============================================================================
// RESET
// =============================================================================

func TestMemory_Reset(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.InsertProduct(ctx, ledger.Product{ID: "p-1", Name: "Beans", SKU: "SKU-1"}))
	require.NoError(t, m.InsertEntry(ctx, entry("e-1", "p-1", "10", testDate)))

	require.NoError(t, m.Reset(ctx))

	products, err := m.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)

	_, err = m.GetEntry(ctx, "e-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
