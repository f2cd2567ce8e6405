/*
store.go - Persistence interfaces for the four ledger collections

PURPOSE:
  Defines the interface between the ledger service and the database.
  Four flat keyed collections back the engine: products, stock entries
  (lots), stock outputs (+lines), and journal transactions. The storage
  layer enforces no foreign keys between them; referential discipline is
  the ledger service's job.

KEY INTERFACES:
  ProductStore: Product registry
  EntryStore:   Lot store - the FIFO source of truth
  OutputStore:  Withdrawals and their allocation lines
  JournalStore: Append/retract transaction journal
  Store:        All four together
  TxStore:      Store plus an atomic transaction boundary

ATOMICITY:
  Multi-step operations (withdraw, delete output, change withdrawal
  quantity) must land fully or not at all. TxStore.WithTx provides the
  boundary: the SQLite implementation maps it onto a database transaction,
  the memory implementation onto snapshot/restore.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - service.go: The only caller allowed to mutate these collections
  - errors.go: Error kinds returned by store operations
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRODUCT STORE - Product registry
// =============================================================================

type ProductStore interface {
	// InsertProduct adds a product. Returns ErrDuplicateID if the id exists.
	InsertProduct(ctx context.Context, p Product) error

	// GetProduct returns a product by id, or ErrNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)

	// GetProductBySKU returns the product with the given SKU, or ErrNotFound.
	GetProductBySKU(ctx context.Context, sku string) (Product, error)

	// ListProducts returns all products ordered by name.
	ListProducts(ctx context.Context) ([]Product, error)

	// UpdateProduct overwrites a product record. Returns ErrNotFound if absent.
	UpdateProduct(ctx context.Context, p Product) error

	// RemoveProduct deletes a product. Returns ErrNotFound if absent.
	RemoveProduct(ctx context.Context, id string) error
}

// =============================================================================
// ENTRY STORE - The lot store
// =============================================================================

// EntryStore holds StockEntry (lot) records. It has no side effects beyond
// the collection itself; it never cascades into product aggregates.
type EntryStore interface {
	// InsertEntry adds a lot. Returns ErrDuplicateID if the id exists.
	InsertEntry(ctx context.Context, e StockEntry) error

	// GetEntry returns a lot by id, or ErrNotFound.
	GetEntry(ctx context.Context, id string) (StockEntry, error)

	// ListEntriesByProduct returns all lots for a product, any remaining
	// quantity, ordered by EntryDate ascending with insertion order as the
	// stable tie-break. Used both for FIFO allocation and for display.
	ListEntriesByProduct(ctx context.Context, productID string) ([]StockEntry, error)

	// UpdateEntry overwrites a lot record. Returns ErrNotFound if absent.
	UpdateEntry(ctx context.Context, e StockEntry) error

	// ApplyEntryDelta adjusts RemainingQuantity by a signed delta.
	// Returns ErrNotFound if the id is absent, or an InvariantViolationError
	// if the result would leave RemainingQuantity outside [0, Quantity].
	ApplyEntryDelta(ctx context.Context, entryID string, delta decimal.Decimal) error

	// RemoveEntry deletes a lot. Returns ErrNotFound if absent.
	RemoveEntry(ctx context.Context, entryID string) error
}

// =============================================================================
// OUTPUT STORE - Withdrawals and allocation lines
// =============================================================================

type OutputStore interface {
	// InsertOutput adds a withdrawal. Returns ErrDuplicateID if the id exists.
	InsertOutput(ctx context.Context, o StockOutput) error

	// GetOutput returns a withdrawal by id, or ErrNotFound.
	GetOutput(ctx context.Context, id string) (StockOutput, error)

	// ListOutputsByProduct returns withdrawals for a product, newest first.
	ListOutputsByProduct(ctx context.Context, productID string) ([]StockOutput, error)

	// UpdateOutput overwrites a withdrawal record. Returns ErrNotFound if absent.
	UpdateOutput(ctx context.Context, o StockOutput) error

	// RemoveOutput deletes a withdrawal. Returns ErrNotFound if absent.
	RemoveOutput(ctx context.Context, id string) error

	// InsertLines adds allocation lines for an output.
	InsertLines(ctx context.Context, lines []StockOutputLine) error

	// ListLinesByOutput returns an output's allocation lines in FIFO order.
	ListLinesByOutput(ctx context.Context, outputID string) ([]StockOutputLine, error)

	// RemoveLinesByOutput deletes all lines belonging to an output.
	RemoveLinesByOutput(ctx context.Context, outputID string) error
}

// =============================================================================
// JOURNAL STORE - Transaction journal rows
// =============================================================================

type JournalStore interface {
	// AppendTransaction adds a journal row. Returns ErrDuplicateID if the id
	// exists.
	AppendTransaction(ctx context.Context, t Transaction) error

	// RetractTransaction removes the journal row documenting the given
	// reference. Compensating cleanup, not a general delete; at most one row
	// exists per (referenceID, type).
	RetractTransaction(ctx context.Context, referenceID string, typ TransactionType) error

	// ListTransactionsByProduct returns a product's journal rows, newest first.
	ListTransactionsByProduct(ctx context.Context, productID string) ([]Transaction, error)

	// ListTransactions returns all journal rows, newest first.
	ListTransactions(ctx context.Context) ([]Transaction, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store bundles the four collections behind one persistence adapter.
type Store interface {
	ProductStore
	EntryStore
	OutputStore
	JournalStore
}

// TxStore wraps Store with transaction support.
// Use this for multi-step operations that must be all-or-nothing.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
