/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.TxStore - the four ledger collections plus an atomic
  transaction boundary - using SQLite. In production the same patterns
  apply to PostgreSQL with only minor SQL dialect differences.

KEY TABLES:
  products:           Catalog records with derived stock totals
  stock_entries:      Lots - the FIFO source of truth
  stock_outputs:      Withdrawals with frozen total costs
  stock_output_lines: Per-lot allocation detail of each withdrawal
  transactions:       Entry/output journal rows

NUMERIC STORAGE:
  Quantities, prices, and costs are stored as TEXT holding decimal
  strings. REAL would reintroduce the floating-point drift the engine
  exists to avoid; decimal round-trips exactly through its string form.

TRANSACTIONS:
  WithTx wraps a database transaction; the ledger service routes every
  multi-step operation through it so withdraw, delete-output, and
  change-quantity land fully or not at all.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/inventory.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/inventory-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		units TEXT,
		current_stock TEXT NOT NULL,
		average_cost TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products(sku);
	CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);

	CREATE TABLE IF NOT EXISTS stock_entries (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		remaining_quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	-- FIFO hot path: lots per product in date order, insertion order
	-- (seq) as the stable tie-break.
	CREATE INDEX IF NOT EXISTS idx_entries_product_date
		ON stock_entries(product_id, entry_date, seq);

	CREATE TABLE IF NOT EXISTS stock_outputs (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		total_quantity TEXT NOT NULL,
		total_cost TEXT NOT NULL,
		reference_number TEXT,
		output_date TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outputs_product_date
		ON stock_outputs(product_id, output_date DESC);

	CREATE TABLE IF NOT EXISTS stock_output_lines (
		id TEXT PRIMARY KEY,
		stock_output_id TEXT NOT NULL,
		stock_entry_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lines_output
		ON stock_output_lines(stock_output_id, seq);
	CREATE INDEX IF NOT EXISTS idx_lines_entry
		ON stock_output_lines(stock_entry_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		tx_type TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		date TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		notes TEXT
	);

	-- At most one journal row per (reference, type) under normal operation.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id, tx_type);
	CREATE INDEX IF NOT EXISTS idx_transactions_product_date
		ON transactions(product_id, date DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// PRODUCT STORE (ledger.ProductStore interface)
// =============================================================================

func (s *Store) InsertProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertProduct(ctx, s.db, p)
}

func insertProduct(ctx context.Context, q querier, p ledger.Product) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO products
		(id, name, sku, description, units, current_stock, average_cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SKU, p.Description, nullStringPtr(p.Units),
		p.CurrentStock.String(), p.AverageCost.String(),
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "idx_products_sku") {
				return ledger.ErrDuplicateSKU
			}
			return ledger.ErrDuplicateID
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q querier, id string) (ledger.Product, error) {
	row := q.QueryRowContext(ctx, productSelect+" WHERE id = ?", id)
	return scanProduct(row)
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProductBySKU(ctx, s.db, sku)
}

func getProductBySKU(ctx context.Context, q querier, sku string) (ledger.Product, error) {
	row := q.QueryRowContext(ctx, productSelect+" WHERE sku = ?", sku)
	return scanProduct(row)
}

func (s *Store) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProducts(ctx, s.db)
}

func listProducts(ctx context.Context, q querier) ([]ledger.Product, error) {
	rows, err := q.QueryContext(ctx, productSelect+" ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []ledger.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateProduct(ctx, s.db, p)
}

func updateProduct(ctx context.Context, q querier, p ledger.Product) error {
	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET name = ?, sku = ?, description = ?, units = ?,
		    current_stock = ?, average_cost = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.SKU, p.Description, nullStringPtr(p.Units),
		p.CurrentStock.String(), p.AverageCost.String(),
		p.UpdatedAt.Format(time.RFC3339Nano), p.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateSKU
		}
		return fmt.Errorf("failed to update product: %w", err)
	}
	return requireRowAffected(res)
}

func (s *Store) RemoveProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeProduct(ctx, s.db, id)
}

func removeProduct(ctx context.Context, q querier, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return requireRowAffected(res)
}

const productSelect = `
	SELECT id, name, sku, description, units, current_stock, average_cost, created_at, updated_at
	FROM products`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (ledger.Product, error) {
	var (
		p            ledger.Product
		units        sql.NullString
		currentStock string
		averageCost  string
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Description, &units,
		&currentStock, &averageCost, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ledger.Product{}, ledger.ErrNotFound
		}
		return ledger.Product{}, fmt.Errorf("failed to scan product: %w", err)
	}

	p.Units = stringPtr(units)
	p.CurrentStock = mustDecimal(currentStock)
	p.AverageCost = mustDecimal(averageCost)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// =============================================================================
// ENTRY STORE (ledger.EntryStore interface)
// =============================================================================

func (s *Store) InsertEntry(ctx context.Context, e ledger.StockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEntry(ctx, s.db, e)
}

func insertEntry(ctx context.Context, q querier, e ledger.StockEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_entries
		(id, product_id, quantity, remaining_quantity, unit_price, entry_date, notes, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM stock_entries))`,
		e.ID, e.ProductID, e.Quantity.String(), e.RemainingQuantity.String(),
		e.UnitPrice.String(), e.EntryDate.Format(time.RFC3339Nano),
		nullStringPtr(e.Notes), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateID
		}
		return fmt.Errorf("failed to insert stock entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (ledger.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q querier, id string) (ledger.StockEntry, error) {
	row := q.QueryRowContext(ctx, entrySelect+" WHERE id = ?", id)
	return scanEntry(row)
}

func (s *Store) ListEntriesByProduct(ctx context.Context, productID string) ([]ledger.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntriesByProduct(ctx, s.db, productID)
}

func listEntriesByProduct(ctx context.Context, q querier, productID string) ([]ledger.StockEntry, error) {
	rows, err := q.QueryContext(ctx,
		entrySelect+" WHERE product_id = ? ORDER BY entry_date ASC, seq ASC", productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.StockEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) UpdateEntry(ctx context.Context, e ledger.StockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntry(ctx, s.db, e)
}

func updateEntry(ctx context.Context, q querier, e ledger.StockEntry) error {
	res, err := q.ExecContext(ctx, `
		UPDATE stock_entries
		SET quantity = ?, remaining_quantity = ?, unit_price = ?, entry_date = ?, notes = ?
		WHERE id = ?`,
		e.Quantity.String(), e.RemainingQuantity.String(), e.UnitPrice.String(),
		e.EntryDate.Format(time.RFC3339Nano), nullStringPtr(e.Notes), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock entry: %w", err)
	}
	return requireRowAffected(res)
}

func (s *Store) ApplyEntryDelta(ctx context.Context, entryID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyEntryDelta(ctx, s.db, entryID, delta)
}

func applyEntryDelta(ctx context.Context, q querier, entryID string, delta decimal.Decimal) error {
	e, err := getEntry(ctx, q, entryID)
	if err != nil {
		return err
	}

	result := e.RemainingQuantity.Add(delta)
	if result.IsNegative() || result.GreaterThan(e.Quantity) {
		return &ledger.InvariantViolationError{EntryID: entryID, Result: result, Max: e.Quantity}
	}

	res, err := q.ExecContext(ctx,
		"UPDATE stock_entries SET remaining_quantity = ? WHERE id = ?",
		result.String(), entryID)
	if err != nil {
		return fmt.Errorf("failed to apply entry delta: %w", err)
	}
	return requireRowAffected(res)
}

func (s *Store) RemoveEntry(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeEntry(ctx, s.db, entryID)
}

func removeEntry(ctx context.Context, q querier, entryID string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM stock_entries WHERE id = ?", entryID)
	if err != nil {
		return fmt.Errorf("failed to delete stock entry: %w", err)
	}
	return requireRowAffected(res)
}

const entrySelect = `
	SELECT id, product_id, quantity, remaining_quantity, unit_price, entry_date, notes, created_at
	FROM stock_entries`

func scanEntry(row rowScanner) (ledger.StockEntry, error) {
	var (
		e         ledger.StockEntry
		quantity  string
		remaining string
		unitPrice string
		entryDate string
		notes     sql.NullString
		createdAt string
	)
	err := row.Scan(&e.ID, &e.ProductID, &quantity, &remaining, &unitPrice,
		&entryDate, &notes, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ledger.StockEntry{}, ledger.ErrNotFound
		}
		return ledger.StockEntry{}, fmt.Errorf("failed to scan stock entry: %w", err)
	}

	e.Quantity = mustDecimal(quantity)
	e.RemainingQuantity = mustDecimal(remaining)
	e.UnitPrice = mustDecimal(unitPrice)
	e.EntryDate = parseTime(entryDate)
	e.Notes = stringPtr(notes)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// =============================================================================
// OUTPUT STORE (ledger.OutputStore interface)
// =============================================================================

func (s *Store) InsertOutput(ctx context.Context, o ledger.StockOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOutput(ctx, s.db, o)
}

func insertOutput(ctx context.Context, q querier, o ledger.StockOutput) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_outputs
		(id, product_id, total_quantity, total_cost, reference_number, output_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ProductID, o.TotalQuantity.String(), o.TotalCost.String(),
		nullStringPtr(o.ReferenceNumber), o.OutputDate.Format(time.RFC3339Nano),
		nullStringPtr(o.Notes), o.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateID
		}
		return fmt.Errorf("failed to insert stock output: %w", err)
	}
	return nil
}

func (s *Store) GetOutput(ctx context.Context, id string) (ledger.StockOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOutput(ctx, s.db, id)
}

func getOutput(ctx context.Context, q querier, id string) (ledger.StockOutput, error) {
	row := q.QueryRowContext(ctx, outputSelect+" WHERE id = ?", id)
	return scanOutput(row)
}

func (s *Store) ListOutputsByProduct(ctx context.Context, productID string) ([]ledger.StockOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOutputsByProduct(ctx, s.db, productID)
}

func listOutputsByProduct(ctx context.Context, q querier, productID string) ([]ledger.StockOutput, error) {
	rows, err := q.QueryContext(ctx,
		outputSelect+" WHERE product_id = ? ORDER BY output_date DESC", productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock outputs: %w", err)
	}
	defer rows.Close()

	var outputs []ledger.StockOutput
	for rows.Next() {
		o, err := scanOutput(rows)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}

func (s *Store) UpdateOutput(ctx context.Context, o ledger.StockOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateOutput(ctx, s.db, o)
}

func updateOutput(ctx context.Context, q querier, o ledger.StockOutput) error {
	res, err := q.ExecContext(ctx, `
		UPDATE stock_outputs
		SET total_quantity = ?, total_cost = ?, reference_number = ?, output_date = ?, notes = ?
		WHERE id = ?`,
		o.TotalQuantity.String(), o.TotalCost.String(), nullStringPtr(o.ReferenceNumber),
		o.OutputDate.Format(time.RFC3339Nano), nullStringPtr(o.Notes), o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock output: %w", err)
	}
	return requireRowAffected(res)
}

func (s *Store) RemoveOutput(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeOutput(ctx, s.db, id)
}

func removeOutput(ctx context.Context, q querier, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM stock_outputs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete stock output: %w", err)
	}
	return requireRowAffected(res)
}

func (s *Store) InsertLines(ctx context.Context, lines []ledger.StockOutputLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertLines(ctx, s.db, lines)
}

func insertLines(ctx context.Context, q querier, lines []ledger.StockOutputLine) error {
	for i, l := range lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO stock_output_lines
			(id, stock_output_id, stock_entry_id, quantity, unit_price, seq)
			VALUES (?, ?, ?, ?, ?, ?)`,
			l.ID, l.StockOutputID, l.StockEntryID,
			l.Quantity.String(), l.UnitPrice.String(), i,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ledger.ErrDuplicateID
			}
			return fmt.Errorf("failed to insert output line: %w", err)
		}
	}
	return nil
}

func (s *Store) ListLinesByOutput(ctx context.Context, outputID string) ([]ledger.StockOutputLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLinesByOutput(ctx, s.db, outputID)
}

func listLinesByOutput(ctx context.Context, q querier, outputID string) ([]ledger.StockOutputLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, stock_output_id, stock_entry_id, quantity, unit_price
		FROM stock_output_lines
		WHERE stock_output_id = ?
		ORDER BY seq ASC`, outputID)
	if err != nil {
		return nil, fmt.Errorf("failed to query output lines: %w", err)
	}
	defer rows.Close()

	var lines []ledger.StockOutputLine
	for rows.Next() {
		var (
			l         ledger.StockOutputLine
			quantity  string
			unitPrice string
		)
		if err := rows.Scan(&l.ID, &l.StockOutputID, &l.StockEntryID, &quantity, &unitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan output line: %w", err)
		}
		l.Quantity = mustDecimal(quantity)
		l.UnitPrice = mustDecimal(unitPrice)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) RemoveLinesByOutput(ctx context.Context, outputID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeLinesByOutput(ctx, s.db, outputID)
}

func removeLinesByOutput(ctx context.Context, q querier, outputID string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM stock_output_lines WHERE stock_output_id = ?", outputID)
	if err != nil {
		return fmt.Errorf("failed to delete output lines: %w", err)
	}
	return nil
}

const outputSelect = `
	SELECT id, product_id, total_quantity, total_cost, reference_number, output_date, notes, created_at
	FROM stock_outputs`

func scanOutput(row rowScanner) (ledger.StockOutput, error) {
	var (
		o          ledger.StockOutput
		totalQty   string
		totalCost  string
		refNumber  sql.NullString
		outputDate string
		notes      sql.NullString
		createdAt  string
	)
	err := row.Scan(&o.ID, &o.ProductID, &totalQty, &totalCost, &refNumber,
		&outputDate, &notes, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ledger.StockOutput{}, ledger.ErrNotFound
		}
		return ledger.StockOutput{}, fmt.Errorf("failed to scan stock output: %w", err)
	}

	o.TotalQuantity = mustDecimal(totalQty)
	o.TotalCost = mustDecimal(totalCost)
	o.ReferenceNumber = stringPtr(refNumber)
	o.OutputDate = parseTime(outputDate)
	o.Notes = stringPtr(notes)
	o.CreatedAt = parseTime(createdAt)
	return o, nil
}

// =============================================================================
// JOURNAL STORE (ledger.JournalStore interface)
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, t ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, t)
}

func appendTransaction(ctx context.Context, q querier, t ledger.Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, tx_type, product_id, quantity, date, reference_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), t.ProductID, t.Quantity.String(),
		t.Date.Format(time.RFC3339Nano), t.ReferenceID, nullStringPtr(t.Notes),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateID
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) RetractTransaction(ctx context.Context, referenceID string, typ ledger.TransactionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retractTransaction(ctx, s.db, referenceID, typ)
}

func retractTransaction(ctx context.Context, q querier, referenceID string, typ ledger.TransactionType) error {
	res, err := q.ExecContext(ctx,
		"DELETE FROM transactions WHERE reference_id = ? AND tx_type = ?",
		referenceID, string(typ))
	if err != nil {
		return fmt.Errorf("failed to retract transaction: %w", err)
	}
	return requireRowAffected(res)
}

func (s *Store) ListTransactionsByProduct(ctx context.Context, productID string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactions(ctx, s.db,
		transactionSelect+" WHERE product_id = ? ORDER BY date DESC", productID)
}

func (s *Store) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactions(ctx, s.db, transactionSelect+" ORDER BY date DESC")
}

const transactionSelect = `
	SELECT id, tx_type, product_id, quantity, date, reference_id, notes
	FROM transactions`

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			t        ledger.Transaction
			typ      string
			quantity string
			date     string
			notes    sql.NullString
		)
		if err := rows.Scan(&t.ID, &typ, &t.ProductID, &quantity, &date, &t.ReferenceID, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Type = ledger.TransactionType(typ)
		t.Quantity = mustDecimal(quantity)
		t.Date = parseTime(date)
		t.Notes = stringPtr(notes)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// Reset wipes every collection. Used by demo scenario loading only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"stock_output_lines", "stock_outputs", "stock_entries", "transactions", "products"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes ledger.Store calls through an open *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertProduct(ctx context.Context, p ledger.Product) error {
	return insertProduct(ctx, ts.tx, p)
}

func (ts *txStore) GetProduct(ctx context.Context, id string) (ledger.Product, error) {
	return getProduct(ctx, ts.tx, id)
}

func (ts *txStore) GetProductBySKU(ctx context.Context, sku string) (ledger.Product, error) {
	return getProductBySKU(ctx, ts.tx, sku)
}

func (ts *txStore) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	return listProducts(ctx, ts.tx)
}

func (ts *txStore) UpdateProduct(ctx context.Context, p ledger.Product) error {
	return updateProduct(ctx, ts.tx, p)
}

func (ts *txStore) RemoveProduct(ctx context.Context, id string) error {
	return removeProduct(ctx, ts.tx, id)
}

func (ts *txStore) InsertEntry(ctx context.Context, e ledger.StockEntry) error {
	return insertEntry(ctx, ts.tx, e)
}

func (ts *txStore) GetEntry(ctx context.Context, id string) (ledger.StockEntry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) ListEntriesByProduct(ctx context.Context, productID string) ([]ledger.StockEntry, error) {
	return listEntriesByProduct(ctx, ts.tx, productID)
}

func (ts *txStore) UpdateEntry(ctx context.Context, e ledger.StockEntry) error {
	return updateEntry(ctx, ts.tx, e)
}

func (ts *txStore) ApplyEntryDelta(ctx context.Context, entryID string, delta decimal.Decimal) error {
	return applyEntryDelta(ctx, ts.tx, entryID, delta)
}

func (ts *txStore) RemoveEntry(ctx context.Context, entryID string) error {
	return removeEntry(ctx, ts.tx, entryID)
}

func (ts *txStore) InsertOutput(ctx context.Context, o ledger.StockOutput) error {
	return insertOutput(ctx, ts.tx, o)
}

func (ts *txStore) GetOutput(ctx context.Context, id string) (ledger.StockOutput, error) {
	return getOutput(ctx, ts.tx, id)
}

func (ts *txStore) ListOutputsByProduct(ctx context.Context, productID string) ([]ledger.StockOutput, error) {
	return listOutputsByProduct(ctx, ts.tx, productID)
}

func (ts *txStore) UpdateOutput(ctx context.Context, o ledger.StockOutput) error {
	return updateOutput(ctx, ts.tx, o)
}

func (ts *txStore) RemoveOutput(ctx context.Context, id string) error {
	return removeOutput(ctx, ts.tx, id)
}

func (ts *txStore) InsertLines(ctx context.Context, lines []ledger.StockOutputLine) error {
	return insertLines(ctx, ts.tx, lines)
}

func (ts *txStore) ListLinesByOutput(ctx context.Context, outputID string) ([]ledger.StockOutputLine, error) {
	return listLinesByOutput(ctx, ts.tx, outputID)
}

func (ts *txStore) RemoveLinesByOutput(ctx context.Context, outputID string) error {
	return removeLinesByOutput(ctx, ts.tx, outputID)
}

func (ts *txStore) AppendTransaction(ctx context.Context, t ledger.Transaction) error {
	return appendTransaction(ctx, ts.tx, t)
}

func (ts *txStore) RetractTransaction(ctx context.Context, referenceID string, typ ledger.TransactionType) error {
	return retractTransaction(ctx, ts.tx, referenceID, typ)
}

func (ts *txStore) ListTransactionsByProduct(ctx context.Context, productID string) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, ts.tx,
		transactionSelect+" WHERE product_id = ? ORDER BY date DESC", productID)
}

func (ts *txStore) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, ts.tx, transactionSelect+" ORDER BY date DESC")
}

// =============================================================================
// HELPERS
// =============================================================================

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
