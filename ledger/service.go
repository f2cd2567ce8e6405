/*
service.go - Ledger service: the single owner of all ledger mutations

PURPOSE:
  Orchestrates entry creation, withdrawals, updates, and deletions across
  the four collections, enforcing every cross-entity invariant:
  - Lots cannot shrink below their consumed amount or be deleted once touched
  - Withdrawals consume lots strictly in FIFO order via the allocation engine
  - Deleting a withdrawal restores exactly what it consumed
  - Product stock/cost fields are refreshed after every lot-affecting change
  - Every entry/output creation leaves a journal row; deletion retracts it

CONCURRENCY:
  Operations on a given product are serialized with a per-product mutex.
  The allocate-then-apply sequence in Withdraw and the restore sequence in
  DeleteOutput are not individually atomic against concurrent lot mutation,
  so a stale read of RemainingQuantity could otherwise invalidate a
  computed split. Cross-product operations run concurrently; they touch
  disjoint state.

ATOMICITY:
  Every multi-step operation runs inside one Store.WithTx boundary: either
  fully applied or fully not applied. ChangeWithdrawalQuantity in
  particular wraps its delete+recreate in a single transaction, so an
  insufficient-stock failure on the recreate rolls the delete back and the
  original withdrawal survives verbatim.

SEE ALSO:
  - allocation.go: The pure FIFO split this service applies
  - valuation.go: Derived-field refresh after each mutation
  - journal.go: Entry/output event documentation
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the only component permitted to mutate the ledger collections.
type Service struct {
	store   TxStore
	journal Journal
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a ledger service over the given transactional store.
func NewService(store TxStore, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockProduct serializes ledger operations per product.
func (s *Service) lockProduct(productID string) func() {
	s.mu.Lock()
	l, ok := s.locks[productID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[productID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// =============================================================================
// PRODUCT REGISTRY
// =============================================================================

// CreateProduct registers a product with zero stock and zero average cost.
func (s *Service) CreateProduct(ctx context.Context, name, sku, description string, units *string) (Product, error) {
	if name == "" {
		return Product{}, &ValidationError{Field: "name", Message: "required"}
	}
	if sku == "" {
		return Product{}, &ValidationError{Field: "sku", Message: "required"}
	}

	if _, err := s.store.GetProductBySKU(ctx, sku); err == nil {
		return Product{}, ErrDuplicateSKU
	} else if !IsNotFound(err) {
		return Product{}, err
	}

	now := time.Now().UTC()
	p := Product{
		ID:           uuid.NewString(),
		Name:         name,
		SKU:          sku,
		Description:  description,
		Units:        units,
		CurrentStock: decimal.Zero,
		AverageCost:  decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertProduct(ctx, p); err != nil {
		return Product{}, err
	}

	s.log.Info().Str("product_id", p.ID).Str("sku", sku).Msg("product created")
	return p, nil
}

// UpdateProduct changes a product's display fields. Derived stock/cost
// fields are untouched; only the valuation aggregator writes those.
func (s *Service) UpdateProduct(ctx context.Context, id, name, sku, description string, units *string) (Product, error) {
	if name == "" {
		return Product{}, &ValidationError{Field: "name", Message: "required"}
	}
	if sku == "" {
		return Product{}, &ValidationError{Field: "sku", Message: "required"}
	}

	unlock := s.lockProduct(id)
	defer unlock()

	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}

	if other, err := s.store.GetProductBySKU(ctx, sku); err == nil && other.ID != id {
		return Product{}, ErrDuplicateSKU
	} else if err != nil && !IsNotFound(err) {
		return Product{}, err
	}

	p.Name = name
	p.SKU = sku
	p.Description = description
	p.Units = units
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// DeleteProduct removes a product. Fails with ErrProductHasHistory while
// the product still owns lots or journal rows.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	unlock := s.lockProduct(id)
	defer unlock()

	if _, err := s.store.GetProduct(ctx, id); err != nil {
		return err
	}

	entries, err := s.store.ListEntriesByProduct(ctx, id)
	if err != nil {
		return err
	}
	txs, err := s.store.ListTransactionsByProduct(ctx, id)
	if err != nil {
		return err
	}
	if len(entries) > 0 || len(txs) > 0 {
		return ErrProductHasHistory
	}

	if err := s.store.RemoveProduct(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("product_id", id).Msg("product deleted")
	return nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	return s.store.GetProduct(ctx, id)
}

// ListProducts returns all products ordered by name.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}

// =============================================================================
// STOCK ENTRIES (LOTS)
// =============================================================================

// AddEntry receives a lot of stock: quantity at unitPrice on entryDate.
// The lot starts untouched (RemainingQuantity == Quantity), a journal row
// is appended, and the product is revalued.
func (s *Service) AddEntry(ctx context.Context, productID string, quantity, unitPrice decimal.Decimal, entryDate time.Time, notes *string) (StockEntry, error) {
	if !quantity.IsPositive() {
		return StockEntry{}, &ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if unitPrice.IsNegative() {
		return StockEntry{}, &ValidationError{Field: "unitPrice", Message: "must not be negative"}
	}
	if entryDate.IsZero() {
		return StockEntry{}, &ValidationError{Field: "entryDate", Message: "required"}
	}

	unlock := s.lockProduct(productID)
	defer unlock()

	entry := StockEntry{
		ID:                uuid.NewString(),
		ProductID:         productID,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		UnitPrice:         unitPrice,
		EntryDate:         entryDate,
		Notes:             notes,
		CreatedAt:         time.Now().UTC(),
	}

	err := s.store.WithTx(ctx, func(st Store) error {
		if _, err := st.GetProduct(ctx, productID); err != nil {
			return err
		}
		if err := st.InsertEntry(ctx, entry); err != nil {
			return err
		}
		if err := s.journal.Record(ctx, st, TransactionTypeEntry, productID, quantity, entryDate, entry.ID, notes); err != nil {
			return err
		}
		_, err := Revalue(ctx, st, productID)
		return err
	})
	if err != nil {
		return StockEntry{}, err
	}

	s.log.Info().
		Str("product_id", productID).
		Str("entry_id", entry.ID).
		Str("quantity", quantity.String()).
		Str("unit_price", unitPrice.String()).
		Msg("stock entry added")
	return entry, nil
}

// EntryPatch names the lot fields an update may change.
type EntryPatch struct {
	Quantity  *decimal.Decimal
	UnitPrice *decimal.Decimal
	EntryDate *time.Time
	Notes     *string
}

// UpdateEntry edits a lot. The original quantity may only shrink down to
// the amount already consumed; RemainingQuantity is recomputed so that
// consumed stock is preserved. Revalues on success.
func (s *Service) UpdateEntry(ctx context.Context, entryID string, patch EntryPatch) (StockEntry, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return StockEntry{}, err
	}

	unlock := s.lockProduct(entry.ProductID)
	defer unlock()

	var updated StockEntry
	err = s.store.WithTx(ctx, func(st Store) error {
		e, err := st.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}

		if patch.Quantity != nil {
			newQty := *patch.Quantity
			if !newQty.IsPositive() {
				return &ValidationError{Field: "quantity", Message: "must be positive"}
			}
			consumed := e.Consumed()
			if newQty.LessThan(consumed) {
				return &ConsumedQuantityError{EntryID: entryID, Consumed: consumed, Requested: newQty}
			}
			e.Quantity = newQty
			e.RemainingQuantity = newQty.Sub(consumed)
		}
		if patch.UnitPrice != nil {
			if patch.UnitPrice.IsNegative() {
				return &ValidationError{Field: "unitPrice", Message: "must not be negative"}
			}
			e.UnitPrice = *patch.UnitPrice
		}
		if patch.EntryDate != nil {
			if patch.EntryDate.IsZero() {
				return &ValidationError{Field: "entryDate", Message: "required"}
			}
			e.EntryDate = *patch.EntryDate
		}
		if patch.Notes != nil {
			e.Notes = patch.Notes
		}

		if err := st.UpdateEntry(ctx, e); err != nil {
			return err
		}
		if _, err := Revalue(ctx, st, e.ProductID); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return StockEntry{}, err
	}

	s.log.Debug().Str("entry_id", entryID).Msg("stock entry updated")
	return updated, nil
}

// DeleteEntry removes a lot. Only an untouched lot (RemainingQuantity ==
// Quantity) may be deleted; its journal row is retracted and the product
// revalued.
func (s *Service) DeleteEntry(ctx context.Context, entryID string) error {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}

	unlock := s.lockProduct(entry.ProductID)
	defer unlock()

	err = s.store.WithTx(ctx, func(st Store) error {
		e, err := st.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if e.State() != LotOpen {
			return &PartiallyConsumedError{EntryID: entryID, Remaining: e.RemainingQuantity, Quantity: e.Quantity}
		}
		if err := st.RemoveEntry(ctx, entryID); err != nil {
			return err
		}
		if err := s.journal.Retract(ctx, st, entryID, TransactionTypeEntry); err != nil {
			return err
		}
		_, err = Revalue(ctx, st, e.ProductID)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("entry_id", entryID).Str("product_id", entry.ProductID).Msg("stock entry deleted")
	return nil
}

// EntriesForProduct returns a product's lots in FIFO order.
func (s *Service) EntriesForProduct(ctx context.Context, productID string) ([]StockEntry, error) {
	return s.store.ListEntriesByProduct(ctx, productID)
}

// =============================================================================
// STOCK OUTPUTS (WITHDRAWALS)
// =============================================================================

// Withdraw removes quantity from a product's stock by FIFO lot consumption.
// The allocation is computed as a dry run, then output, lines, lot deltas,
// journal row, and revaluation are applied atomically. On insufficient
// stock nothing is mutated.
func (s *Service) Withdraw(ctx context.Context, productID string, quantity decimal.Decimal, outputDate time.Time, referenceNumber, notes *string) (StockOutput, error) {
	if !quantity.IsPositive() {
		return StockOutput{}, &ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if outputDate.IsZero() {
		return StockOutput{}, &ValidationError{Field: "outputDate", Message: "required"}
	}

	unlock := s.lockProduct(productID)
	defer unlock()

	var output StockOutput
	err := s.store.WithTx(ctx, func(st Store) error {
		if _, err := st.GetProduct(ctx, productID); err != nil {
			return err
		}

		out, err := s.createOutput(ctx, st, uuid.NewString(), productID, quantity, outputDate, referenceNumber, notes)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	if err != nil {
		return StockOutput{}, err
	}

	s.log.Info().
		Str("product_id", productID).
		Str("output_id", output.ID).
		Str("quantity", quantity.String()).
		Str("total_cost", output.TotalCost.String()).
		Msg("stock withdrawn")
	return output, nil
}

// createOutput runs the allocate-then-apply sequence inside an open
// transaction. Shared by Withdraw and ChangeWithdrawalQuantity.
func (s *Service) createOutput(ctx context.Context, st Store, outputID, productID string, quantity decimal.Decimal, outputDate time.Time, referenceNumber, notes *string) (StockOutput, error) {
	entries, err := st.ListEntriesByProduct(ctx, productID)
	if err != nil {
		return StockOutput{}, err
	}

	alloc, err := Allocate(productID, entries, quantity)
	if err != nil {
		return StockOutput{}, err
	}

	output := StockOutput{
		ID:              outputID,
		ProductID:       productID,
		TotalQuantity:   quantity,
		TotalCost:       alloc.TotalCost,
		ReferenceNumber: referenceNumber,
		OutputDate:      outputDate,
		Notes:           notes,
		CreatedAt:       time.Now().UTC(),
	}
	if err := st.InsertOutput(ctx, output); err != nil {
		return StockOutput{}, err
	}

	lines := make([]StockOutputLine, len(alloc.Lines))
	for i, l := range alloc.Lines {
		lines[i] = StockOutputLine{
			ID:            uuid.NewString(),
			StockOutputID: outputID,
			StockEntryID:  l.EntryID,
			Quantity:      l.QuantityTaken,
			UnitPrice:     l.UnitPrice,
		}
	}
	if err := st.InsertLines(ctx, lines); err != nil {
		return StockOutput{}, err
	}

	for _, l := range alloc.Lines {
		if err := st.ApplyEntryDelta(ctx, l.EntryID, l.QuantityTaken.Neg()); err != nil {
			return StockOutput{}, err
		}
	}

	if err := s.journal.Record(ctx, st, TransactionTypeOutput, productID, quantity, outputDate, outputID, notes); err != nil {
		return StockOutput{}, err
	}
	if _, err := Revalue(ctx, st, productID); err != nil {
		return StockOutput{}, err
	}
	return output, nil
}

// OutputPatch names the withdrawal metadata an update may change.
// TotalQuantity/TotalCost/allocation are never patched; use
// ChangeWithdrawalQuantity instead.
type OutputPatch struct {
	OutputDate      *time.Time
	ReferenceNumber *string
	Notes           *string
}

// UpdateOutput edits a withdrawal's metadata fields only.
func (s *Service) UpdateOutput(ctx context.Context, outputID string, patch OutputPatch) (StockOutput, error) {
	out, err := s.store.GetOutput(ctx, outputID)
	if err != nil {
		return StockOutput{}, err
	}

	unlock := s.lockProduct(out.ProductID)
	defer unlock()

	out, err = s.store.GetOutput(ctx, outputID)
	if err != nil {
		return StockOutput{}, err
	}

	if patch.OutputDate != nil {
		if patch.OutputDate.IsZero() {
			return StockOutput{}, &ValidationError{Field: "outputDate", Message: "required"}
		}
		out.OutputDate = *patch.OutputDate
	}
	if patch.ReferenceNumber != nil {
		out.ReferenceNumber = patch.ReferenceNumber
	}
	if patch.Notes != nil {
		out.Notes = patch.Notes
	}

	if err := s.store.UpdateOutput(ctx, out); err != nil {
		return StockOutput{}, err
	}
	return out, nil
}

// DeleteOutput reverses a withdrawal: every allocation line's quantity is
// restored onto its source lot, then lines, output, and journal row are
// removed and the product revalued. The restore is exact - lots are
// otherwise untouched during the output's lifetime under per-product
// serialization, so summing restored deltas always equals the original
// allocation.
func (s *Service) DeleteOutput(ctx context.Context, outputID string) error {
	out, err := s.store.GetOutput(ctx, outputID)
	if err != nil {
		return err
	}

	unlock := s.lockProduct(out.ProductID)
	defer unlock()

	err = s.store.WithTx(ctx, func(st Store) error {
		return s.deleteOutputLocked(ctx, st, outputID)
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("output_id", outputID).Str("product_id", out.ProductID).Msg("stock withdrawal deleted, inventory restored")
	return nil
}

// deleteOutputLocked reverses and removes an output inside an open
// transaction, then revalues the product.
func (s *Service) deleteOutputLocked(ctx context.Context, st Store, outputID string) error {
	out, err := st.GetOutput(ctx, outputID)
	if err != nil {
		return err
	}
	lines, err := st.ListLinesByOutput(ctx, outputID)
	if err != nil {
		return err
	}

	for _, l := range lines {
		if err := st.ApplyEntryDelta(ctx, l.StockEntryID, l.Quantity); err != nil {
			return err
		}
	}

	if err := st.RemoveLinesByOutput(ctx, outputID); err != nil {
		return err
	}
	if err := st.RemoveOutput(ctx, outputID); err != nil {
		return err
	}
	if err := s.journal.Retract(ctx, st, outputID, TransactionTypeOutput); err != nil {
		return err
	}
	_, err = Revalue(ctx, st, out.ProductID)
	return err
}

// ChangeWithdrawalQuantity replaces a withdrawal with one for newQuantity,
// reusing the original id and metadata. The delete and recreate run in a
// single storage transaction: if the new quantity cannot be covered, the
// whole operation rolls back and the original withdrawal survives
// untouched.
func (s *Service) ChangeWithdrawalQuantity(ctx context.Context, outputID string, newQuantity decimal.Decimal) (StockOutput, error) {
	if !newQuantity.IsPositive() {
		return StockOutput{}, &ValidationError{Field: "quantity", Message: "must be positive"}
	}

	orig, err := s.store.GetOutput(ctx, outputID)
	if err != nil {
		return StockOutput{}, err
	}

	unlock := s.lockProduct(orig.ProductID)
	defer unlock()

	var output StockOutput
	err = s.store.WithTx(ctx, func(st Store) error {
		o, err := st.GetOutput(ctx, outputID)
		if err != nil {
			return err
		}

		if err := s.deleteOutputLocked(ctx, st, outputID); err != nil {
			return err
		}

		out, err := s.createOutput(ctx, st, o.ID, o.ProductID, newQuantity, o.OutputDate, o.ReferenceNumber, o.Notes)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	if err != nil {
		return StockOutput{}, err
	}

	s.log.Info().
		Str("output_id", outputID).
		Str("new_quantity", newQuantity.String()).
		Msg("withdrawal quantity changed")
	return output, nil
}

// OutputsForProduct returns a product's withdrawals, newest first.
func (s *Service) OutputsForProduct(ctx context.Context, productID string) ([]StockOutput, error) {
	return s.store.ListOutputsByProduct(ctx, productID)
}

// LinesForOutput returns the FIFO allocation detail of a withdrawal.
func (s *Service) LinesForOutput(ctx context.Context, outputID string) ([]StockOutputLine, error) {
	if _, err := s.store.GetOutput(ctx, outputID); err != nil {
		return nil, err
	}
	return s.store.ListLinesByOutput(ctx, outputID)
}

// =============================================================================
// JOURNAL READS + REPAIR
// =============================================================================

// TransactionsForProduct returns a product's journal rows, newest first.
func (s *Service) TransactionsForProduct(ctx context.Context, productID string) ([]Transaction, error) {
	return s.store.ListTransactionsByProduct(ctx, productID)
}

// AllTransactions returns every journal row, newest first.
func (s *Service) AllTransactions(ctx context.Context) ([]Transaction, error) {
	return s.store.ListTransactions(ctx)
}

// Revalue recomputes a product's derived fields from its lots. Normal
// operation never needs this - every mutation revalues already - but it is
// exposed for repair and backfill tooling.
func (s *Service) Revalue(ctx context.Context, productID string) (Product, error) {
	unlock := s.lockProduct(productID)
	defer unlock()

	var p Product
	err := s.store.WithTx(ctx, func(st Store) error {
		var err error
		p, err = Revalue(ctx, st, productID)
		return err
	})
	return p, err
}
