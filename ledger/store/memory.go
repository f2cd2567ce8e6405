// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	products map[string]ledger.Product
	entries  map[string]ledger.StockEntry
	outputs  map[string]ledger.StockOutput
	lines    map[string][]ledger.StockOutputLine // keyed by output id
	journal  []ledger.Transaction

	// entrySeq preserves insertion order for the FIFO tie-break on equal
	// entry dates.
	entrySeq map[string]int
	nextSeq  int
}

func NewMemory() *Memory {
	return &Memory{
		products: make(map[string]ledger.Product),
		entries:  make(map[string]ledger.StockEntry),
		outputs:  make(map[string]ledger.StockOutput),
		lines:    make(map[string][]ledger.StockOutputLine),
		entrySeq: make(map[string]int),
	}
}

// =============================================================================
// PRODUCT STORE
// =============================================================================

func (m *Memory) InsertProduct(_ context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[p.ID]; ok {
		return ledger.ErrDuplicateID
	}
	m.products[p.ID] = p
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id string) (ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return ledger.Product{}, ledger.ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetProductBySKU(_ context.Context, sku string) (ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return ledger.Product{}, ledger.ErrNotFound
}

func (m *Memory) ListProducts(_ context.Context) ([]ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Product, 0, len(m.products))
	for _, p := range m.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (m *Memory) UpdateProduct(_ context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[p.ID]; !ok {
		return ledger.ErrNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *Memory) RemoveProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

// =============================================================================
// ENTRY STORE (LOTS)
// =============================================================================

func (m *Memory) InsertEntry(_ context.Context, e ledger.StockEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.ID]; ok {
		return ledger.ErrDuplicateID
	}
	m.entries[e.ID] = e
	m.entrySeq[e.ID] = m.nextSeq
	m.nextSeq++
	return nil
}

func (m *Memory) GetEntry(_ context.Context, id string) (ledger.StockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return ledger.StockEntry{}, ledger.ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListEntriesByProduct(_ context.Context, productID string) ([]ledger.StockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.StockEntry
	for _, e := range m.entries {
		if e.ProductID == productID {
			result = append(result, e)
		}
	}
	// EntryDate ascending, insertion order as stable tie-break.
	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryDate.Equal(result[j].EntryDate) {
			return m.entrySeq[result[i].ID] < m.entrySeq[result[j].ID]
		}
		return result[i].EntryDate.Before(result[j].EntryDate)
	})
	return result, nil
}

func (m *Memory) UpdateEntry(_ context.Context, e ledger.StockEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.ID]; !ok {
		return ledger.ErrNotFound
	}
	m.entries[e.ID] = e
	return nil
}

func (m *Memory) ApplyEntryDelta(_ context.Context, entryID string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[entryID]
	if !ok {
		return ledger.ErrNotFound
	}

	result := e.RemainingQuantity.Add(delta)
	if result.IsNegative() || result.GreaterThan(e.Quantity) {
		return &ledger.InvariantViolationError{EntryID: entryID, Result: result, Max: e.Quantity}
	}

	e.RemainingQuantity = result
	m.entries[entryID] = e
	return nil
}

func (m *Memory) RemoveEntry(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[entryID]; !ok {
		return ledger.ErrNotFound
	}
	delete(m.entries, entryID)
	delete(m.entrySeq, entryID)
	return nil
}

// =============================================================================
// OUTPUT STORE
// =============================================================================

func (m *Memory) InsertOutput(_ context.Context, o ledger.StockOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.outputs[o.ID]; ok {
		return ledger.ErrDuplicateID
	}
	m.outputs[o.ID] = o
	return nil
}

func (m *Memory) GetOutput(_ context.Context, id string) (ledger.StockOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.outputs[id]
	if !ok {
		return ledger.StockOutput{}, ledger.ErrNotFound
	}
	return o, nil
}

func (m *Memory) ListOutputsByProduct(_ context.Context, productID string) ([]ledger.StockOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.StockOutput
	for _, o := range m.outputs {
		if o.ProductID == productID {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OutputDate.After(result[j].OutputDate)
	})
	return result, nil
}

func (m *Memory) UpdateOutput(_ context.Context, o ledger.StockOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.outputs[o.ID]; !ok {
		return ledger.ErrNotFound
	}
	m.outputs[o.ID] = o
	return nil
}

func (m *Memory) RemoveOutput(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.outputs[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(m.outputs, id)
	return nil
}

func (m *Memory) InsertLines(_ context.Context, lines []ledger.StockOutputLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range lines {
		m.lines[l.StockOutputID] = append(m.lines[l.StockOutputID], l)
	}
	return nil
}

func (m *Memory) ListLinesByOutput(_ context.Context, outputID string) ([]ledger.StockOutputLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.StockOutputLine, len(m.lines[outputID]))
	copy(result, m.lines[outputID])
	return result, nil
}

func (m *Memory) RemoveLinesByOutput(_ context.Context, outputID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lines, outputID)
	return nil
}

// =============================================================================
// JOURNAL STORE
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, t ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.journal {
		if existing.ID == t.ID {
			return ledger.ErrDuplicateID
		}
	}
	m.journal = append(m.journal, t)
	return nil
}

func (m *Memory) RetractTransaction(_ context.Context, referenceID string, typ ledger.TransactionType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, t := range m.journal {
		if t.ReferenceID == referenceID && t.Type == typ {
			m.journal = append(m.journal[:i], m.journal[i+1:]...)
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (m *Memory) ListTransactionsByProduct(_ context.Context, productID string) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Transaction
	for _, t := range m.journal {
		if t.ProductID == productID {
			result = append(result, t)
		}
	}
	sortTransactionsNewestFirst(result)
	return result, nil
}

func (m *Memory) ListTransactions(_ context.Context) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Transaction, len(m.journal))
	copy(result, m.journal)
	sortTransactionsNewestFirst(result)
	return result, nil
}

func sortTransactionsNewestFirst(txs []ledger.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
}

// Reset wipes every collection.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.products = make(map[string]ledger.Product)
	m.entries = make(map[string]ledger.StockEntry)
	m.outputs = make(map[string]ledger.StockOutput)
	m.lines = make(map[string][]ledger.StockOutputLine)
	m.journal = nil
	m.entrySeq = make(map[string]int)
	m.nextSeq = 0
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on
// error. Nested WithTx is not supported.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		products: make(map[string]ledger.Product, len(tm.products)),
		entries:  make(map[string]ledger.StockEntry, len(tm.entries)),
		outputs:  make(map[string]ledger.StockOutput, len(tm.outputs)),
		lines:    make(map[string][]ledger.StockOutputLine, len(tm.lines)),
		journal:  append([]ledger.Transaction{}, tm.journal...),
		entrySeq: make(map[string]int, len(tm.entrySeq)),
		nextSeq:  tm.nextSeq,
	}
	for k, v := range tm.products {
		s.products[k] = v
	}
	for k, v := range tm.entries {
		s.entries[k] = v
	}
	for k, v := range tm.outputs {
		s.outputs[k] = v
	}
	for k, v := range tm.lines {
		s.lines[k] = append([]ledger.StockOutputLine{}, v...)
	}
	for k, v := range tm.entrySeq {
		s.entrySeq[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.products = s.products
	tm.entries = s.entries
	tm.outputs = s.outputs
	tm.lines = s.lines
	tm.journal = s.journal
	tm.entrySeq = s.entrySeq
	tm.nextSeq = s.nextSeq
}

type memorySnapshot struct {
	products map[string]ledger.Product
	entries  map[string]ledger.StockEntry
	outputs  map[string]ledger.StockOutput
	lines    map[string][]ledger.StockOutputLine
	journal  []ledger.Transaction
	entrySeq map[string]int
	nextSeq  int
}
