/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the stock-ledger engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the ledger
  service. No ledger rule lives here: handlers parse, call, and render.

ENDPOINTS:
  Products:
    GET    /api/products                   List all products
    POST   /api/products                   Register product
    GET    /api/products/{id}              Get product (derived stock/cost)
    PUT    /api/products/{id}              Edit display fields
    DELETE /api/products/{id}              Delete (blocked while history exists)
    POST   /api/products/{id}/revalue      Repair/backfill revaluation

  Stock entries (lots):
    GET    /api/products/{id}/entries      List lots in FIFO order
    POST   /api/products/{id}/entries      Receive a lot
    PUT    /api/entries/{id}               Edit a lot (consumption-guarded)
    DELETE /api/entries/{id}               Delete an untouched lot

  Stock outputs (withdrawals):
    GET    /api/products/{id}/outputs      List withdrawals, newest first
    POST   /api/products/{id}/outputs      Withdraw by FIFO consumption
    PUT    /api/outputs/{id}               Edit metadata only
    PUT    /api/outputs/{id}/quantity      Replace quantity atomically
    DELETE /api/outputs/{id}               Reverse and delete
    GET    /api/outputs/{id}/lines         FIFO allocation detail

  Journal:
    GET    /api/transactions               All journal rows
    GET    /api/products/{id}/transactions Product's journal rows

  Scenarios:
    GET    /api/scenarios                  List demo datasets
    POST   /api/scenarios/load             Load a demo dataset

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unparseable input
  - 404: Record not found
  - 409: Conflict (insufficient stock, consumed lots, duplicate SKU,
         product with history)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo dataset loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes every collection. Implemented by the storage adapters
// and used only by the scenario loader.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Svc   *ledger.Service
	Reset Resetter

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the ledger service.
func NewHandler(svc *ledger.Service, reset Resetter) *Handler {
	return &Handler{Svc: svc, Reset: reset}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Svc.ListProducts(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns a single product with its derived stock and cost.
// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.Svc.GetProduct(r.Context(), id)
	if err != nil {
		writeLedgerError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// CreateProduct registers a new product.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Svc.CreateProduct(r.Context(), req.Name, req.SKU, req.Description, req.Units)
	if err != nil {
		writeLedgerError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// UpdateProduct edits a product's display fields.
// PUT /api/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Svc.UpdateProduct(r.Context(), id, req.Name, req.SKU, req.Description, req.Units)
	if err != nil {
		writeLedgerError(w, "Failed to update product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// DeleteProduct removes a product without ledger history.
// DELETE /api/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Svc.DeleteProduct(r.Context(), id); err != nil {
		writeLedgerError(w, "Failed to delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevalueProduct recomputes a product's derived fields from its lots.
// POST /api/products/{id}/revalue
func (h *Handler) RevalueProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.Svc.Revalue(r.Context(), id)
	if err != nil {
		writeLedgerError(w, "Failed to revalue product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// =============================================================================
// STOCK ENTRY HANDLERS
// =============================================================================

// ListEntries returns a product's lots in FIFO order.
// GET /api/products/{id}/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	if _, err := h.Svc.GetProduct(r.Context(), productID); err != nil {
		writeLedgerError(w, "Failed to get product", err)
		return
	}

	entries, err := h.Svc.EntriesForProduct(r.Context(), productID)
	if err != nil {
		writeLedgerError(w, "Failed to list entries", err)
		return
	}

	dtos := make([]StockEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEntry receives a lot of stock for a product.
// POST /api/products/{id}/entries
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit_price", err)
		return
	}
	entryDate, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry_date format (use YYYY-MM-DD)", err)
		return
	}

	entry, err := h.Svc.AddEntry(r.Context(), productID, quantity, unitPrice, entryDate, req.Notes)
	if err != nil {
		writeLedgerError(w, "Failed to add entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// UpdateEntry edits a lot. Quantity can shrink only to the consumed
// amount; violations come back as 409.
// PUT /api/entries/{id}
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var patch ledger.EntryPatch
	if req.Quantity != nil {
		q, err := decimal.NewFromString(*req.Quantity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quantity", err)
			return
		}
		patch.Quantity = &q
	}
	if req.UnitPrice != nil {
		p, err := decimal.NewFromString(*req.UnitPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unit_price", err)
			return
		}
		patch.UnitPrice = &p
	}
	if req.EntryDate != nil {
		d, err := time.Parse("2006-01-02", *req.EntryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid entry_date format (use YYYY-MM-DD)", err)
			return
		}
		patch.EntryDate = &d
	}
	if req.Notes != nil {
		patch.Notes = req.Notes
	}

	entry, err := h.Svc.UpdateEntry(r.Context(), id, patch)
	if err != nil {
		writeLedgerError(w, "Failed to update entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// DeleteEntry removes an untouched lot.
// DELETE /api/entries/{id}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Svc.DeleteEntry(r.Context(), id); err != nil {
		writeLedgerError(w, "Failed to delete entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STOCK OUTPUT HANDLERS
// =============================================================================

// ListOutputs returns a product's withdrawals, newest first.
// GET /api/products/{id}/outputs
func (h *Handler) ListOutputs(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	if _, err := h.Svc.GetProduct(r.Context(), productID); err != nil {
		writeLedgerError(w, "Failed to get product", err)
		return
	}

	outputs, err := h.Svc.OutputsForProduct(r.Context(), productID)
	if err != nil {
		writeLedgerError(w, "Failed to list outputs", err)
		return
	}

	dtos := make([]StockOutputDTO, len(outputs))
	for i, o := range outputs {
		dtos[i] = toOutputDTO(o, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOutput withdraws stock from a product by FIFO lot consumption.
// POST /api/products/{id}/outputs
func (h *Handler) CreateOutput(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	var req CreateOutputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}
	outputDate, err := time.Parse("2006-01-02", req.OutputDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid output_date format (use YYYY-MM-DD)", err)
		return
	}

	output, err := h.Svc.Withdraw(r.Context(), productID, quantity, outputDate, req.ReferenceNumber, req.Notes)
	if err != nil {
		writeLedgerError(w, "Failed to withdraw stock", err)
		return
	}

	lines, err := h.Svc.LinesForOutput(r.Context(), output.ID)
	if err != nil {
		writeLedgerError(w, "Failed to load allocation detail", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutputDTO(output, lines))
}

// UpdateOutput edits a withdrawal's metadata fields.
// PUT /api/outputs/{id}
func (h *Handler) UpdateOutput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateOutputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var patch ledger.OutputPatch
	if req.OutputDate != nil {
		d, err := time.Parse("2006-01-02", *req.OutputDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid output_date format (use YYYY-MM-DD)", err)
			return
		}
		patch.OutputDate = &d
	}
	if req.ReferenceNumber != nil {
		patch.ReferenceNumber = req.ReferenceNumber
	}
	if req.Notes != nil {
		patch.Notes = req.Notes
	}

	output, err := h.Svc.UpdateOutput(r.Context(), id, patch)
	if err != nil {
		writeLedgerError(w, "Failed to update output", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutputDTO(output, nil))
}

// ChangeOutputQuantity replaces a withdrawal's quantity. The old
// allocation is reversed and a fresh FIFO allocation is computed in one
// storage transaction; on insufficient stock the original survives.
// PUT /api/outputs/{id}/quantity
func (h *Handler) ChangeOutputQuantity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ChangeOutputQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}

	output, err := h.Svc.ChangeWithdrawalQuantity(r.Context(), id, quantity)
	if err != nil {
		writeLedgerError(w, "Failed to change withdrawal quantity", err)
		return
	}

	lines, err := h.Svc.LinesForOutput(r.Context(), output.ID)
	if err != nil {
		writeLedgerError(w, "Failed to load allocation detail", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutputDTO(output, lines))
}

// DeleteOutput reverses a withdrawal and removes it.
// DELETE /api/outputs/{id}
func (h *Handler) DeleteOutput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Svc.DeleteOutput(r.Context(), id); err != nil {
		writeLedgerError(w, "Failed to delete output", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOutputLines returns the FIFO allocation detail of a withdrawal.
// GET /api/outputs/{id}/lines
func (h *Handler) ListOutputLines(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lines, err := h.Svc.LinesForOutput(r.Context(), id)
	if err != nil {
		writeLedgerError(w, "Failed to list output lines", err)
		return
	}

	dtos := make([]StockOutputLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// JOURNAL HANDLERS
// =============================================================================

// ListTransactions returns every journal row, newest first.
// GET /api/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Svc.AllTransactions(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// ListProductTransactions returns a product's journal rows, newest first.
// GET /api/products/{id}/transactions
func (h *Handler) ListProductTransactions(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	if _, err := h.Svc.GetProduct(r.Context(), productID); err != nil {
		writeLedgerError(w, "Failed to get product", err)
		return
	}

	txs, err := h.Svc.TransactionsForProduct(r.Context(), productID)
	if err != nil {
		writeLedgerError(w, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:           p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		Description:  p.Description,
		Units:        p.Units,
		CurrentStock: p.CurrentStock.String(),
		AverageCost:  p.AverageCost.String(),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e ledger.StockEntry) StockEntryDTO {
	return StockEntryDTO{
		ID:                e.ID,
		ProductID:         e.ProductID,
		Quantity:          e.Quantity.String(),
		RemainingQuantity: e.RemainingQuantity.String(),
		UnitPrice:         e.UnitPrice.String(),
		State:             string(e.State()),
		EntryDate:         e.EntryDate.Format("2006-01-02"),
		Notes:             e.Notes,
		CreatedAt:         e.CreatedAt.Format(time.RFC3339),
	}
}

func toOutputDTO(o ledger.StockOutput, lines []ledger.StockOutputLine) StockOutputDTO {
	dto := StockOutputDTO{
		ID:              o.ID,
		ProductID:       o.ProductID,
		TotalQuantity:   o.TotalQuantity.String(),
		TotalCost:       o.TotalCost.String(),
		ReferenceNumber: o.ReferenceNumber,
		OutputDate:      o.OutputDate.Format("2006-01-02"),
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
	for _, l := range lines {
		dto.Lines = append(dto.Lines, toLineDTO(l))
	}
	return dto
}

func toLineDTO(l ledger.StockOutputLine) StockOutputLineDTO {
	return StockOutputLineDTO{
		ID:           l.ID,
		StockEntryID: l.StockEntryID,
		Quantity:     l.Quantity.String(),
		UnitPrice:    l.UnitPrice.String(),
		LineCost:     l.Quantity.Mul(l.UnitPrice).String(),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = TransactionDTO{
			ID:          t.ID,
			Type:        string(t.Type),
			ProductID:   t.ProductID,
			Quantity:    t.Quantity.String(),
			Date:        t.Date.Format("2006-01-02"),
			ReferenceID: t.ReferenceID,
			Notes:       t.Notes,
		}
	}
	return dtos
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger errors onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusForError(err), message, err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrPartiallyConsumed),
		errors.Is(err, ledger.ErrConsumedQuantity),
		errors.Is(err, ledger.ErrDuplicateSKU),
		errors.Is(err, ledger.ErrDuplicateID),
		errors.Is(err, ledger.ErrProductHasHistory):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
