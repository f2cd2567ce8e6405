/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal ledger model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES AND COSTS:
  Decimal fields travel as JSON strings ("5.1923076923076923") so clients
  never round-trip them through float64. Handlers parse them with
  decimal.NewFromString and reject anything that does not parse.

DATES:
  Business dates (entry_date, output_date) use YYYY-MM-DD; record
  timestamps (created_at, updated_at) use RFC3339.

SEE ALSO:
  - handlers.go: Uses these types
  - scenarios.go: ScenarioDTO, LoadScenarioRequest
*/
package api

// =============================================================================
// PRODUCT TYPES
// =============================================================================

// ProductDTO represents a product in API responses. CurrentStock and
// AverageCost are derived server-side; requests never carry them.
type ProductDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Description  string  `json:"description,omitempty"`
	Units        *string `json:"units,omitempty"`
	CurrentStock string  `json:"current_stock"`
	AverageCost  string  `json:"average_cost"`
	CreatedAt    string  `json:"created_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

// CreateProductRequest is the request to register a product.
type CreateProductRequest struct {
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	Description string  `json:"description,omitempty"`
	Units       *string `json:"units,omitempty"`
}

// UpdateProductRequest is the request to edit a product's display fields.
type UpdateProductRequest struct {
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	Description string  `json:"description,omitempty"`
	Units       *string `json:"units,omitempty"`
}

// =============================================================================
// STOCK ENTRY TYPES
// =============================================================================

// StockEntryDTO represents a lot in API responses.
type StockEntryDTO struct {
	ID                string  `json:"id"`
	ProductID         string  `json:"product_id"`
	Quantity          string  `json:"quantity"`
	RemainingQuantity string  `json:"remaining_quantity"`
	UnitPrice         string  `json:"unit_price"`
	State             string  `json:"state"`
	EntryDate         string  `json:"entry_date"`
	Notes             *string `json:"notes,omitempty"`
	CreatedAt         string  `json:"created_at,omitempty"`
}

// CreateEntryRequest is the request to receive a lot of stock.
type CreateEntryRequest struct {
	Quantity  string  `json:"quantity"`
	UnitPrice string  `json:"unit_price"`
	EntryDate string  `json:"entry_date"`
	Notes     *string `json:"notes,omitempty"`
}

// UpdateEntryRequest is the request to edit a lot. Absent fields keep
// their stored value.
type UpdateEntryRequest struct {
	Quantity  *string `json:"quantity,omitempty"`
	UnitPrice *string `json:"unit_price,omitempty"`
	EntryDate *string `json:"entry_date,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// =============================================================================
// STOCK OUTPUT TYPES
// =============================================================================

// StockOutputDTO represents a withdrawal in API responses. TotalCost is
// the exact sum of the allocation lines, frozen at creation.
type StockOutputDTO struct {
	ID              string               `json:"id"`
	ProductID       string               `json:"product_id"`
	TotalQuantity   string               `json:"total_quantity"`
	TotalCost       string               `json:"total_cost"`
	ReferenceNumber *string              `json:"reference_number,omitempty"`
	OutputDate      string               `json:"output_date"`
	Notes           *string              `json:"notes,omitempty"`
	CreatedAt       string               `json:"created_at,omitempty"`
	Lines           []StockOutputLineDTO `json:"lines,omitempty"`
}

// StockOutputLineDTO shows how much a withdrawal drew from one lot.
type StockOutputLineDTO struct {
	ID           string `json:"id"`
	StockEntryID string `json:"stock_entry_id"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	LineCost     string `json:"line_cost"`
}

// CreateOutputRequest is the request to withdraw stock.
type CreateOutputRequest struct {
	Quantity        string  `json:"quantity"`
	OutputDate      string  `json:"output_date"`
	ReferenceNumber *string `json:"reference_number,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

// UpdateOutputRequest edits withdrawal metadata. Quantity changes go
// through ChangeOutputQuantityRequest instead.
type UpdateOutputRequest struct {
	OutputDate      *string `json:"output_date,omitempty"`
	ReferenceNumber *string `json:"reference_number,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

// ChangeOutputQuantityRequest replaces a withdrawal's quantity.
type ChangeOutputQuantityRequest struct {
	Quantity string `json:"quantity"`
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// TransactionDTO represents a journal row in API responses.
type TransactionDTO struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	ProductID   string  `json:"product_id"`
	Quantity    string  `json:"quantity"`
	Date        string  `json:"date"`
	ReferenceID string  `json:"reference_id"`
	Notes       *string `json:"notes,omitempty"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo dataset to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
