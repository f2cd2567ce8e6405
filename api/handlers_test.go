package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/api"
	"github.com/warp/inventory-ledger/ledger"
	memstore "github.com/warp/inventory-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memstore.NewTxMemory()
	svc := ledger.NewService(store, zerolog.Nop())
	handler := api.NewHandler(svc, store)
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body: %s", raw)
	return v
}

func createProduct(t *testing.T, srv *httptest.Server, name, sku string) api.ProductDTO {
	t.Helper()
	resp, raw := doJSON(t, srv, http.MethodPost, "/api/products", api.CreateProductRequest{
		Name: name,
		SKU:  sku,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	return decode[api.ProductDTO](t, raw)
}

func addEntry(t *testing.T, srv *httptest.Server, productID, qty, price, date string) api.StockEntryDTO {
	t.Helper()
	resp, raw := doJSON(t, srv, http.MethodPost, "/api/products/"+productID+"/entries", api.CreateEntryRequest{
		Quantity:  qty,
		UnitPrice: price,
		EntryDate: date,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	return decode[api.StockEntryDTO](t, raw)
}

// =============================================================================
// PRODUCT ENDPOINTS
// =============================================================================

func TestAPI_ProductLifecycle(t *testing.T) {
	// GIVEN: A running server
	// WHEN: Creating, reading, updating, and deleting a product
	// THEN: Each step returns the expected status and body

	srv := newTestServer(t)

	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	assert.Equal(t, "0", p.CurrentStock)
	assert.Equal(t, "0", p.AverageCost)

	resp, raw := doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ProductDTO](t, raw)
	assert.Equal(t, "Arabica Beans", got.Name)

	resp, raw = doJSON(t, srv, http.MethodPut, "/api/products/"+p.ID, api.UpdateProductRequest{
		Name: "Arabica Beans (1kg)",
		SKU:  "COF-001",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[api.ProductDTO](t, raw)
	assert.Equal(t, "Arabica Beans (1kg)", got.Name)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/api/products/"+p.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DuplicateSKU_Conflict(t *testing.T) {
	srv := newTestServer(t)
	createProduct(t, srv, "First", "SKU-1")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/products", api.CreateProductRequest{
		Name: "Second",
		SKU:  "SKU-1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_CreateProduct_Validation(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/products", api.CreateProductRequest{SKU: "SKU-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing name")

	resp, _ = doJSON(t, srv, http.MethodPost, "/api/products", api.CreateProductRequest{Name: "X"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing sku")
}

func TestAPI_DeleteProduct_WithHistory_Conflict(t *testing.T) {
	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")

	resp, _ := doJSON(t, srv, http.MethodDelete, "/api/products/"+p.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// =============================================================================
// ENTRY AND VALUATION ENDPOINTS
// =============================================================================

func TestAPI_EntriesDriveValuation(t *testing.T) {
	// GIVEN: 80 @ 5.0 and 50 @ 5.5 received over the API
	// WHEN: Reading the product
	// THEN: Stock is 130 and average cost is 675/130

	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")
	addEntry(t, srv, p.ID, "50", "5.5", "2025-02-03")

	resp, raw := doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ProductDTO](t, raw)
	assert.Equal(t, "130", got.CurrentStock)
	assert.Equal(t, "5.1923076923076923", got.AverageCost)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID+"/entries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]api.StockEntryDTO](t, raw)
	require.Len(t, entries, 2)
	assert.Equal(t, "open", entries[0].State)
	assert.Equal(t, "2025-01-10", entries[0].EntryDate)
}

func TestAPI_CreateEntry_BadDecimal(t *testing.T) {
	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/products/"+p.ID+"/entries", api.CreateEntryRequest{
		Quantity:  "not-a-number",
		UnitPrice: "5.0",
		EntryDate: "2025-01-10",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_UpdateEntry_ConsumedGuard(t *testing.T) {
	// GIVEN: A lot with 20 of 80 consumed
	// WHEN: Shrinking below the consumed amount over the API
	// THEN: 409 Conflict

	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	e := addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/products/"+p.ID+"/outputs", api.CreateOutputRequest{
		Quantity:   "20",
		OutputDate: "2025-02-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	qty := "15"
	resp, _ = doJSON(t, srv, http.MethodPut, "/api/entries/"+e.ID, api.UpdateEntryRequest{Quantity: &qty})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_DeleteEntry_PartiallyConsumed_Conflict(t *testing.T) {
	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	e := addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/products/"+p.ID+"/outputs", api.CreateOutputRequest{
		Quantity:   "20",
		OutputDate: "2025-02-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/api/entries/"+e.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// =============================================================================
// OUTPUT ENDPOINTS
// =============================================================================

func TestAPI_WithdrawAcrossLots(t *testing.T) {
	// GIVEN: 80 @ 5.0 and 50 @ 5.5
	// WHEN: Withdrawing 100 over the API
	// THEN: Total cost is 510 and the response carries both lines

	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")
	addEntry(t, srv, p.ID, "50", "5.5", "2025-02-03")

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/products/"+p.ID+"/outputs", api.CreateOutputRequest{
		Quantity:   "100",
		OutputDate: "2025-02-15",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	out := decode[api.StockOutputDTO](t, raw)
	assert.Equal(t, "510", out.TotalCost)
	require.Len(t, out.Lines, 2)
	assert.Equal(t, "80", out.Lines[0].Quantity)
	assert.Equal(t, "400", out.Lines[0].LineCost)
	assert.Equal(t, "20", out.Lines[1].Quantity)
	assert.Equal(t, "110", out.Lines[1].LineCost)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/outputs/"+out.ID+"/lines", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines := decode[[]api.StockOutputLineDTO](t, raw)
	assert.Len(t, lines, 2)
}

func TestAPI_Withdraw_InsufficientStock_Conflict(t *testing.T) {
	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/products/"+p.ID+"/outputs", api.CreateOutputRequest{
		Quantity:   "81",
		OutputDate: "2025-02-01",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	errResp := decode[api.ErrorResponse](t, raw)
	assert.Contains(t, errResp.Details, "insufficient stock")
}

func TestAPI_DeleteOutput_RestoresStock(t *testing.T) {
	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/products/"+p.ID+"/outputs", api.CreateOutputRequest{
		Quantity:   "30",
		OutputDate: "2025-02-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[api.StockOutputDTO](t, raw)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/api/outputs/"+out.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ProductDTO](t, raw)
	assert.Equal(t, "80", got.CurrentStock)
}

func TestAPI_ChangeOutputQuantity(t *testing.T) {
	// GIVEN: A withdrawal of 100
	// WHEN: Replacing the quantity with 20, then with an impossible 500
	// THEN: The first succeeds keeping the id; the second returns 409 and
	//       the withdrawal stays at 20

	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")
	addEntry(t, srv, p.ID, "50", "5.5", "2025-02-03")

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/products/"+p.ID+"/outputs", api.CreateOutputRequest{
		Quantity:   "100",
		OutputDate: "2025-02-15",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[api.StockOutputDTO](t, raw)

	resp, raw = doJSON(t, srv, http.MethodPut, "/api/outputs/"+out.ID+"/quantity",
		api.ChangeOutputQuantityRequest{Quantity: "20"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	changed := decode[api.StockOutputDTO](t, raw)
	assert.Equal(t, out.ID, changed.ID)
	assert.Equal(t, "20", changed.TotalQuantity)
	assert.Equal(t, "100", changed.TotalCost)

	resp, _ = doJSON(t, srv, http.MethodPut, "/api/outputs/"+out.ID+"/quantity",
		api.ChangeOutputQuantityRequest{Quantity: "500"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID+"/outputs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outputs := decode[[]api.StockOutputDTO](t, raw)
	require.Len(t, outputs, 1)
	assert.Equal(t, "20", outputs[0].TotalQuantity)
}

// =============================================================================
// JOURNAL ENDPOINTS
// =============================================================================

func TestAPI_Transactions(t *testing.T) {
	srv := newTestServer(t)
	p := createProduct(t, srv, "Arabica Beans", "COF-001")
	addEntry(t, srv, p.ID, "80", "5.0", "2025-01-10")

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/products/"+p.ID+"/outputs", api.CreateOutputRequest{
		Quantity:   "20",
		OutputDate: "2025-02-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID+"/transactions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	txs := decode[[]api.TransactionDTO](t, raw)
	require.Len(t, txs, 2)
	assert.Equal(t, "output", txs[0].Type, "newest first")
	assert.Equal(t, "entry", txs[1].Type)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[[]api.TransactionDTO](t, raw)
	assert.Len(t, all, 2)
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

func TestAPI_Scenarios(t *testing.T) {
	// GIVEN: A running server
	// WHEN: Loading the FIFO walkthrough scenario
	// THEN: The dataset is replayed through the engine and reset clears it

	srv := newTestServer(t)

	resp, raw := doJSON(t, srv, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]api.ScenarioDTO](t, raw)
	assert.NotEmpty(t, list)

	resp, raw = doJSON(t, srv, http.MethodPost, "/api/scenarios/load",
		api.LoadScenarioRequest{ScenarioID: "fifo-walkthrough"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	products := decode[[]api.ProductDTO](t, raw)
	require.Len(t, products, 1)
	// 80 + 50 received, 100 withdrawn.
	assert.Equal(t, "30", products[0].CurrentStock)
	assert.Equal(t, "5.5", products[0].AverageCost)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	current := decode[map[string]string](t, raw)
	assert.Equal(t, "fifo-walkthrough", current["scenario_id"])

	resp, _ = doJSON(t, srv, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	products = decode[[]api.ProductDTO](t, raw)
	assert.Empty(t, products)

	resp, _ = doJSON(t, srv, http.MethodPost, "/api/scenarios/load",
		api.LoadScenarioRequest{ScenarioID: "does-not-exist"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// MISC
// =============================================================================

func TestAPI_UnknownRecord_NotFound(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/api/products/nope",
		"/api/outputs/nope/lines",
	} {
		resp, _ := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, fmt.Sprintf("GET %s", path))
	}
}
