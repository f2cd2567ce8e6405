/*
scenarios.go - Demo dataset loaders

PURPOSE:
  Provides ready-made datasets so the API can be explored without
  hand-crafting products and lots. Loading a scenario wipes the database
  and replays the dataset through the ledger service, so every derived
  field, allocation line, and journal row is produced by the real engine
  rather than seeded directly.

SCENARIOS:
  empty        Clean database, no records
  warehouse    Three products, multi-lot receipts, mixed withdrawals
  fifo-walkthrough  The classic two-lot example: 80 @ 5.0 + 50 @ 5.5,
               then a withdrawal of 100 crossing the lot boundary

SEE ALSO:
  - handlers.go: Shared response helpers
  - server.go: Route wiring
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioEntry struct {
	Quantity  string
	UnitPrice string
	Date      string
	Notes     string
}

type scenarioOutput struct {
	Quantity  string
	Date      string
	Reference string
}

type scenarioProduct struct {
	Name        string
	SKU         string
	Description string
	Units       string
	Entries     []scenarioEntry
	Outputs     []scenarioOutput
}

type scenario struct {
	ID          string
	Name        string
	Description string
	Products    []scenarioProduct
}

var scenarios = []scenario{
	{
		ID:          "empty",
		Name:        "Empty Database",
		Description: "Clean slate with no products or movements.",
	},
	{
		ID:          "fifo-walkthrough",
		Name:        "FIFO Walkthrough",
		Description: "Two lots at different prices and one withdrawal crossing the lot boundary.",
		Products: []scenarioProduct{
			{
				Name:        "Arabica Beans",
				SKU:         "COF-001",
				Description: "Single-origin arabica, 1kg bags",
				Units:       "kg",
				Entries: []scenarioEntry{
					{Quantity: "80", UnitPrice: "5.0", Date: "2025-01-10", Notes: "January shipment"},
					{Quantity: "50", UnitPrice: "5.5", Date: "2025-02-03", Notes: "February shipment"},
				},
				Outputs: []scenarioOutput{
					{Quantity: "100", Date: "2025-02-15", Reference: "SO-1001"},
				},
			},
		},
	},
	{
		ID:          "warehouse",
		Name:        "Small Warehouse",
		Description: "Three products with layered receipts and a mix of withdrawals.",
		Products: []scenarioProduct{
			{
				Name:        "Copper Wire Spool",
				SKU:         "ELC-114",
				Description: "2.5mm insulated copper, 100m spools",
				Units:       "spool",
				Entries: []scenarioEntry{
					{Quantity: "40", UnitPrice: "18.75", Date: "2025-03-01"},
					{Quantity: "25", UnitPrice: "19.40", Date: "2025-03-20"},
					{Quantity: "60", UnitPrice: "17.90", Date: "2025-04-02"},
				},
				Outputs: []scenarioOutput{
					{Quantity: "55", Date: "2025-04-10", Reference: "WO-2204"},
					{Quantity: "12", Date: "2025-04-18", Reference: "WO-2219"},
				},
			},
			{
				Name:        "Hex Bolts M8",
				SKU:         "FST-008",
				Description: "Stainless M8x40, boxes of 100",
				Units:       "box",
				Entries: []scenarioEntry{
					{Quantity: "200", UnitPrice: "6.20", Date: "2025-02-11"},
					{Quantity: "150", UnitPrice: "6.45", Date: "2025-03-05"},
				},
				Outputs: []scenarioOutput{
					{Quantity: "180", Date: "2025-03-28", Reference: "WO-2180"},
				},
			},
			{
				Name:        "Pine Board 2x4",
				SKU:         "LBR-240",
				Description: "Untreated pine, 2.4m lengths",
				Units:       "pcs",
				Entries: []scenarioEntry{
					{Quantity: "500", UnitPrice: "3.10", Date: "2025-01-22"},
				},
			},
		},
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns all available demo datasets.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the id of the last loaded dataset.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario wipes the database and replays the selected dataset
// through the ledger service.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var selected *scenario
	for i := range scenarios {
		if scenarios[i].ID == req.ScenarioID {
			selected = &scenarios[i]
			break
		}
	}
	if selected == nil {
		writeError(w, http.StatusNotFound, "Unknown scenario", nil)
		return
	}

	if err := h.loadScenario(r.Context(), selected); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = selected.ID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": selected.ID})
}

// ResetDatabase wipes every collection.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Reset.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// loadScenario replays a dataset through the service so every record is
// produced by the real allocation and valuation path.
func (h *Handler) loadScenario(ctx context.Context, sc *scenario) error {
	if err := h.Reset.Reset(ctx); err != nil {
		return err
	}

	for _, sp := range sc.Products {
		units := sp.Units
		var unitsPtr *string
		if units != "" {
			unitsPtr = &units
		}

		p, err := h.Svc.CreateProduct(ctx, sp.Name, sp.SKU, sp.Description, unitsPtr)
		if err != nil {
			return err
		}

		for _, se := range sp.Entries {
			qty := decimal.RequireFromString(se.Quantity)
			price := decimal.RequireFromString(se.UnitPrice)
			date, err := time.Parse("2006-01-02", se.Date)
			if err != nil {
				return err
			}
			var notes *string
			if se.Notes != "" {
				n := se.Notes
				notes = &n
			}
			if _, err := h.Svc.AddEntry(ctx, p.ID, qty, price, date, notes); err != nil {
				return err
			}
		}

		for _, so := range sp.Outputs {
			qty := decimal.RequireFromString(so.Quantity)
			date, err := time.Parse("2006-01-02", so.Date)
			if err != nil {
				return err
			}
			var ref *string
			if so.Reference != "" {
				rn := so.Reference
				ref = &rn
			}
			if _, err := h.Svc.Withdraw(ctx, p.ID, qty, date, ref, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
