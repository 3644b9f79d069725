/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates products, orders and
	stock movements that demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-catalog:  Products only, nothing sold yet
	busy-pickup-day: Orders in every fulfillment state
	pre-order-wave: Pre-order heavy, with an early fulfillment and a reversal

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create products via the catalog
 3. Create orders via checkout (auto-deduction included)
 4. Optionally record deliveries, reversals, cancellations

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-pickup-day"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context, writeJSON/writeError
  - server.go: Route registration
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/catalog"
	"github.com/warp/fulfillment-engine/fulfillment"
	"github.com/warp/fulfillment-engine/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-catalog",
		Name:        "Fresh Catalog",
		Description: "Products only: in-stock, pre-order, and one running low",
	},
	{
		ID:          "busy-pickup-day",
		Name:        "Busy Pickup Day",
		Description: "Orders in every state: pending, partial, ready, completed, cancelled",
	},
	{
		ID:          "pre-order-wave",
		Name:        "Pre-Order Wave",
		Description: "Pre-order heavy day with an early fulfillment and a reversal",
	},
}

// resettable is implemented by stores that can wipe all data. Demo-only.
type resettable interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads the named scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	store, ok := h.Store.(resettable)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}

	ctx := r.Context()
	if err := store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-catalog":
		err = loadFreshCatalogScenario(ctx, h)
	case "busy-pickup-day":
		err = loadBusyPickupDayScenario(ctx, h)
	case "pre-order-wave":
		err = loadPreOrderWaveScenario(ctx, h)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoProduct struct {
	name      string
	price     string
	cost      string
	stock     int
	threshold int
	preOrder  bool
}

func (h *Handler) seedProducts(ctx context.Context, now time.Time, defs []demoProduct) (map[string]ledger.ProductID, error) {
	ids := make(map[string]ledger.ProductID, len(defs))
	for _, d := range defs {
		in := catalog.NewProductInput{
			Name:              d.name,
			UnitPrice:         decimal.RequireFromString(d.price),
			InitialStock:      d.stock,
			LowStockThreshold: d.threshold,
			PreOrder:          d.preOrder,
		}
		if d.cost != "" {
			in.CostPrice = decimal.NullDecimal{
				Decimal: decimal.RequireFromString(d.cost), Valid: true,
			}
		}
		p, err := h.Catalog.CreateProduct(ctx, in, now)
		if err != nil {
			return nil, err
		}
		ids[d.name] = p.ID
	}
	return ids, nil
}

func loadFreshCatalogScenario(ctx context.Context, h *Handler) error {
	now := h.Now()
	_, err := h.seedProducts(ctx, now, []demoProduct{
		{name: "Frozen Gyoza (24pc)", price: "8.90", cost: "5.20", stock: 40, threshold: 10},
		{name: "Hokkaido Scallops 500g", price: "32.00", cost: "24.50", stock: 12, threshold: 5},
		{name: "Wagyu Slices 200g", price: "28.80", cost: "21.00", stock: 3, threshold: 5},
		{name: "Mooncake Gift Box", price: "58.00", cost: "36.00", stock: 0, preOrder: true},
	})
	return err
}

func loadBusyPickupDayScenario(ctx context.Context, h *Handler) error {
	now := h.Now()
	ids, err := h.seedProducts(ctx, now, []demoProduct{
		{name: "Frozen Gyoza (24pc)", price: "8.90", cost: "5.20", stock: 60, threshold: 10},
		{name: "Hokkaido Scallops 500g", price: "32.00", cost: "24.50", stock: 30, threshold: 5},
		{name: "Mooncake Gift Box", price: "58.00", cost: "36.00", stock: 0, preOrder: true},
	})
	if err != nil {
		return err
	}

	checkout := func(customer string, lines ...ledger.LineRequest) (*ledger.Order, error) {
		order, _, err := h.Fulfillment.CreateOrder(ctx, fulfillment.NewOrderRequest{
			CustomerName:   customer,
			DeliveryMethod: "pickup",
			Lines:          lines,
		}, now)
		return order, err
	}

	// Ready for pickup: in-stock lines, fully deducted at checkout.
	if _, err := checkout("Mrs. Tan",
		ledger.LineRequest{ProductID: ids["Frozen Gyoza (24pc)"], Quantity: 4},
		ledger.LineRequest{ProductID: ids["Hokkaido Scallops 500g"], Quantity: 1},
	); err != nil {
		return err
	}

	// Completed: fully delivered then packed.
	completed, err := checkout("Mr. Lim",
		ledger.LineRequest{ProductID: ids["Frozen Gyoza (24pc)"], Quantity: 2})
	if err != nil {
		return err
	}
	if _, err := h.Fulfillment.CompletePacking(ctx, completed.Code); err != nil {
		return err
	}

	// Pending: pre-order line, nothing delivered yet.
	if _, err := checkout("Ms. Wong",
		ledger.LineRequest{ProductID: ids["Mooncake Gift Box"], Quantity: 3}); err != nil {
		return err
	}

	// Partial: mixed order where only the in-stock half has shipped.
	if _, err := checkout("Mdm. Lee",
		ledger.LineRequest{ProductID: ids["Hokkaido Scallops 500g"], Quantity: 2},
		ledger.LineRequest{ProductID: ids["Mooncake Gift Box"], Quantity: 1},
	); err != nil {
		return err
	}

	// Cancelled: checkout then cancel, stock restored.
	cancelled, err := checkout("Mr. Goh",
		ledger.LineRequest{ProductID: ids["Frozen Gyoza (24pc)"], Quantity: 6})
	if err != nil {
		return err
	}
	if _, err := h.Fulfillment.CancelOrder(ctx, cancelled.Code, "demo", now); err != nil {
		return err
	}
	return nil
}

func loadPreOrderWaveScenario(ctx context.Context, h *Handler) error {
	now := h.Now()
	ids, err := h.seedProducts(ctx, now, []demoProduct{
		{name: "Mooncake Gift Box", price: "58.00", cost: "36.00", stock: 10, preOrder: true},
		{name: "CNY Hamper", price: "128.00", cost: "88.00", stock: 0, preOrder: true},
	})
	if err != nil {
		return err
	}

	order, _, err := h.Fulfillment.CreateOrder(ctx, fulfillment.NewOrderRequest{
		CustomerName:   "Mrs. Tan",
		DeliveryMethod: "delivery",
		Lines: []ledger.LineRequest{
			{ProductID: ids["Mooncake Gift Box"], Quantity: 4},
			{ProductID: ids["CNY Hamper"], Quantity: 2},
		},
	}, now)
	if err != nil {
		return err
	}

	// Early fulfillment of the boxes we already hold.
	results, err := h.Fulfillment.ManualEarlyDeduct(ctx, order.Code,
		[]ledger.LineRequest{{ProductID: ids["Mooncake Gift Box"], Quantity: 4}},
		"demo", now)
	if err != nil {
		return err
	}

	// One box turned out damaged; reverse and re-fulfill three.
	if len(results) > 0 && results[0].OK() {
		if _, err := h.Fulfillment.ReverseMovement(ctx, results[0].Movement.ID, "demo", now); err != nil {
			return err
		}
		if _, err := h.Fulfillment.ManualEarlyDeduct(ctx, order.Code,
			[]ledger.LineRequest{{ProductID: ids["Mooncake Gift Box"], Quantity: 3}},
			"demo", now); err != nil {
			return err
		}
	}
	return nil
}
