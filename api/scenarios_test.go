/*
scenarios_test.go - Tests for the demo scenario loaders

PURPOSE:
	Each loader must leave the database in the advertised state:
	- Products exist with the right stock and flags
	- Orders sit in the expected fulfillment states
	- The movement chain replays cleanly after every loader

These double as integration tests across catalog, fulfillment and ledger.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fulfillment-engine/ledger"
)

var ctx = context.Background()

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func replayAll(t *testing.T, h *Handler) {
	t.Helper()
	agg := ledger.NewAggregator(h.Store)
	products, err := h.Store.ListProducts(ctx)
	require.NoError(t, err)
	for _, p := range products {
		movements, err := h.Store.ListByProduct(ctx, p.ID)
		require.NoError(t, err)
		if len(movements) == 0 {
			continue
		}
		replayed, err := agg.ReplayStock(ctx, p.ID)
		require.NoError(t, err, "chain broken for %s", p.Name)
		assert.Equal(t, p.StockQuantity, replayed, "stock drift for %s", p.Name)
	}
}

func TestListScenarios(t *testing.T) {
	router := NewRouter(newTestHandler())

	rec := doJSON(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	assert.Len(t, list, 3)
}

func TestLoadScenario_FreshCatalog(t *testing.T) {
	h := newTestHandler()
	router := NewRouter(h)

	loadScenario(t, router, "fresh-catalog")

	products, err := h.Store.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 4)

	rec := doJSON(t, router, http.MethodGet, "/api/products/low-stock", nil)
	low := decode[[]ProductDTO](t, rec)
	require.Len(t, low, 1, "only the wagyu is at or below threshold")
	assert.Equal(t, "Wagyu Slices 200g", low[0].Name)
}

func TestLoadScenario_BusyPickupDay(t *testing.T) {
	h := newTestHandler()
	router := NewRouter(h)

	loadScenario(t, router, "busy-pickup-day")

	rec := doJSON(t, router, http.MethodGet, "/api/orders", nil)
	orders := decode[[]OrderDTO](t, rec)
	require.Len(t, orders, 5)

	byStatus := make(map[string]int)
	for _, o := range orders {
		byStatus[o.Status]++
	}
	assert.Equal(t, map[string]int{
		"ready_for_pickup":  1,
		"completed":         1,
		"pending":           1,
		"partial_delivered": 1,
		"cancelled":         1,
	}, byStatus)

	replayAll(t, h)
}

func TestLoadScenario_PreOrderWave(t *testing.T) {
	h := newTestHandler()
	router := NewRouter(h)

	loadScenario(t, router, "pre-order-wave")

	order, err := h.Fulfillment.Order(ctx, mustOnlyOrderCode(t, h))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartialDelivered, order.Status)

	// 4 fulfilled, then reversed, then 3 re-fulfilled: net 3 of the 6
	// ordered units delivered.
	delivered, err := h.Fulfillment.DeliveredQuantities(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered["Mooncake Gift Box"])
	assert.Equal(t, 0, delivered["CNY Hamper"])

	replayAll(t, h)
}

func TestLoadScenario_ResetsPreviousData(t *testing.T) {
	h := newTestHandler()
	router := NewRouter(h)

	loadScenario(t, router, "busy-pickup-day")
	loadScenario(t, router, "fresh-catalog")

	rec := doJSON(t, router, http.MethodGet, "/api/orders", nil)
	assert.Empty(t, decode[[]OrderDTO](t, rec), "previous scenario's orders wiped")

	rec = doJSON(t, router, http.MethodGet, "/api/scenarios/current", nil)
	current := decode[*ScenarioDTO](t, rec)
	require.NotNil(t, current)
	assert.Equal(t, "fresh-catalog", current.ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	router := NewRouter(newTestHandler())

	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustOnlyOrderCode(t *testing.T, h *Handler) ledger.OrderCode {
	t.Helper()
	store, ok := h.Store.(ledger.OrderStore)
	require.True(t, ok)
	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	return orders[0].Code
}
