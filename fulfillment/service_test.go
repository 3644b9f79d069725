package fulfillment_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fulfillment-engine/fulfillment"
	"github.com/warp/fulfillment-engine/ledger"
	"github.com/warp/fulfillment-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*fulfillment.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return fulfillment.NewService(mem, mem), mem
}

func testNow() time.Time {
	return time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
}

func seedProduct(t *testing.T, mem *store.Memory, id string, stock int, preOrder bool) {
	t.Helper()
	err := mem.SaveProduct(context.Background(), ledger.Product{
		ID:        ledger.ProductID(id),
		Name:      "Product " + id,
		UnitPrice: decimal.RequireFromString("12.50"),
		CostPrice: decimal.NullDecimal{
			Decimal: decimal.RequireFromString("7.00"), Valid: true,
		},
		StockQuantity: stock,
		PreOrder:      preOrder,
		CreatedAt:     testNow(),
	})
	require.NoError(t, err)
}

func placeOrder(t *testing.T, svc *fulfillment.Service, lines ...ledger.LineRequest) *ledger.Order {
	t.Helper()
	order, _, err := svc.CreateOrder(context.Background(), fulfillment.NewOrderRequest{
		CustomerName:   "Mrs. Tan",
		CustomerPhone:  "+65 9000 0000",
		DeliveryMethod: "pickup",
		Lines:          lines,
	}, testNow())
	require.NoError(t, err)
	return order
}

func stockOf(t *testing.T, mem *store.Memory, id string) int {
	t.Helper()
	p, err := mem.GetProduct(context.Background(), ledger.ProductID(id))
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.StockQuantity
}

// =============================================================================
// CHECKOUT
// =============================================================================

func TestCreateOrder_InStockLine_DeductsAndGoesReadyForPickup(t *testing.T) {
	// GIVEN: Product P (stock 20), an order with one in-stock line qty 8
	// WHEN: The order is created
	// THEN: Checkout deduction fires, stock 12, and the order is
	//       ready_for_pickup (the auto-deduction delivers the full line)

	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 20, false)

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 8})

	assert.Equal(t, 12, stockOf(t, mem, "P"))
	assert.Equal(t, ledger.StatusReadyForPickup, order.Status)
	assert.Equal(t, "100", order.TotalAmount.String()) // 8 * 12.50
}

func TestCreateOrder_PreOrderLine_DeductsNothing(t *testing.T) {
	// Pre-order lines hold no stock until staff fulfill them.

	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 3, true)

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 10})

	assert.Equal(t, 3, stockOf(t, mem, "P"))
	assert.Equal(t, ledger.StatusPending, order.Status)
}

func TestCreateOrder_SnapshotsCosts(t *testing.T) {
	// GIVEN: An order placed while the product costs 7.00
	// WHEN: The catalog price is edited afterwards
	// THEN: The line's snapshot is unchanged

	svc, mem := newTestService(t)
	ctx := context.Background()
	seedProduct(t, mem, "P", 20, false)

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 2})
	require.Len(t, order.Items, 1)
	require.True(t, order.Items[0].CostPrice.Valid)
	assert.Equal(t, "7", order.Items[0].CostPrice.Decimal.String())

	p, err := mem.GetProduct(ctx, "P")
	require.NoError(t, err)
	p.UnitPrice = decimal.RequireFromString("99.99")
	p.CostPrice = decimal.NullDecimal{Decimal: decimal.RequireFromString("50"), Valid: true}
	require.NoError(t, mem.SaveProduct(ctx, *p))

	reloaded, err := svc.Order(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, "12.5", reloaded.Items[0].UnitPrice.String())
	assert.Equal(t, "7", reloaded.Items[0].CostPrice.Decimal.String())
}

func TestCreateOrder_CodesAreChronologicallySortable(t *testing.T) {
	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 100, false)

	first := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 1})
	second := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 1})

	assert.Equal(t, ledger.OrderCode("FW20260829-0001"), first.Code)
	assert.Equal(t, ledger.OrderCode("FW20260829-0002"), second.Code)
	assert.Less(t, string(first.Code), string(second.Code))
}

func TestCreateOrder_Validation(t *testing.T) {
	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 10, false)
	ctx := context.Background()

	_, _, err := svc.CreateOrder(ctx, fulfillment.NewOrderRequest{
		CustomerName: "Mrs. Tan",
	}, testNow())
	assert.ErrorIs(t, err, ledger.ErrValidation, "no lines")

	_, _, err = svc.CreateOrder(ctx, fulfillment.NewOrderRequest{
		Lines: []ledger.LineRequest{{ProductID: "P", Quantity: 1}},
	}, testNow())
	assert.ErrorIs(t, err, ledger.ErrValidation, "no customer")

	_, _, err = svc.CreateOrder(ctx, fulfillment.NewOrderRequest{
		CustomerName: "Mrs. Tan",
		Lines:        []ledger.LineRequest{{ProductID: "missing", Quantity: 1}},
	}, testNow())
	assert.ErrorIs(t, err, ledger.ErrNotFound, "unknown product")
}

// =============================================================================
// MANUAL EARLY DEDUCTION
// =============================================================================

func TestManualEarlyDeduct_InsufficientStockFailsTheLine(t *testing.T) {
	// GIVEN: Pre-order line qty 10, only 3 physically available
	// WHEN: Staff try to early-fulfill 6
	// THEN: The line fails with InsufficientStockError; nothing delivered

	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 3, true)
	ctx := context.Background()

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 10})

	results, err := svc.ManualEarlyDeduct(ctx, order.Code,
		[]ledger.LineRequest{{ProductID: "P", Quantity: 6}}, "alice", testNow())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ledger.ErrInsufficientStock)

	delivered, err := svc.DeliveredQuantities(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered["Product P"])
	assert.Equal(t, 3, stockOf(t, mem, "P"))
}

func TestManualEarlyDeduct_SkipsInStockLines(t *testing.T) {
	// In-stock lines were already deducted at checkout; early deduction
	// must skip them instead of double-deducting.

	svc, mem := newTestService(t)
	seedProduct(t, mem, "pre", 10, true)
	seedProduct(t, mem, "now", 10, false)
	ctx := context.Background()

	order := placeOrder(t, svc,
		ledger.LineRequest{ProductID: "pre", Quantity: 4},
		ledger.LineRequest{ProductID: "now", Quantity: 2},
	)

	results, err := svc.ManualEarlyDeduct(ctx, order.Code, []ledger.LineRequest{
		{ProductID: "pre", Quantity: 4},
		{ProductID: "now", Quantity: 2},
	}, "alice", testNow())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].OK())
	assert.True(t, results[1].Skipped)
	assert.Equal(t, 6, stockOf(t, mem, "pre"))
	assert.Equal(t, 8, stockOf(t, mem, "now"), "no double deduction")
}

// =============================================================================
// PARTIAL DELIVERY
// =============================================================================

func TestRecordPartialDelivery_ContinuesPastFailedLines(t *testing.T) {
	// GIVEN: Two pre-order lines
	// WHEN: One delivery quantity exceeds the line's remaining amount
	// THEN: That line fails, the other still lands (no batch rollback)

	svc, mem := newTestService(t)
	seedProduct(t, mem, "a", 50, true)
	seedProduct(t, mem, "b", 50, true)
	ctx := context.Background()

	order := placeOrder(t, svc,
		ledger.LineRequest{ProductID: "a", Quantity: 5},
		ledger.LineRequest{ProductID: "b", Quantity: 5},
	)

	results, err := svc.RecordPartialDelivery(ctx, order.Code, []ledger.LineRequest{
		{ProductID: "a", Quantity: 9}, // exceeds ordered 5
		{ProductID: "b", Quantity: 3},
	}, "alice", testNow())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.ErrorIs(t, results[0].Err, ledger.ErrValidation)
	assert.True(t, results[1].OK())
	assert.Equal(t, 50, stockOf(t, mem, "a"))
	assert.Equal(t, 47, stockOf(t, mem, "b"))

	remaining, err := svc.RemainingQuantities(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining["Product a"])
	assert.Equal(t, 2, remaining["Product b"])
}

func TestRecordPartialDelivery_UnknownLine(t *testing.T) {
	svc, mem := newTestService(t)
	seedProduct(t, mem, "a", 50, true)
	seedProduct(t, mem, "other", 50, true)

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "a", Quantity: 5})

	results, err := svc.RecordPartialDelivery(context.Background(), order.Code,
		[]ledger.LineRequest{{ProductID: "other", Quantity: 1}}, "alice", testNow())
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, ledger.ErrNotFound, "product not on the order")
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestStatus_Monotonicity(t *testing.T) {
	// Ordered 10: deliver 0 -> pending; 4 -> partial_delivered;
	// 10 -> ready_for_pickup; completePacking -> completed.

	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 100, true)
	ctx := context.Background()

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 10})
	assert.Equal(t, ledger.StatusPending, order.Status)

	_, err := svc.RecordPartialDelivery(ctx, order.Code,
		[]ledger.LineRequest{{ProductID: "P", Quantity: 4}}, "alice", testNow())
	require.NoError(t, err)
	o, err := svc.Order(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartialDelivered, o.Status)

	_, err = svc.RecordPartialDelivery(ctx, order.Code,
		[]ledger.LineRequest{{ProductID: "P", Quantity: 6}}, "alice", testNow())
	require.NoError(t, err)
	o, err = svc.Order(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReadyForPickup, o.Status)

	o, err = svc.CompletePacking(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, o.Status)
}

func TestCompletePacking_RequiresFullDelivery(t *testing.T) {
	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 100, true)

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 10})

	_, err := svc.CompletePacking(context.Background(), order.Code)
	assert.ErrorIs(t, err, ledger.ErrConflict, "pending order cannot be packed")
}

func TestReverseMovement_DowngradesStatus(t *testing.T) {
	// GIVEN: A fully delivered order (ready_for_pickup)
	// WHEN: One delivery movement is reversed
	// THEN: The order drops back to partial_delivered

	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 100, true)
	ctx := context.Background()

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 10})

	results, err := svc.RecordPartialDelivery(ctx, order.Code,
		[]ledger.LineRequest{{ProductID: "P", Quantity: 10}}, "alice", testNow())
	require.NoError(t, err)
	require.True(t, results[0].OK())

	o, err := svc.Order(ctx, order.Code)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusReadyForPickup, o.Status)

	_, err = svc.ReverseMovement(ctx, results[0].Movement.ID, "alice", testNow())
	require.NoError(t, err)

	o, err = svc.Order(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, o.Status, "all delivered quantity was reversed")
	assert.Equal(t, 100, stockOf(t, mem, "P"))
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancelOrder_RestocksDeliveredQuantity(t *testing.T) {
	// The FW001 scenario: stock 20, in-stock line qty 8. Checkout leaves
	// stock 12 and ready_for_pickup; cancelling restores stock 20.

	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 20, false)
	ctx := context.Background()

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 8})
	require.Equal(t, ledger.StatusReadyForPickup, order.Status)
	require.Equal(t, 12, stockOf(t, mem, "P"))

	cancelled, err := svc.CancelOrder(ctx, order.Code, "alice", testNow())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, cancelled.Status)
	assert.Equal(t, 20, stockOf(t, mem, "P"))
}

func TestCancelOrder_IgnoresAlreadyReversedDeliveries(t *testing.T) {
	// A delivery that was individually reversed must not be restocked a
	// second time on cancellation.

	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 100, true)
	ctx := context.Background()

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 10})
	results, err := svc.RecordPartialDelivery(ctx, order.Code,
		[]ledger.LineRequest{{ProductID: "P", Quantity: 4}}, "alice", testNow())
	require.NoError(t, err)
	_, err = svc.ReverseMovement(ctx, results[0].Movement.ID, "alice", testNow())
	require.NoError(t, err)
	require.Equal(t, 100, stockOf(t, mem, "P"))

	_, err = svc.CancelOrder(ctx, order.Code, "alice", testNow())
	require.NoError(t, err)
	assert.Equal(t, 100, stockOf(t, mem, "P"), "no double restock")
}

func TestCancelOrder_TerminalStatesConflict(t *testing.T) {
	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 20, false)
	ctx := context.Background()

	order := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 8})
	_, err := svc.CompletePacking(ctx, order.Code)
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, order.Code, "alice", testNow())
	assert.ErrorIs(t, err, ledger.ErrConflict, "completed order")

	other := placeOrder(t, svc, ledger.LineRequest{ProductID: "P", Quantity: 2})
	_, err = svc.CancelOrder(ctx, other.Code, "alice", testNow())
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, other.Code, "alice", testNow())
	assert.ErrorIs(t, err, ledger.ErrConflict, "cancelled order")
}

// =============================================================================
// READ SIDE
// =============================================================================

func TestDeliveredAndRemainingQuantities_KeyedByDisplayName(t *testing.T) {
	svc, mem := newTestService(t)
	seedProduct(t, mem, "a", 50, false)
	seedProduct(t, mem, "b", 50, true)
	ctx := context.Background()

	order := placeOrder(t, svc,
		ledger.LineRequest{ProductID: "a", Quantity: 3},
		ledger.LineRequest{ProductID: "b", Quantity: 5},
	)

	delivered, err := svc.DeliveredQuantities(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Product a": 3, "Product b": 0}, delivered)

	remaining, err := svc.RemainingQuantities(ctx, order.Code)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Product a": 0, "Product b": 5}, remaining)
}

// =============================================================================
// SUPPLIER RESTOCK
// =============================================================================

func TestReceiveStock_AppendsRestock(t *testing.T) {
	svc, mem := newTestService(t)
	seedProduct(t, mem, "P", 2, false)

	m, err := svc.ReceiveStock(context.Background(), "P", 30, "", "bob", testNow())
	require.NoError(t, err)
	assert.Equal(t, ledger.KindRestock, m.Kind)
	assert.Equal(t, "supplier receipt", m.Reason)
	assert.Equal(t, 32, stockOf(t, mem, "P"))
}
