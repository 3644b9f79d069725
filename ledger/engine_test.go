package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fulfillment-engine/ledger"
	"github.com/warp/fulfillment-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine(t *testing.T) (*ledger.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return ledger.NewEngine(mem), mem
}

func seedProduct(t *testing.T, mem *store.Memory, id string, stock int, preOrder bool) {
	t.Helper()
	err := mem.SaveProduct(context.Background(), ledger.Product{
		ID:            ledger.ProductID(id),
		Name:          "Product " + id,
		UnitPrice:     decimal.NewFromInt(10),
		StockQuantity: stock,
		PreOrder:      preOrder,
		CreatedAt:     testNow(),
	})
	require.NoError(t, err)
}

func testNow() time.Time {
	return time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
}

func currentStock(t *testing.T, mem *store.Memory, id string) int {
	t.Helper()
	p, err := mem.GetProduct(context.Background(), ledger.ProductID(id))
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.StockQuantity
}

// =============================================================================
// DEDUCTION TESTS
// =============================================================================

func TestEngine_Deduct_RecordsSnapshotChain(t *testing.T) {
	// GIVEN: Product with stock 20
	// WHEN: Deducting 8 then 5
	// THEN: Each movement carries the correct previous/new snapshot and
	//       the product's stock mirrors the latest NewStock

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 20, false)

	m1, err := engine.Deduct(ctx, "p1", 8, ledger.KindOrderDeduction, "FW20260829-0001", "checkout", ledger.OperatorSystem, testNow())
	require.NoError(t, err)
	assert.Equal(t, -8, m1.Quantity)
	assert.Equal(t, 20, m1.PreviousStock)
	assert.Equal(t, 12, m1.NewStock)

	m2, err := engine.Deduct(ctx, "p1", 5, ledger.KindPartialDelivery, "FW20260829-0002", "partial", "alice", testNow())
	require.NoError(t, err)
	assert.Equal(t, 12, m2.PreviousStock)
	assert.Equal(t, 7, m2.NewStock)
	assert.Greater(t, m2.ID, m1.ID, "movement ids are strictly increasing")

	assert.Equal(t, 7, currentStock(t, mem, "p1"))
}

func TestEngine_Deduct_InsufficientStock(t *testing.T) {
	// GIVEN: Product with stock 3
	// WHEN: Deducting 6
	// THEN: InsufficientStockError, stock unchanged, no movement appended

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 3, true)

	_, err := engine.Deduct(ctx, "p1", 6, ledger.KindManualEarlyDeduction, "FW1", "early", "alice", testNow())

	var insuff *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insuff)
	assert.Equal(t, 3, insuff.Available)
	assert.Equal(t, 6, insuff.Requested)

	assert.Equal(t, 3, currentStock(t, mem, "p1"))
	movements, err := mem.ListByProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, movements, "failed deduction must not append")
}

func TestEngine_Deduct_RejectsBadInput(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 10, false)

	_, err := engine.Deduct(ctx, "p1", 0, ledger.KindOrderDeduction, "", "", ledger.OperatorSystem, testNow())
	assert.ErrorIs(t, err, ledger.ErrValidation, "zero quantity")

	_, err = engine.Deduct(ctx, "p1", -2, ledger.KindOrderDeduction, "", "", ledger.OperatorSystem, testNow())
	assert.ErrorIs(t, err, ledger.ErrValidation, "negative quantity")

	_, err = engine.Deduct(ctx, "p1", 2, ledger.KindRestock, "", "", ledger.OperatorSystem, testNow())
	assert.ErrorIs(t, err, ledger.ErrValidation, "restock is not a deducting kind")

	_, err = engine.Deduct(ctx, "p1", 2, ledger.KindReversal, "", "", ledger.OperatorSystem, testNow())
	assert.ErrorIs(t, err, ledger.ErrValidation, "reversal kind cannot be issued directly")

	_, err = engine.Deduct(ctx, "missing", 2, ledger.KindOrderDeduction, "", "", ledger.OperatorSystem, testNow())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestEngine_Restock_IncreasesStock(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 2, false)

	m, err := engine.Restock(ctx, "p1", 10, "", "supplier receipt", "bob", testNow())
	require.NoError(t, err)
	assert.Equal(t, ledger.KindRestock, m.Kind)
	assert.Equal(t, 10, m.Quantity)
	assert.Equal(t, 12, m.NewStock)
	assert.Equal(t, 12, currentStock(t, mem, "p1"))
}

// =============================================================================
// REVERSAL TESTS
// =============================================================================

func TestEngine_Reverse_RestoresStock(t *testing.T) {
	// GIVEN: Stock 20, a deduction of 8 (stock 12), an unrelated restock
	//        of 5 (stock 17)
	// WHEN: Reversing the deduction
	// THEN: Stock equals 25 = pre-deduction stock net of the unrelated
	//       restock, and the reversal links back to the original

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 20, false)

	original, err := engine.Deduct(ctx, "p1", 8, ledger.KindOrderDeduction, "FW1", "checkout", ledger.OperatorSystem, testNow())
	require.NoError(t, err)
	_, err = engine.Restock(ctx, "p1", 5, "", "supplier receipt", "bob", testNow())
	require.NoError(t, err)

	rev, err := engine.Reverse(ctx, original.ID, "alice", testNow())
	require.NoError(t, err)

	assert.Equal(t, ledger.KindReversal, rev.Kind)
	assert.Equal(t, 8, rev.Quantity, "exact negation of the original delta")
	assert.Equal(t, original.ID, rev.ReversalOf)
	assert.Equal(t, ledger.OrderCode("FW1"), rev.OrderCode, "order code copied for audit linkage")
	assert.Equal(t, 25, currentStock(t, mem, "p1"))
}

func TestEngine_Reverse_Exclusivity(t *testing.T) {
	// GIVEN: A reversed movement
	// WHEN: Reversing it again
	// THEN: AlreadyReversedError naming the existing reversal

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 20, false)

	original, err := engine.Deduct(ctx, "p1", 8, ledger.KindOrderDeduction, "FW1", "checkout", ledger.OperatorSystem, testNow())
	require.NoError(t, err)

	first, err := engine.Reverse(ctx, original.ID, "alice", testNow())
	require.NoError(t, err)

	_, err = engine.Reverse(ctx, original.ID, "bob", testNow())
	var already *ledger.AlreadyReversedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, original.ID, already.MovementID)
	assert.Equal(t, first.ID, already.ReversalID)
	assert.Equal(t, 20, currentStock(t, mem, "p1"), "stock unchanged by the failed second reversal")
}

func TestEngine_Reverse_ReversalIsTerminal(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 20, false)

	original, err := engine.Deduct(ctx, "p1", 8, ledger.KindOrderDeduction, "FW1", "checkout", ledger.OperatorSystem, testNow())
	require.NoError(t, err)
	rev, err := engine.Reverse(ctx, original.ID, "alice", testNow())
	require.NoError(t, err)

	_, err = engine.Reverse(ctx, rev.ID, "alice", testNow())
	var unsupported *ledger.UnsupportedKindError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, ledger.KindReversal, unsupported.Kind)
}

func TestEngine_Reverse_UnknownMovement(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Reverse(context.Background(), 9999, "alice", testNow())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestEngine_Reverse_WouldDriveStockNegative(t *testing.T) {
	// GIVEN: A restock of 10 on an empty product, then 8 of it deducted
	// WHEN: Reversing the restock (inverse delta -10, stock only 2)
	// THEN: InsufficientStockError, nothing appended

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 0, false)

	restock, err := engine.Restock(ctx, "p1", 10, "", "supplier receipt", "bob", testNow())
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, "p1", 8, ledger.KindOrderDeduction, "FW1", "checkout", ledger.OperatorSystem, testNow())
	require.NoError(t, err)

	_, err = engine.Reverse(ctx, restock.ID, "alice", testNow())
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Equal(t, 2, currentStock(t, mem, "p1"))
}

// =============================================================================
// CHAIN INVARIANT
// =============================================================================

func TestEngine_ChainInvariant_ReplayReproducesStock(t *testing.T) {
	// GIVEN: A mixed sequence of deductions, restocks and a reversal
	// THEN: Replaying movements in id order reproduces the stored stock
	//       with every link consistent

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, mem, "p1", 50, false)

	m, err := engine.Deduct(ctx, "p1", 12, ledger.KindOrderDeduction, "FW1", "checkout", ledger.OperatorSystem, testNow())
	require.NoError(t, err)
	_, err = engine.Restock(ctx, "p1", 7, "", "supplier receipt", "bob", testNow())
	require.NoError(t, err)
	_, err = engine.Deduct(ctx, "p1", 20, ledger.KindPartialDelivery, "FW2", "partial", "alice", testNow())
	require.NoError(t, err)
	_, err = engine.Reverse(ctx, m.ID, "alice", testNow())
	require.NoError(t, err)

	agg := ledger.NewAggregator(mem)
	replayed, err := agg.ReplayStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, currentStock(t, mem, "p1"), replayed)
	assert.Equal(t, 37, replayed) // 50 - 12 + 7 - 20 + 12
}
