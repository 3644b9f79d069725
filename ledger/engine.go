/*
engine.go - Movement and reversal engines

PURPOSE:
  The only writers of the movement ledger. The movement engine validates
  and appends intent-carrying stock changes (deductions, restocks); the
  reversal engine appends compensating movements for prior ones under a
  strict one-reversal-per-movement rule.

CONCURRENCY:
  Each operation is a read-validate-write cycle: load the product, check
  the requested quantity against current stock, build the movement with
  the stock snapshot, append. The store's optimistic check (PreviousStock
  must still match the stored stock) is the concurrency guard; when it
  trips the engine retries the whole cycle a bounded number of times
  before surfacing StaleReadError to the caller.

NOT IDEMPOTENT:
  The engine does not dedupe repeated external calls with the same
  logical intent; a blind retry of a deduction double-deducts. Retries of
  anything other than StaleReadError are the caller's responsibility.

SEE ALSO:
  - aggregator.go: Derived reads the engine validates against
  - fulfillment: Order-level batch operations built on these primitives
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// maxStaleRetries bounds the optimistic-check retry loop. Two staff
// members hammering the same product settle within a retry or two;
// anything past that is surfaced to the caller.
const maxStaleRetries = 3

// Engine validates and appends movements. The single writer of the
// ledger; everything else only reads.
type Engine struct {
	Store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store}
}

// =============================================================================
// MOVEMENT ENGINE
// =============================================================================

// Deduct appends a negative movement of the given deliverable or restock
// kind. Fails with InsufficientStockError when quantity exceeds current
// stock, ValidationError on malformed input.
func (e *Engine) Deduct(ctx context.Context, productID ProductID, quantity int, kind MovementKind, code OrderCode, reason, operator string, now time.Time) (*StockMovement, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrValidation, quantity)
	}
	if !kind.Valid() || kind == KindReversal || kind == KindRestock {
		return nil, fmt.Errorf("%w: %q is not a deducting kind", ErrValidation, kind)
	}
	return e.appendWithRetry(ctx, productID, -quantity, kind, code, reason, operator, 0, now)
}

// Restock appends a positive movement: supplier receipt or cancellation
// compensator.
func (e *Engine) Restock(ctx context.Context, productID ProductID, quantity int, code OrderCode, reason, operator string, now time.Time) (*StockMovement, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrValidation, quantity)
	}
	return e.appendWithRetry(ctx, productID, quantity, KindRestock, code, reason, operator, 0, now)
}

// appendWithRetry runs the read-validate-write cycle, retrying when the
// store's optimistic stock check trips.
func (e *Engine) appendWithRetry(ctx context.Context, productID ProductID, delta int, kind MovementKind, code OrderCode, reason, operator string, reversalOf MovementID, now time.Time) (*StockMovement, error) {
	var lastErr error
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		m, err := e.appendOnce(ctx, productID, delta, kind, code, reason, operator, reversalOf, now)
		if err == nil {
			return m, nil
		}
		if IsRetryable(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (e *Engine) appendOnce(ctx context.Context, productID ProductID, delta int, kind MovementKind, code OrderCode, reason, operator string, reversalOf MovementID, now time.Time) (*StockMovement, error) {
	product, err := e.Store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, &NotFoundError{Kind: "product", Ref: string(productID)}
	}

	newStock := product.StockQuantity + delta
	if newStock < 0 {
		return nil, &InsufficientStockError{
			ProductID: productID,
			Available: product.StockQuantity,
			Requested: -delta,
		}
	}

	m := StockMovement{
		ProductID:     productID,
		Kind:          kind,
		Quantity:      delta,
		PreviousStock: product.StockQuantity,
		NewStock:      newStock,
		Reason:        reason,
		OrderCode:     code,
		Operator:      operator,
		ReversalOf:    reversalOf,
		CreatedAt:     now,
	}

	id, err := e.Store.Append(ctx, m)
	if err != nil {
		return nil, err
	}
	m.ID = id
	return &m, nil
}

// =============================================================================
// REVERSAL ENGINE
// =============================================================================

// Reverse appends a compensating movement for a prior one.
//
// Fails with:
//   - NotFoundError: the movement does not exist
//   - UnsupportedKindError: the movement is itself a reversal
//   - AlreadyReversedError: a reversal already points at it
//   - InsufficientStockError: the inverse delta would drive stock negative
//
// On success the reversal carries the exact negation of the original
// quantity and copies its order code, so aggregation and audit stay
// linkable.
func (e *Engine) Reverse(ctx context.Context, id MovementID, operator string, now time.Time) (*StockMovement, error) {
	original, err := e.Store.GetMovement(ctx, id)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, &NotFoundError{Kind: "movement", Ref: fmt.Sprint(id)}
	}
	if !original.Kind.Reversible() {
		return nil, &UnsupportedKindError{MovementID: id, Kind: original.Kind}
	}

	existing, err := e.Store.FindReversalOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &AlreadyReversedError{MovementID: id, ReversalID: existing.ID}
	}

	reason := fmt.Sprintf("reversal of movement %d (%s)", id, original.Kind)
	// The store's unique index on reversal_of closes the race where two
	// staff reverse the same movement concurrently; the loser gets
	// AlreadyReversedError from Append.
	return e.appendWithRetry(ctx, original.ProductID, -original.Quantity,
		KindReversal, original.OrderCode, reason, operator, id, now)
}
