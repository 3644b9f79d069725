/*
aggregator.go - Derived balances from the movement ledger

PURPOSE:
  Computes read-time facts from the ledger without mutating it. This is
  the single source of derived truth: how much of an order line has
  actually been delivered, how much remains, and what a product's current
  stock is. Every view that needs these numbers asks here instead of
  re-deriving them.

KEY RULE (delivered quantity):
  A movement counts toward delivered quantity only when ALL hold:
  1. It references the order
  2. Its kind is deliverable (order_deduction, manual_early_deduction,
     partial_delivery)
  3. Its delta is negative (goods left inventory)
  4. No other movement reverses it
  Rule 4 matters: a reversed delivery must stop counting as delivered.

STALENESS:
  All results are snapshots; they may be stale the instant after they are
  read. Readers never block writers.

SEE ALSO:
  - engine.go: The writers these reads stay consistent with
  - fulfillment: Derives order status from these numbers
*/
package ledger

import "context"

// Aggregator derives balances from the ledger. Read-only.
type Aggregator struct {
	Store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{Store: store}
}

// DeliveredQuantity returns how many units of a product have been
// delivered toward an order: the sum of |quantity| over non-reversed
// deliverable movements with a negative delta referencing the order.
func (a *Aggregator) DeliveredQuantity(ctx context.Context, code OrderCode, productID ProductID) (int, error) {
	byProduct, err := a.DeliveredByOrder(ctx, code)
	if err != nil {
		return 0, err
	}
	return byProduct[productID], nil
}

// DeliveredByOrder returns delivered quantity per product for an order.
// Products with nothing delivered are absent from the map.
func (a *Aggregator) DeliveredByOrder(ctx context.Context, code OrderCode) (map[ProductID]int, error) {
	movements, err := a.Store.ListByOrder(ctx, code)
	if err != nil {
		return nil, err
	}

	// A reversal's OrderCode is copied from its target, so the reversal
	// set for this order is fully visible in the same listing.
	reversed := make(map[MovementID]bool)
	for _, m := range movements {
		if m.ReversalOf != 0 {
			reversed[m.ReversalOf] = true
		}
	}

	delivered := make(map[ProductID]int)
	for _, m := range movements {
		if !m.Kind.Deliverable() || m.Quantity >= 0 || reversed[m.ID] {
			continue
		}
		delivered[m.ProductID] += -m.Quantity
	}
	return delivered, nil
}

// RemainingQuantity returns how much of an order line is still
// undelivered, never below zero.
func (a *Aggregator) RemainingQuantity(ctx context.Context, code OrderCode, item OrderItem) (int, error) {
	delivered, err := a.DeliveredQuantity(ctx, code, item.ProductID)
	if err != nil {
		return 0, err
	}
	remaining := item.Quantity - delivered
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// CurrentStock returns the product's current stock: the denormalized
// quantity the store keeps equal to the latest movement's NewStock.
func (a *Aggregator) CurrentStock(ctx context.Context, productID ProductID) (int, error) {
	p, err := a.Store.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, &NotFoundError{Kind: "product", Ref: string(productID)}
	}
	return p.StockQuantity, nil
}

// ReplayStock recomputes a product's stock by replaying its movement
// chain and verifies the chain invariant along the way. Used by tests
// and audit tooling; returns ErrValidation if the chain is broken.
func (a *Aggregator) ReplayStock(ctx context.Context, productID ProductID) (int, error) {
	movements, err := a.Store.ListByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	stock := 0
	for i, m := range movements {
		if i == 0 {
			stock = m.PreviousStock
		}
		if m.PreviousStock != stock {
			return 0, &chainError{ProductID: productID, MovementID: m.ID,
				Expected: stock, Got: m.PreviousStock}
		}
		if m.NewStock != m.PreviousStock+m.Quantity {
			return 0, &chainError{ProductID: productID, MovementID: m.ID,
				Expected: m.PreviousStock + m.Quantity, Got: m.NewStock}
		}
		stock = m.NewStock
	}
	return stock, nil
}

type chainError struct {
	ProductID  ProductID
	MovementID MovementID
	Expected   int
	Got        int
}

func (e *chainError) Error() string {
	return "broken movement chain for product " + string(e.ProductID)
}

func (e *chainError) Unwrap() error { return ErrValidation }
