/*
store.go - Persistence interfaces for the ledger and orders

PURPOSE:
  Defines the interface between the engine and the database. The Store
  persists movements while maintaining append-only semantics; different
  implementations use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  The movements side of the Store is append-only:
  - Append(): the ONLY write to the movement log
  - NO update or delete methods exist for movements
  Corrections happen via reversal movements, never edits.

ATOMICITY:
  Append must, in one atomic unit:
  1. Verify the movement's PreviousStock equals the product's currently
     stored stock (optimistic concurrency guard -> StaleReadError)
  2. Verify NewStock is not negative (-> InsufficientStockError)
  3. Insert the movement row
  4. Update the product's denormalized stock_quantity to NewStock
  If another writer updated the product between the engine's read and the
  append, step 1 fails and the engine retries the whole cycle.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for tests

SEE ALSO:
  - engine.go: The only writer of movements
  - aggregator.go: Read-only derivations over the Store
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Movements + products (append-only on movements)
// =============================================================================

// Store handles persistence of movements and the product rows whose
// denormalized stock the ledger keeps in sync.
//
// IMPORTANT: movements are APPEND-ONLY. No update, no delete. Ever.
type Store interface {
	// Append persists a movement and updates the product's denormalized
	// stock to the movement's NewStock in the same atomic unit. Returns
	// the store-assigned movement id.
	//
	// Fails with StaleReadError if the movement's PreviousStock does not
	// match the product's currently stored stock, and with
	// InsufficientStockError if NewStock is negative.
	Append(ctx context.Context, m StockMovement) (MovementID, error)

	// GetMovement returns a single movement by id.
	GetMovement(ctx context.Context, id MovementID) (*StockMovement, error)

	// ListByProduct returns all movements for a product in id order.
	ListByProduct(ctx context.Context, productID ProductID) ([]StockMovement, error)

	// ListByOrder returns all movements referencing an order, in id order.
	ListByOrder(ctx context.Context, code OrderCode) ([]StockMovement, error)

	// FindReversalOf returns the movement that reverses the given one, or
	// nil if it has not been reversed.
	FindReversalOf(ctx context.Context, id MovementID) (*StockMovement, error)

	// GetProduct returns a product by id.
	GetProduct(ctx context.Context, id ProductID) (*Product, error)

	// ListProducts returns all products.
	ListProducts(ctx context.Context) ([]Product, error)

	// SaveProduct inserts or updates a product's catalog fields. Stock is
	// written here only on first insert; afterwards the ledger owns it.
	SaveProduct(ctx context.Context, p Product) error
}

// =============================================================================
// ORDER STORE - Orders and line items
// =============================================================================

// OrderStore persists orders. Line items are written once at creation;
// only the status column mutates afterwards.
type OrderStore interface {
	// CreateOrder inserts an order and its items.
	CreateOrder(ctx context.Context, o Order) error

	// GetOrder returns an order with its items.
	GetOrder(ctx context.Context, code OrderCode) (*Order, error)

	// ListOrders returns all orders, newest first.
	ListOrders(ctx context.Context) ([]Order, error)

	// UpdateOrderStatus sets the status column. The store does not
	// validate transitions; that is the fulfillment layer's job.
	UpdateOrderStatus(ctx context.Context, code OrderCode, status OrderStatus) error

	// NextOrderNumber returns the next sequence number for order codes
	// issued on the given day.
	NextOrderNumber(ctx context.Context, day time.Time) (int, error)
}
