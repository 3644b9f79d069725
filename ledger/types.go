/*
Package ledger provides the core stock ledger and fulfillment engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  inventory through an append-only movement ledger. Every change to a
  product's stock - an order deduction, a manual early fulfillment, a
  partial delivery, a restock, or a reversal of any of these - is one
  immutable row in the ledger. Current stock and per-order delivered
  quantities are derived facts, never independently edited.

KEY CONCEPTS IN THIS FILE (types.go):
  - StockMovement: An immutable ledger entry recording one stock change
  - MovementKind: What kind of change a movement represents
  - Product: Catalog row whose stock_quantity mirrors the ledger
  - Order / OrderItem: A customer order with immutable line items
  - LineRequest / LineResult: Per-line inputs and outcomes for batch ops

DESIGN PRINCIPLES:
  1. Immutability: Movements are never modified, only reversed
  2. Chain integrity: Each movement carries the previous and resulting
     stock snapshot; replaying the chain reproduces current stock exactly
  3. Stable keys: Movements reference products by immutable id, never by
     display name
  4. Auditability: Every movement records reason, operator, and the order
     it belongs to

SEE ALSO:
  - store.go: Persistence interfaces
  - engine.go: Movement and reversal validation and appending
  - aggregator.go: Derived balances (current stock, delivered quantity)
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ProductID is the immutable identifier of a catalog product.
// Movements and order lines always reference products by id; the display
// name is for humans only and may change at any time.
type ProductID string

// MovementID is the store-assigned, strictly increasing id of a ledger
// entry. Ordering movements by MovementID gives the order in which they
// were applied.
type MovementID int64

// OrderCode is the human-readable, chronologically sortable code of an
// order (e.g. "FW20260829-0012"). It is the key movements use to link
// back to the order they serve.
type OrderCode string

// =============================================================================
// MOVEMENT KINDS
// =============================================================================

type MovementKind string

const (
	// KindOrderDeduction is the automatic stock deduction at checkout for
	// an in-stock (non-pre-order) order line. Operator is always "system".
	KindOrderDeduction MovementKind = "order_deduction"

	// KindManualEarlyDeduction is a staff-triggered deduction that fulfills
	// a pre-order line from physical inventory ahead of the group cutoff.
	KindManualEarlyDeduction MovementKind = "manual_early_deduction"

	// KindPartialDelivery records shipping less than the full ordered
	// quantity for a line.
	KindPartialDelivery MovementKind = "partial_delivery"

	// KindRestock is a stock increase: supplier receipt or the compensating
	// movement issued when an order is cancelled.
	KindRestock MovementKind = "restock"

	// KindReversal negates exactly one prior movement. A reversal is
	// terminal: it can never itself be reversed.
	KindReversal MovementKind = "reversal"
)

// Deliverable reports whether a movement of this kind counts toward an
// order line's delivered quantity. Restocks and reversals move stock but
// never deliver goods to a customer.
func (k MovementKind) Deliverable() bool {
	switch k {
	case KindOrderDeduction, KindManualEarlyDeduction, KindPartialDelivery:
		return true
	}
	return false
}

// Reversible reports whether a movement of this kind may be undone.
// Every kind is reversible except reversals themselves.
func (k MovementKind) Reversible() bool {
	return k != KindReversal && k.Valid()
}

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case KindOrderDeduction, KindManualEarlyDeduction, KindPartialDelivery,
		KindRestock, KindReversal:
		return true
	}
	return false
}

// =============================================================================
// STOCK MOVEMENT - Immutable ledger entry
// =============================================================================

// StockMovement is one append-only record of a stock quantity change.
//
// INVARIANTS (enforced by the engine and the store, verified in tests):
//   - NewStock = PreviousStock + Quantity
//   - For a product, ordering by ID, each movement's PreviousStock equals
//     the prior movement's NewStock (no out-of-band stock edits)
//   - NewStock is never negative
//   - At most one movement references a given movement via ReversalOf,
//     and that target is never itself a reversal
type StockMovement struct {
	ID        MovementID
	ProductID ProductID
	Kind      MovementKind

	// Quantity is the signed stock delta: positive increases stock,
	// negative decreases it.
	Quantity int

	// PreviousStock and NewStock snapshot the product's stock around this
	// movement at the time it was appended.
	PreviousStock int
	NewStock      int

	Reason     string
	OrderCode  OrderCode  // empty for movements not tied to an order
	Operator   string     // staff identity, or "system" for automatic moves
	ReversalOf MovementID // non-zero only on reversal movements

	CreatedAt time.Time
}

// IsReversal reports whether m is a compensating movement.
func (m StockMovement) IsReversal() bool {
	return m.Kind == KindReversal
}

// OperatorSystem is recorded on movements the engine creates without a
// human actor (checkout deductions, cancellation restocks).
const OperatorSystem = "system"

// =============================================================================
// PRODUCT - Catalog row (stock mirrors the ledger)
// =============================================================================

// Product is a catalog entry. StockQuantity is denormalized from the
// ledger: the store updates it to the latest movement's NewStock in the
// same atomic unit as the append. For pre-order products the quantity is
// advisory - it only matters when staff fulfill early from physical
// inventory.
type Product struct {
	ID        ProductID
	Name      string
	UnitPrice decimal.Decimal

	// CostPrice and ShippingCost are point-in-time cost inputs, copied
	// onto order lines at checkout. Null when the admin has not set them.
	CostPrice    decimal.NullDecimal
	ShippingCost decimal.NullDecimal

	StockQuantity     int
	LowStockThreshold int
	PreOrder          bool

	CreatedAt time.Time
}

// LowOnStock reports whether an in-stock product has fallen to or below
// its threshold. Pre-order products are never low on stock.
func (p Product) LowOnStock() bool {
	return !p.PreOrder && p.StockQuantity <= p.LowStockThreshold
}

// =============================================================================
// ORDER - Created once at checkout; only status mutates afterwards
// =============================================================================

type OrderStatus string

const (
	StatusPending          OrderStatus = "pending"
	StatusPartialDelivered OrderStatus = "partial_delivered"
	StatusReadyForPickup   OrderStatus = "ready_for_pickup"
	StatusCompleted        OrderStatus = "completed"
	StatusCancelled        OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Order is a customer order. Items are immutable once created; Status is
// the only field the fulfillment engine mutates after creation.
type Order struct {
	ID             string
	Code           OrderCode
	CustomerName   string
	CustomerPhone  string
	DeliveryMethod string
	TotalAmount    decimal.Decimal
	Status         OrderStatus
	Items          []OrderItem
	CreatedAt      time.Time
}

// OrderedQuantity sums the ordered quantity across all lines.
func (o Order) OrderedQuantity() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	return total
}

// Item returns the line for a product, if the order has one.
func (o Order) Item(productID ProductID) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return OrderItem{}, false
}

// OrderItem is one immutable order line. UnitPrice, CostPrice and
// ShippingCost are snapshots taken at order time so profit reporting is
// unaffected by later catalog edits.
type OrderItem struct {
	ID          string
	ProductID   ProductID
	ProductName string // display only; never used for matching
	Quantity    int
	UnitPrice   decimal.Decimal

	// Cost snapshot, captured from the catalog at checkout.
	CostPrice    decimal.NullDecimal
	ShippingCost decimal.NullDecimal

	PreOrder bool // product's pre-order flag at order time
}

// LineTotal returns quantity * unit price.
func (it OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// =============================================================================
// BATCH LINE REQUESTS / RESULTS
// =============================================================================

// LineRequest asks for a quantity of one product within a multi-line
// operation (checkout deduction, early deduction, partial delivery).
type LineRequest struct {
	ProductID ProductID
	Quantity  int
}

// LineResult reports the outcome for one line of a batch operation.
// Batches never roll back already-appended lines: different products
// have independent stock, so a failure on one line leaves the others'
// movements in place, and the caller learns exactly what happened where.
type LineResult struct {
	ProductID ProductID
	Quantity  int

	// Movement is set when a ledger entry was appended for this line.
	Movement *StockMovement

	// Skipped is set when the line was intentionally not processed
	// (e.g. a pre-order line during checkout deduction).
	Skipped    bool
	SkipReason string

	// Err is non-nil when the line failed validation.
	Err error
}

// OK reports whether the line produced a movement.
func (r LineResult) OK() bool {
	return r.Err == nil && !r.Skipped
}
