/*
service.go - Order-level fulfillment operations

PURPOSE:
  Wraps the ledger engine with order-aware business rules. Every
  operation here is what the surrounding application (checkout form,
  packing UI, admin dashboard) actually calls: deduct stock for a new
  order, fulfill pre-order lines early, record a partial delivery,
  reverse a mistaken movement, cancel an order, confirm packing.

BATCH SEMANTICS:
  Multi-line operations process lines sequentially and independently.
  A failure on one line never rolls back movements already appended for
  other lines - different products have independent stock - and the
  caller gets a per-line result list saying exactly what happened where.

STATUS RECOMPUTATION:
  After every movement that touches an order, the order's status is
  re-derived from the ledger (see status.go). The two exceptions are
  completed (explicit staff confirmation only) and cancelled (explicit,
  with compensating restocks).

TIME:
  "now" is always supplied by the caller; the service carries no clock.

SEE ALSO:
  - ledger/engine.go: The movement primitives used here
  - status.go: The derivation rule
*/
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/ledger"
)

// Service is the order fulfillment engine.
type Service struct {
	store  ledger.Store
	orders ledger.OrderStore
	engine *ledger.Engine
	agg    *ledger.Aggregator
}

func NewService(store ledger.Store, orders ledger.OrderStore) *Service {
	return &Service{
		store:  store,
		orders: orders,
		engine: ledger.NewEngine(store),
		agg:    ledger.NewAggregator(store),
	}
}

// Aggregator exposes the read side for callers that only derive numbers.
func (s *Service) Aggregator() *ledger.Aggregator { return s.agg }

// =============================================================================
// ORDER CREATION (checkout)
// =============================================================================

// NewOrderRequest is the validated input for creating an order.
type NewOrderRequest struct {
	CustomerName   string
	CustomerPhone  string
	DeliveryMethod string
	Lines          []ledger.LineRequest
}

// CreateOrder creates an order at checkout: assigns a chronologically
// sortable code, snapshots unit price and costs per line, and issues the
// automatic order_deduction for every in-stock (non-pre-order) line.
// Pre-order lines are recorded but deduct nothing until staff fulfill
// them. Returns the order plus per-line deduction results.
func (s *Service) CreateOrder(ctx context.Context, req NewOrderRequest, now time.Time) (*ledger.Order, []ledger.LineResult, error) {
	if req.CustomerName == "" {
		return nil, nil, fmt.Errorf("%w: customer name is required", ledger.ErrValidation)
	}
	if len(req.Lines) == 0 {
		return nil, nil, fmt.Errorf("%w: order needs at least one line", ledger.ErrValidation)
	}

	// Snapshot catalog state into immutable line items.
	items := make([]ledger.OrderItem, 0, len(req.Lines))
	total := decimal.Zero
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: quantity must be positive for product %s",
				ledger.ErrValidation, line.ProductID)
		}
		p, err := s.store.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if p == nil {
			return nil, nil, &ledger.NotFoundError{Kind: "product", Ref: string(line.ProductID)}
		}
		item := ledger.OrderItem{
			ID:           uuid.NewString(),
			ProductID:    p.ID,
			ProductName:  p.Name,
			Quantity:     line.Quantity,
			UnitPrice:    p.UnitPrice,
			CostPrice:    p.CostPrice,
			ShippingCost: p.ShippingCost,
			PreOrder:     p.PreOrder,
		}
		items = append(items, item)
		total = total.Add(item.LineTotal())
	}

	seq, err := s.orders.NextOrderNumber(ctx, now)
	if err != nil {
		return nil, nil, err
	}

	order := ledger.Order{
		ID:             uuid.NewString(),
		Code:           MakeOrderCode(now, seq),
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		DeliveryMethod: req.DeliveryMethod,
		TotalAmount:    total,
		Status:         ledger.StatusPending,
		Items:          items,
		CreatedAt:      now,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, nil, err
	}

	results, err := s.DeductForOrder(ctx, order.Code, req.Lines, now)
	if err != nil {
		return nil, nil, err
	}

	refreshed, err := s.refreshStatus(ctx, order.Code)
	if err != nil {
		return nil, nil, err
	}
	return refreshed, results, nil
}

// =============================================================================
// DEDUCTING OPERATIONS (per-line batches)
// =============================================================================

// DeductForOrder issues the checkout order_deduction for the given
// lines. Pre-order lines are skipped: they deduct nothing until staff
// fulfill them early or the group order arrives.
func (s *Service) DeductForOrder(ctx context.Context, code ledger.OrderCode, lines []ledger.LineRequest, now time.Time) ([]ledger.LineResult, error) {
	return s.deductLines(ctx, code, lines, ledger.KindOrderDeduction,
		"checkout deduction", ledger.OperatorSystem, now)
}

// ManualEarlyDeduct fulfills pre-order lines from physical inventory
// ahead of the group cutoff. Non-pre-order lines are skipped - their
// stock was already deducted at checkout.
func (s *Service) ManualEarlyDeduct(ctx context.Context, code ledger.OrderCode, lines []ledger.LineRequest, operator string, now time.Time) ([]ledger.LineResult, error) {
	return s.deductLines(ctx, code, lines, ledger.KindManualEarlyDeduction,
		"early fulfillment from inventory", operator, now)
}

// RecordPartialDelivery records shipping part of an order. Per line, the
// quantity must not exceed what is still undelivered.
func (s *Service) RecordPartialDelivery(ctx context.Context, code ledger.OrderCode, lines []ledger.LineRequest, operator string, now time.Time) ([]ledger.LineResult, error) {
	return s.deductLines(ctx, code, lines, ledger.KindPartialDelivery,
		"partial delivery", operator, now)
}

// deductLines is the shared per-line loop. Lines are independent: each
// is validated and appended on its own, failures are reported in the
// result and processing continues.
func (s *Service) deductLines(ctx context.Context, code ledger.OrderCode, lines []ledger.LineRequest, kind ledger.MovementKind, reason, operator string, now time.Time) ([]ledger.LineResult, error) {
	order, err := s.getOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, &ledger.ConflictError{OrderCode: code, Status: order.Status, Attempted: "deduct stock"}
	}

	results := make([]ledger.LineResult, 0, len(lines))
	for _, line := range lines {
		results = append(results, s.deductLine(ctx, order, line, kind, reason, operator, now))
	}

	if _, err := s.refreshStatus(ctx, code); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Service) deductLine(ctx context.Context, order *ledger.Order, line ledger.LineRequest, kind ledger.MovementKind, reason, operator string, now time.Time) ledger.LineResult {
	res := ledger.LineResult{ProductID: line.ProductID, Quantity: line.Quantity}

	item, ok := order.Item(line.ProductID)
	if !ok {
		res.Err = &ledger.NotFoundError{Kind: "order line", Ref: string(line.ProductID)}
		return res
	}

	switch kind {
	case ledger.KindOrderDeduction:
		if item.PreOrder {
			res.Skipped = true
			res.SkipReason = "pre-order line: no stock held until fulfillment"
			return res
		}
	case ledger.KindManualEarlyDeduction:
		if !item.PreOrder {
			res.Skipped = true
			res.SkipReason = "in-stock line: already deducted at checkout"
			return res
		}
	}

	// Never over-deliver a line: delivered + this must stay <= ordered.
	remaining, err := s.agg.RemainingQuantity(ctx, order.Code, item)
	if err != nil {
		res.Err = err
		return res
	}
	if line.Quantity > remaining {
		res.Err = fmt.Errorf("%w: %d requested but only %d of line remains undelivered",
			ledger.ErrValidation, line.Quantity, remaining)
		return res
	}

	m, err := s.engine.Deduct(ctx, line.ProductID, line.Quantity, kind, order.Code, reason, operator, now)
	if err != nil {
		res.Err = err
		return res
	}
	res.Movement = m
	return res
}

// =============================================================================
// REVERSAL
// =============================================================================

// ReverseMovement undoes one prior movement and re-derives the linked
// order's status (a reversed delivery stops counting as delivered).
func (s *Service) ReverseMovement(ctx context.Context, id ledger.MovementID, operator string, now time.Time) (*ledger.StockMovement, error) {
	m, err := s.engine.Reverse(ctx, id, operator, now)
	if err != nil {
		return nil, err
	}
	if m.OrderCode != "" {
		if _, err := s.refreshStatus(ctx, m.OrderCode); err != nil {
			return m, err
		}
	}
	return m, nil
}

// =============================================================================
// CANCELLATION AND PACKING
// =============================================================================

// CancelOrder restores every line's net delivered quantity via restock
// movements, then sets the order to cancelled. Fails with ConflictError
// when the order is already completed or cancelled.
func (s *Service) CancelOrder(ctx context.Context, code ledger.OrderCode, operator string, now time.Time) (*ledger.Order, error) {
	order, err := s.getOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	if !CanCancel(order.Status) {
		return nil, &ledger.ConflictError{OrderCode: code, Status: order.Status, Attempted: "cancel"}
	}

	delivered, err := s.agg.DeliveredByOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	for _, item := range order.Items {
		qty := delivered[item.ProductID]
		if qty <= 0 {
			continue
		}
		reason := fmt.Sprintf("order %s cancelled", code)
		if _, err := s.engine.Restock(ctx, item.ProductID, qty, code, reason, operator, now); err != nil {
			return nil, err
		}
	}

	if err := s.orders.UpdateOrderStatus(ctx, code, ledger.StatusCancelled); err != nil {
		return nil, err
	}
	order.Status = ledger.StatusCancelled
	return order, nil
}

// CompletePacking is the one transition not derivable from the ledger:
// a human confirms the physical box is packed. Legal only from
// ready_for_pickup.
func (s *Service) CompletePacking(ctx context.Context, code ledger.OrderCode) (*ledger.Order, error) {
	order, err := s.getOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	if !CanCompletePacking(order.Status) {
		return nil, &ledger.ConflictError{OrderCode: code, Status: order.Status, Attempted: "complete packing"}
	}
	if err := s.orders.UpdateOrderStatus(ctx, code, ledger.StatusCompleted); err != nil {
		return nil, err
	}
	order.Status = ledger.StatusCompleted
	return order, nil
}

// =============================================================================
// SUPPLIER RESTOCK
// =============================================================================

// ReceiveStock records a supplier receipt for a product.
func (s *Service) ReceiveStock(ctx context.Context, productID ledger.ProductID, quantity int, reason, operator string, now time.Time) (*ledger.StockMovement, error) {
	if reason == "" {
		reason = "supplier receipt"
	}
	return s.engine.Restock(ctx, productID, quantity, "", reason, operator, now)
}

// =============================================================================
// READ SIDE (packing slips, packing UI)
// =============================================================================

// DeliveredQuantities returns delivered quantity per product display
// name for an order. Matching is done by product id internally; names
// are resolved from the order's own line snapshots for display.
func (s *Service) DeliveredQuantities(ctx context.Context, code ledger.OrderCode) (map[string]int, error) {
	order, err := s.getOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	delivered, err := s.agg.DeliveredByOrder(ctx, code)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		out[item.ProductName] = delivered[item.ProductID]
	}
	return out, nil
}

// RemainingQuantities returns undelivered quantity per product display
// name for an order.
func (s *Service) RemainingQuantities(ctx context.Context, code ledger.OrderCode) (map[string]int, error) {
	order, err := s.getOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	delivered, err := s.agg.DeliveredByOrder(ctx, code)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		remaining := item.Quantity - delivered[item.ProductID]
		if remaining < 0 {
			remaining = 0
		}
		out[item.ProductName] = remaining
	}
	return out, nil
}

// Order returns an order with its current status.
func (s *Service) Order(ctx context.Context, code ledger.OrderCode) (*ledger.Order, error) {
	return s.getOrder(ctx, code)
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Service) getOrder(ctx context.Context, code ledger.OrderCode) (*ledger.Order, error) {
	order, err := s.orders.GetOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &ledger.NotFoundError{Kind: "order", Ref: string(code)}
	}
	return order, nil
}

// refreshStatus re-derives the order's status from the ledger. Terminal
// states stick; completed is never produced here.
func (s *Service) refreshStatus(ctx context.Context, code ledger.OrderCode) (*ledger.Order, error) {
	order, err := s.getOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return order, nil
	}

	delivered, err := s.agg.DeliveredByOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, item := range order.Items {
		total += delivered[item.ProductID]
	}

	next := DeriveStatus(order.OrderedQuantity(), total)
	if next != order.Status {
		if err := s.orders.UpdateOrderStatus(ctx, code, next); err != nil {
			return nil, err
		}
		order.Status = next
	}
	return order, nil
}
