// Package store provides in-memory Store implementations for tests.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/fulfillment-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store and ledger.OrderStore with the same
// semantics as the SQLite store: append-only movements, optimistic stock
// check, denormalized product stock updated atomically with each append.
type Memory struct {
	mu        sync.RWMutex
	nextID    ledger.MovementID
	movements []ledger.StockMovement
	reversals map[ledger.MovementID]ledger.MovementID // target -> reversal
	products  map[ledger.ProductID]ledger.Product
	orders    map[ledger.OrderCode]ledger.Order
}

func NewMemory() *Memory {
	return &Memory{
		reversals: make(map[ledger.MovementID]ledger.MovementID),
		products:  make(map[ledger.ProductID]ledger.Product),
		orders:    make(map[ledger.OrderCode]ledger.Order),
	}
}

// Reset wipes all data. Demo and test environments only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID = 0
	m.movements = nil
	m.reversals = make(map[ledger.MovementID]ledger.MovementID)
	m.products = make(map[ledger.ProductID]ledger.Product)
	m.orders = make(map[ledger.OrderCode]ledger.Order)
	return nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// Append adds a movement and updates the product's stock. Append-only.
func (m *Memory) Append(_ context.Context, mv ledger.StockMovement) (ledger.MovementID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[mv.ProductID]
	if !ok {
		return 0, &ledger.NotFoundError{Kind: "product", Ref: string(mv.ProductID)}
	}
	if p.StockQuantity != mv.PreviousStock {
		return 0, &ledger.StaleReadError{
			ProductID: mv.ProductID,
			Expected:  mv.PreviousStock,
			Actual:    p.StockQuantity,
		}
	}
	if mv.NewStock < 0 {
		return 0, &ledger.InsufficientStockError{
			ProductID: mv.ProductID,
			Available: p.StockQuantity,
			Requested: -mv.Quantity,
		}
	}
	if mv.ReversalOf != 0 {
		if existing, taken := m.reversals[mv.ReversalOf]; taken {
			return 0, &ledger.AlreadyReversedError{MovementID: mv.ReversalOf, ReversalID: existing}
		}
	}

	m.nextID++
	mv.ID = m.nextID
	m.movements = append(m.movements, mv)
	if mv.ReversalOf != 0 {
		m.reversals[mv.ReversalOf] = mv.ID
	}

	p.StockQuantity = mv.NewStock
	m.products[mv.ProductID] = p
	return mv.ID, nil
}

func (m *Memory) GetMovement(_ context.Context, id ledger.MovementID) (*ledger.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mv := range m.movements {
		if mv.ID == id {
			out := mv
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListByProduct(_ context.Context, productID ledger.ProductID) ([]ledger.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.StockMovement
	for _, mv := range m.movements {
		if mv.ProductID == productID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *Memory) ListByOrder(_ context.Context, code ledger.OrderCode) ([]ledger.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.StockMovement
	for _, mv := range m.movements {
		if mv.OrderCode == code {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *Memory) FindReversalOf(_ context.Context, id ledger.MovementID) (*ledger.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reversalID, ok := m.reversals[id]
	if !ok {
		return nil, nil
	}
	for _, mv := range m.movements {
		if mv.ID == reversalID {
			out := mv
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetProduct(_ context.Context, id ledger.ProductID) (*ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (m *Memory) ListProducts(_ context.Context) ([]ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveProduct inserts or updates catalog fields. After first insert the
// stock column is owned by the ledger and left untouched here.
func (m *Memory) SaveProduct(_ context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.products[p.ID]; ok {
		p.StockQuantity = existing.StockQuantity
	}
	m.products[p.ID] = p
	return nil
}

// =============================================================================
// ORDER STORE
// =============================================================================

func (m *Memory) CreateOrder(_ context.Context, o ledger.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[o.Code] = o
	return nil
}

func (m *Memory) GetOrder(_ context.Context, code ledger.OrderCode) (*ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[code]
	if !ok {
		return nil, nil
	}
	out := o
	out.Items = append([]ledger.OrderItem(nil), o.Items...)
	return &out, nil
}

func (m *Memory) ListOrders(_ context.Context) ([]ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code > out[j].Code })
	return out, nil
}

func (m *Memory) UpdateOrderStatus(_ context.Context, code ledger.OrderCode, status ledger.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[code]
	if !ok {
		return &ledger.NotFoundError{Kind: "order", Ref: string(code)}
	}
	o.Status = status
	m.orders[code] = o
	return nil
}

func (m *Memory) NextOrderNumber(_ context.Context, day time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	y, mo, d := day.Date()
	n := 0
	for _, o := range m.orders {
		oy, om, od := o.CreatedAt.Date()
		if oy == y && om == mo && od == d {
			n++
		}
	}
	return n + 1, nil
}
