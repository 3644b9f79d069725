/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.OrderStore using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The movements side is append-only:
  - No UPDATE statements on the stock_movements table
  - No DELETE statements on the stock_movements table
  - Corrections via reversal movements only

ATOMIC APPEND:
  Append runs in a single DB transaction:
  1. Guarded UPDATE of products.stock_quantity, conditioned on the
     stored stock still equaling the movement's previous_stock. Zero
     rows affected means another writer got there first -> StaleReadError.
  2. INSERT of the movement row. The partial unique index on reversal_of
     enforces one-reversal-per-movement at the database level.

KEY TABLES:
  products:        Catalog rows with the denormalized stock column
  orders:          Order header with the status column
  order_items:     Immutable lines with per-line cost snapshots
  stock_movements: Immutable ledger of all stock changes

INDEXES:
  - idx_movements_product: ListByProduct / chain replay (hot path)
  - idx_movements_order: ListByOrder / delivered-quantity aggregation
  - idx_unique_reversal: At most one reversal per movement
  - idx_orders_code: Order lookup by code

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers never block
  the single writer.

USAGE:
  store, err := sqlite.New("./data/fulfillment.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/ledger"
)

// Store implements ledger.Store and ledger.OrderStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset wipes all data. Demo and test environments only; the movement
// ledger is append-only everywhere else.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"stock_movements", "order_items", "orders", "products"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sqlite_sequence WHERE name = 'stock_movements'`)
	return err
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Products (catalog; stock_quantity mirrors the movement ledger)
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		cost_price TEXT,
		shipping_cost TEXT,
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		low_stock_threshold INTEGER NOT NULL DEFAULT 0,
		pre_order BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Orders (status is the only column that mutates after creation)
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_phone TEXT,
		delivery_method TEXT,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_code ON orders(code);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

	-- Order items (immutable; carry the cost snapshot from order time)
	CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		cost_price TEXT,
		shipping_cost TEXT,
		pre_order BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

	-- Stock movements (append-only ledger)
	CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL REFERENCES products(id),
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		previous_stock INTEGER NOT NULL,
		new_stock INTEGER NOT NULL,
		reason TEXT,
		order_code TEXT,
		operator TEXT,
		reversal_of INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_product
		ON stock_movements(product_id, id);
	CREATE INDEX IF NOT EXISTS idx_movements_order
		ON stock_movements(order_code) WHERE order_code IS NOT NULL;

	-- CRITICAL: a movement can be reversed at most once
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_reversal
		ON stock_movements(reversal_of) WHERE reversal_of IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// Append inserts a movement and updates the product's denormalized stock
// in one database transaction.
func (s *Store) Append(ctx context.Context, m ledger.StockMovement) (ledger.MovementID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.NewStock < 0 {
		return 0, &ledger.InsufficientStockError{
			ProductID: m.ProductID,
			Available: m.PreviousStock,
			Requested: -m.Quantity,
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Optimistic concurrency guard: the update only lands if the stored
	// stock still matches the snapshot the movement was built against.
	res, err := tx.ExecContext(ctx,
		`UPDATE products SET stock_quantity = ? WHERE id = ? AND stock_quantity = ?`,
		m.NewStock, m.ProductID, m.PreviousStock,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update product stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		var actual int
		err := tx.QueryRowContext(ctx,
			`SELECT stock_quantity FROM products WHERE id = ?`, m.ProductID,
		).Scan(&actual)
		if err == sql.ErrNoRows {
			return 0, &ledger.NotFoundError{Kind: "product", Ref: string(m.ProductID)}
		}
		if err != nil {
			return 0, err
		}
		return 0, &ledger.StaleReadError{
			ProductID: m.ProductID,
			Expected:  m.PreviousStock,
			Actual:    actual,
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements
		(product_id, kind, quantity, previous_stock, new_stock, reason, order_code, operator, reversal_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProductID,
		m.Kind,
		m.Quantity,
		m.PreviousStock,
		m.NewStock,
		nullString(m.Reason),
		nullString(string(m.OrderCode)),
		nullString(m.Operator),
		nullMovementID(m.ReversalOf),
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isReversalUniquenessError(err) {
			existing, ferr := s.findReversalOfTx(ctx, tx, m.ReversalOf)
			if ferr == nil && existing != nil {
				return 0, &ledger.AlreadyReversedError{MovementID: m.ReversalOf, ReversalID: existing.ID}
			}
			return 0, &ledger.AlreadyReversedError{MovementID: m.ReversalOf}
		}
		return 0, fmt.Errorf("failed to append movement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return ledger.MovementID(id), nil
}

const movementColumns = `id, product_id, kind, quantity, previous_stock, new_stock,
	reason, order_code, operator, reversal_of, created_at`

// GetMovement returns a single movement by id, or nil.
func (s *Store) GetMovement(ctx context.Context, id ledger.MovementID) (*ledger.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements, err := s.queryMovements(ctx, s.db,
		`SELECT `+movementColumns+` FROM stock_movements WHERE id = ?`, id)
	if err != nil || len(movements) == 0 {
		return nil, err
	}
	return &movements[0], nil
}

// ListByProduct returns all movements for a product in id order.
func (s *Store) ListByProduct(ctx context.Context, productID ledger.ProductID) ([]ledger.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMovements(ctx, s.db,
		`SELECT `+movementColumns+` FROM stock_movements WHERE product_id = ? ORDER BY id ASC`,
		productID)
}

// ListByOrder returns all movements referencing an order in id order.
func (s *Store) ListByOrder(ctx context.Context, code ledger.OrderCode) ([]ledger.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMovements(ctx, s.db,
		`SELECT `+movementColumns+` FROM stock_movements WHERE order_code = ? ORDER BY id ASC`,
		code)
}

// FindReversalOf returns the movement reversing the given one, or nil.
func (s *Store) FindReversalOf(ctx context.Context, id ledger.MovementID) (*ledger.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findReversalOfTx(ctx, s.db, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) findReversalOfTx(ctx context.Context, db querier, id ledger.MovementID) (*ledger.StockMovement, error) {
	movements, err := s.queryMovements(ctx, db,
		`SELECT `+movementColumns+` FROM stock_movements WHERE reversal_of = ?`, id)
	if err != nil || len(movements) == 0 {
		return nil, err
	}
	return &movements[0], nil
}

func (s *Store) queryMovements(ctx context.Context, db querier, query string, args ...any) ([]ledger.StockMovement, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []ledger.StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanMovement(rows *sql.Rows) (ledger.StockMovement, error) {
	var (
		m          ledger.StockMovement
		reason     sql.NullString
		orderCode  sql.NullString
		operator   sql.NullString
		reversalOf sql.NullInt64
		createdAt  string
	)

	err := rows.Scan(
		&m.ID, &m.ProductID, &m.Kind, &m.Quantity, &m.PreviousStock, &m.NewStock,
		&reason, &orderCode, &operator, &reversalOf, &createdAt,
	)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}

	m.Reason = reason.String
	m.OrderCode = ledger.OrderCode(orderCode.String)
	m.Operator = operator.String
	m.ReversalOf = ledger.MovementID(reversalOf.Int64)
	t, _ := time.Parse(time.RFC3339, createdAt)
	m.CreatedAt = t
	return m, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, unit_price, cost_price, shipping_cost,
	stock_quantity, low_stock_threshold, pre_order, created_at`

// GetProduct returns a product by id, or nil.
func (s *Store) GetProduct(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products, err := s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil || len(products) == 0 {
		return nil, err
	}
	return &products[0], nil
}

// ListProducts returns all products ordered by name.
func (s *Store) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY name ASC`)
}

// SaveProduct inserts or updates a product. On update the stock column
// is deliberately left out: the ledger owns it.
func (s *Store) SaveProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products
		(id, name, unit_price, cost_price, shipping_cost, stock_quantity, low_stock_threshold, pre_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit_price = excluded.unit_price,
			cost_price = excluded.cost_price,
			shipping_cost = excluded.shipping_cost,
			low_stock_threshold = excluded.low_stock_threshold,
			pre_order = excluded.pre_order`,
		p.ID,
		p.Name,
		p.UnitPrice.String(),
		nullDecimal(p.CostPrice),
		nullDecimal(p.ShippingCost),
		p.StockQuantity,
		p.LowStockThreshold,
		p.PreOrder,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]ledger.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []ledger.Product
	for rows.Next() {
		var (
			p            ledger.Product
			unitPrice    string
			costPrice    sql.NullString
			shippingCost sql.NullString
			createdAt    string
		)
		err := rows.Scan(&p.ID, &p.Name, &unitPrice, &costPrice, &shippingCost,
			&p.StockQuantity, &p.LowStockThreshold, &p.PreOrder, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.UnitPrice = mustDecimal(unitPrice)
		p.CostPrice = scanNullDecimal(costPrice)
		p.ShippingCost = scanNullDecimal(shippingCost)
		t, _ := time.Parse(time.RFC3339, createdAt)
		p.CreatedAt = t
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// ORDER STORE (ledger.OrderStore interface)
// =============================================================================

// CreateOrder inserts an order and its items atomically.
func (s *Store) CreateOrder(ctx context.Context, o ledger.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders
		(id, code, customer_name, customer_phone, delivery_method, total_amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.Code,
		o.CustomerName,
		nullString(o.CustomerPhone),
		nullString(o.DeliveryMethod),
		o.TotalAmount.String(),
		o.Status,
		o.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items
			(id, order_id, product_id, product_name, quantity, unit_price, cost_price, shipping_cost, pre_order)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			o.ID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice.String(),
			nullDecimal(item.CostPrice),
			nullDecimal(item.ShippingCost),
			item.PreOrder,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrder returns an order with its items, or nil.
func (s *Store) GetOrder(ctx context.Context, code ledger.OrderCode) (*ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders, err := s.queryOrders(ctx, `
		SELECT id, code, customer_name, customer_phone, delivery_method, total_amount, status, created_at
		FROM orders WHERE code = ?`, code)
	if err != nil || len(orders) == 0 {
		return nil, err
	}

	o := orders[0]
	items, err := s.queryItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

// ListOrders returns all orders with items, newest first.
func (s *Store) ListOrders(ctx context.Context) ([]ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders, err := s.queryOrders(ctx, `
		SELECT id, code, customer_name, customer_phone, delivery_method, total_amount, status, created_at
		FROM orders ORDER BY code DESC`)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := s.queryItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// UpdateOrderStatus sets the status column.
func (s *Store) UpdateOrderStatus(ctx context.Context, code ledger.OrderCode, status ledger.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE code = ?`, status, code)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ledger.NotFoundError{Kind: "order", Ref: string(code)}
	}
	return nil
}

// NextOrderNumber returns 1 + the number of orders created on the given
// day (UTC).
func (s *Store) NextOrderNumber(ctx context.Context, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE created_at >= ? AND created_at < ?`,
		start.Format(time.RFC3339), end.Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]ledger.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []ledger.Order
	for rows.Next() {
		var (
			o           ledger.Order
			phone       sql.NullString
			delivery    sql.NullString
			totalAmount string
			createdAt   string
		)
		err := rows.Scan(&o.ID, &o.Code, &o.CustomerName, &phone, &delivery,
			&totalAmount, &o.Status, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.CustomerPhone = phone.String
		o.DeliveryMethod = delivery.String
		o.TotalAmount = mustDecimal(totalAmount)
		t, _ := time.Parse(time.RFC3339, createdAt)
		o.CreatedAt = t
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) queryItems(ctx context.Context, orderID string) ([]ledger.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, cost_price, shipping_cost, pre_order
		FROM order_items WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []ledger.OrderItem
	for rows.Next() {
		var (
			item         ledger.OrderItem
			unitPrice    string
			costPrice    sql.NullString
			shippingCost sql.NullString
		)
		err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity,
			&unitPrice, &costPrice, &shippingCost, &item.PreOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		item.UnitPrice = mustDecimal(unitPrice)
		item.CostPrice = scanNullDecimal(costPrice)
		item.ShippingCost = scanNullDecimal(shippingCost)
		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullMovementID(id ledger.MovementID) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func scanNullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: mustDecimal(s.String), Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isReversalUniquenessError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "idx_unique_reversal")
}
