/*
Package catalog manages the product catalog.

PURPOSE:
  Product creation and edits, the pre-order flag, and the low-stock
  report. The one thing this package deliberately cannot do is edit
  stock: stock_quantity is owned by the ledger and only changes through
  movements, so there is no "set stock" operation anywhere here. Stock
  corrections go through a restock or a reversal.

SEE ALSO:
  - ledger: The engine that owns stock_quantity
*/
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/ledger"
)

// Catalog provides product management over the ledger store.
type Catalog struct {
	store ledger.Store
}

func New(store ledger.Store) *Catalog {
	return &Catalog{store: store}
}

// NewProductInput are the caller-supplied product fields.
type NewProductInput struct {
	Name              string
	UnitPrice         decimal.Decimal
	CostPrice         decimal.NullDecimal
	ShippingCost      decimal.NullDecimal
	InitialStock      int
	LowStockThreshold int
	PreOrder          bool
}

// CreateProduct adds a product. Initial stock is written directly on
// insert; every later change goes through the ledger.
func (c *Catalog) CreateProduct(ctx context.Context, in NewProductInput, now time.Time) (*ledger.Product, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", ledger.ErrValidation)
	}
	if in.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price cannot be negative", ledger.ErrValidation)
	}
	if in.InitialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock cannot be negative", ledger.ErrValidation)
	}

	p := ledger.Product{
		ID:                ledger.ProductID(uuid.NewString()),
		Name:              in.Name,
		UnitPrice:         in.UnitPrice,
		CostPrice:         in.CostPrice,
		ShippingCost:      in.ShippingCost,
		StockQuantity:     in.InitialStock,
		LowStockThreshold: in.LowStockThreshold,
		PreOrder:          in.PreOrder,
		CreatedAt:         now,
	}
	if err := c.store.SaveProduct(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct edits catalog fields of an existing product. Stock is
// untouched regardless of what the caller sends.
func (c *Catalog) UpdateProduct(ctx context.Context, id ledger.ProductID, in NewProductInput) (*ledger.Product, error) {
	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &ledger.NotFoundError{Kind: "product", Ref: string(id)}
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", ledger.ErrValidation)
	}
	if in.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price cannot be negative", ledger.ErrValidation)
	}

	p.Name = in.Name
	p.UnitPrice = in.UnitPrice
	p.CostPrice = in.CostPrice
	p.ShippingCost = in.ShippingCost
	p.LowStockThreshold = in.LowStockThreshold
	p.PreOrder = in.PreOrder

	if err := c.store.SaveProduct(ctx, *p); err != nil {
		return nil, err
	}
	return p, nil
}

// Product returns a product by id.
func (c *Catalog) Product(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &ledger.NotFoundError{Kind: "product", Ref: string(id)}
	}
	return p, nil
}

// Products returns the full catalog.
func (c *Catalog) Products(ctx context.Context) ([]ledger.Product, error) {
	return c.store.ListProducts(ctx)
}

// LowStock returns in-stock products at or below their low-stock
// threshold. Pre-order products never appear: their stock is advisory.
func (c *Catalog) LowStock(ctx context.Context) ([]ledger.Product, error) {
	all, err := c.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	var low []ledger.Product
	for _, p := range all {
		if p.LowOnStock() {
			low = append(low, p)
		}
	}
	return low, nil
}
