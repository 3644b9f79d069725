/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Prices and costs travel as decimal strings ("12.50"), never floats.
  Nullable costs are pointers; absent means the admin never set them.

VALIDATION:
  Validation is done in handlers and domain packages, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/fulfillment-engine/ledger"
)

// =============================================================================
// PRODUCT TYPES
// =============================================================================

// ProductDTO represents a catalog product in API responses.
type ProductDTO struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	UnitPrice         string  `json:"unit_price"`
	CostPrice         *string `json:"cost_price,omitempty"`
	ShippingCost      *string `json:"shipping_cost,omitempty"`
	StockQuantity     int     `json:"stock_quantity"`
	LowStockThreshold int     `json:"low_stock_threshold"`
	PreOrder          bool    `json:"pre_order"`
	LowOnStock        bool    `json:"low_on_stock"`
	CreatedAt         string  `json:"created_at,omitempty"`
}

// ProductRequest is the request to create or update a product.
type ProductRequest struct {
	Name              string  `json:"name"`
	UnitPrice         string  `json:"unit_price"`
	CostPrice         *string `json:"cost_price"`
	ShippingCost      *string `json:"shipping_cost"`
	InitialStock      int     `json:"initial_stock"`
	LowStockThreshold int     `json:"low_stock_threshold"`
	PreOrder          bool    `json:"pre_order"`
}

// =============================================================================
// ORDER TYPES
// =============================================================================

// OrderDTO represents an order in API responses.
type OrderDTO struct {
	ID             string         `json:"id"`
	Code           string         `json:"code"`
	CustomerName   string         `json:"customer_name"`
	CustomerPhone  string         `json:"customer_phone,omitempty"`
	DeliveryMethod string         `json:"delivery_method,omitempty"`
	TotalAmount    string         `json:"total_amount"`
	Status         string         `json:"status"`
	Items          []OrderItemDTO `json:"items"`
	CreatedAt      string         `json:"created_at"`
}

// OrderItemDTO is one immutable order line with its cost snapshot.
type OrderItemDTO struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    string  `json:"unit_price"`
	CostPrice    *string `json:"cost_price,omitempty"`
	ShippingCost *string `json:"shipping_cost,omitempty"`
	PreOrder     bool    `json:"pre_order"`
}

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	CustomerName   string    `json:"customer_name"`
	CustomerPhone  string    `json:"customer_phone"`
	DeliveryMethod string    `json:"delivery_method"`
	Lines          []LineDTO `json:"lines"`
}

// LineDTO asks for a quantity of one product.
type LineDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// LinesRequest carries the lines for a batch stock operation plus the
// staff member performing it.
type LinesRequest struct {
	Operator string    `json:"operator"`
	Lines    []LineDTO `json:"lines"`
}

// LineResultDTO reports the outcome for one line of a batch operation.
type LineResultDTO struct {
	ProductID  string       `json:"product_id"`
	Quantity   int          `json:"quantity"`
	Movement   *MovementDTO `json:"movement,omitempty"`
	Skipped    bool         `json:"skipped,omitempty"`
	SkipReason string       `json:"skip_reason,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// =============================================================================
// MOVEMENT TYPES
// =============================================================================

// MovementDTO represents one ledger entry in API responses.
type MovementDTO struct {
	ID            int64  `json:"id"`
	ProductID     string `json:"product_id"`
	Kind          string `json:"kind"`
	Quantity      int    `json:"quantity"`
	PreviousStock int    `json:"previous_stock"`
	NewStock      int    `json:"new_stock"`
	Reason        string `json:"reason,omitempty"`
	OrderCode     string `json:"order_code,omitempty"`
	Operator      string `json:"operator,omitempty"`
	ReversalOf    int64  `json:"reversal_of,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// ReverseRequest identifies who is undoing a movement.
type ReverseRequest struct {
	Operator string `json:"operator"`
}

// ReceiveStockRequest records a supplier receipt.
type ReceiveStockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	Operator  string `json:"operator"`
}

// QuantitiesDTO is the delivered/remaining map consumed by the packing
// UI and packing-slip printing.
type QuantitiesDTO struct {
	OrderCode  string         `json:"order_code"`
	Quantities map[string]int `json:"quantities"`
}

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the error envelope for all failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toProductDTO(p ledger.Product) ProductDTO {
	dto := ProductDTO{
		ID:                string(p.ID),
		Name:              p.Name,
		UnitPrice:         p.UnitPrice.String(),
		StockQuantity:     p.StockQuantity,
		LowStockThreshold: p.LowStockThreshold,
		PreOrder:          p.PreOrder,
		LowOnStock:        p.LowOnStock(),
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
	}
	if p.CostPrice.Valid {
		s := p.CostPrice.Decimal.String()
		dto.CostPrice = &s
	}
	if p.ShippingCost.Valid {
		s := p.ShippingCost.Decimal.String()
		dto.ShippingCost = &s
	}
	return dto
}

func toOrderDTO(o ledger.Order) OrderDTO {
	items := make([]OrderItemDTO, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemDTO{
			ProductID:   string(item.ProductID),
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.String(),
			PreOrder:    item.PreOrder,
		}
		if item.CostPrice.Valid {
			s := item.CostPrice.Decimal.String()
			items[i].CostPrice = &s
		}
		if item.ShippingCost.Valid {
			s := item.ShippingCost.Decimal.String()
			items[i].ShippingCost = &s
		}
	}
	return OrderDTO{
		ID:             o.ID,
		Code:           string(o.Code),
		CustomerName:   o.CustomerName,
		CustomerPhone:  o.CustomerPhone,
		DeliveryMethod: o.DeliveryMethod,
		TotalAmount:    o.TotalAmount.String(),
		Status:         string(o.Status),
		Items:          items,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
	}
}

func toMovementDTO(m ledger.StockMovement) MovementDTO {
	return MovementDTO{
		ID:            int64(m.ID),
		ProductID:     string(m.ProductID),
		Kind:          string(m.Kind),
		Quantity:      m.Quantity,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		Reason:        m.Reason,
		OrderCode:     string(m.OrderCode),
		Operator:      m.Operator,
		ReversalOf:    int64(m.ReversalOf),
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

func toMovementDTOs(movements []ledger.StockMovement) []MovementDTO {
	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = toMovementDTO(m)
	}
	return dtos
}

func toLineResultDTOs(results []ledger.LineResult) []LineResultDTO {
	dtos := make([]LineResultDTO, len(results))
	for i, r := range results {
		dto := LineResultDTO{
			ProductID:  string(r.ProductID),
			Quantity:   r.Quantity,
			Skipped:    r.Skipped,
			SkipReason: r.SkipReason,
		}
		if r.Movement != nil {
			m := toMovementDTO(*r.Movement)
			dto.Movement = &m
		}
		if r.Err != nil {
			dto.Error = r.Err.Error()
		}
		dtos[i] = dto
	}
	return dtos
}

func toLineRequests(lines []LineDTO) []ledger.LineRequest {
	reqs := make([]ledger.LineRequest, len(lines))
	for i, l := range lines {
		reqs[i] = ledger.LineRequest{ProductID: ledger.ProductID(l.ProductID), Quantity: l.Quantity}
	}
	return reqs
}
