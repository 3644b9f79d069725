/*
handlers.go - HTTP API handlers for the fulfillment engine

PURPOSE:
  Exposes the stock ledger and order fulfillment engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Products:
    GET    /api/products                   List catalog
    POST   /api/products                   Create product
    GET    /api/products/low-stock         Low-stock report
    GET    /api/products/{id}              Get product
    PUT    /api/products/{id}              Update catalog fields
    GET    /api/products/{id}/movements    Movement history for product

  Orders:
    GET    /api/orders                     List orders
    POST   /api/orders                     Checkout (creates + auto-deducts)
    GET    /api/orders/{code}              Get order
    GET    /api/orders/{code}/movements    Movement history for order
    POST   /api/orders/{code}/deduct       Checkout deduction (explicit)
    POST   /api/orders/{code}/manual-deduct Early pre-order fulfillment
    POST   /api/orders/{code}/deliver      Partial delivery
    POST   /api/orders/{code}/cancel       Cancel + restock
    POST   /api/orders/{code}/complete-packing Staff packing confirmation
    GET    /api/orders/{code}/delivered    Delivered quantities per product
    GET    /api/orders/{code}/remaining    Remaining quantities per product

  Movements:
    GET    /api/movements/{id}             Get one ledger entry
    POST   /api/movements/{id}/reverse     Undo one movement

  Stock:
    POST   /api/stock/receive              Supplier receipt

  Scenarios (development only):
    GET    /api/scenarios                  List demo scenarios
    GET    /api/scenarios/current          Currently loaded scenario
    POST   /api/scenarios/load             Reset DB and load a scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Product/order/movement not found
  - 409: Conflict (already reversed, illegal transition, stale read)
  - 422: Insufficient stock
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/fulfillment-engine/catalog"
	"github.com/warp/fulfillment-engine/fulfillment"
	"github.com/warp/fulfillment-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog     *catalog.Catalog
	Fulfillment *fulfillment.Service
	Store       ledger.Store

	// Now supplies the current time to every engine call. Overridable in
	// tests; the engine itself carries no clock.
	Now func() time.Time

	currentScenario string
}

// NewHandler creates a handler over one store implementing both the
// ledger and order interfaces.
func NewHandler(store interface {
	ledger.Store
	ledger.OrderStore
}) *Handler {
	return &Handler{
		Catalog:     catalog.New(store),
		Fulfillment: fulfillment.NewService(store, store),
		Store:       store,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.Products(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	p, err := h.Catalog.Product(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// CreateProduct adds a product to the catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := productInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product fields", err)
		return
	}

	p, err := h.Catalog.CreateProduct(r.Context(), in, h.Now())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(*p))
}

// UpdateProduct edits catalog fields. Stock cannot be edited here; it
// only changes through movements.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := productInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product fields", err)
		return
	}

	p, err := h.Catalog.UpdateProduct(r.Context(), id, in)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// LowStock returns in-stock products at or below their threshold.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.LowStock(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ProductMovements returns a product's full ledger history.
func (h *Handler) ProductMovements(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	movements, err := h.Store.ListByProduct(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(movements))
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// ListOrders returns all orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	store, ok := h.Store.(ledger.OrderStore)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Order store unavailable", nil)
		return
	}
	orders, err := store.ListOrders(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOrder returns one order with items and current status.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	code := ledger.OrderCode(chi.URLParam(r, "code"))

	order, err := h.Fulfillment.Order(r.Context(), code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*order))
}

// CreateOrder handles checkout: records the order and auto-deducts
// stock for every non-pre-order line.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	order, results, err := h.Fulfillment.CreateOrder(r.Context(), fulfillment.NewOrderRequest{
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		DeliveryMethod: req.DeliveryMethod,
		Lines:          toLineRequests(req.Lines),
	}, h.Now())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Order OrderDTO        `json:"order"`
		Lines []LineResultDTO `json:"lines"`
	}{toOrderDTO(*order), toLineResultDTOs(results)})
}

// OrderMovements returns every ledger entry referencing the order.
func (h *Handler) OrderMovements(w http.ResponseWriter, r *http.Request) {
	code := ledger.OrderCode(chi.URLParam(r, "code"))

	movements, err := h.Store.ListByOrder(r.Context(), code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(movements))
}

// DeductForOrder runs the checkout deduction for the given lines.
func (h *Handler) DeductForOrder(w http.ResponseWriter, r *http.Request) {
	h.runLines(w, r, func(code ledger.OrderCode, req LinesRequest) ([]ledger.LineResult, error) {
		return h.Fulfillment.DeductForOrder(r.Context(), code, toLineRequests(req.Lines), h.Now())
	})
}

// ManualEarlyDeduct fulfills pre-order lines from physical inventory.
func (h *Handler) ManualEarlyDeduct(w http.ResponseWriter, r *http.Request) {
	h.runLines(w, r, func(code ledger.OrderCode, req LinesRequest) ([]ledger.LineResult, error) {
		return h.Fulfillment.ManualEarlyDeduct(r.Context(), code, toLineRequests(req.Lines), req.Operator, h.Now())
	})
}

// RecordPartialDelivery records shipping part of an order.
func (h *Handler) RecordPartialDelivery(w http.ResponseWriter, r *http.Request) {
	h.runLines(w, r, func(code ledger.OrderCode, req LinesRequest) ([]ledger.LineResult, error) {
		return h.Fulfillment.RecordPartialDelivery(r.Context(), code, toLineRequests(req.Lines), req.Operator, h.Now())
	})
}

// runLines is the shared body for the three per-line batch endpoints.
func (h *Handler) runLines(w http.ResponseWriter, r *http.Request, fn func(ledger.OrderCode, LinesRequest) ([]ledger.LineResult, error)) {
	code := ledger.OrderCode(chi.URLParam(r, "code"))

	var req LinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "At least one line is required", nil)
		return
	}

	results, err := fn(code, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineResultDTOs(results))
}

// CancelOrder restocks delivered quantities and cancels the order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	code := ledger.OrderCode(chi.URLParam(r, "code"))

	var req ReverseRequest // reuses the operator-only body
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	operator := req.Operator
	if operator == "" {
		operator = ledger.OperatorSystem
	}

	order, err := h.Fulfillment.CancelOrder(r.Context(), code, operator, h.Now())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*order))
}

// CompletePacking records the explicit staff confirmation that the
// physical box is packed.
func (h *Handler) CompletePacking(w http.ResponseWriter, r *http.Request) {
	code := ledger.OrderCode(chi.URLParam(r, "code"))

	order, err := h.Fulfillment.CompletePacking(r.Context(), code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*order))
}

// DeliveredQuantities feeds the packing slip and packing UI.
func (h *Handler) DeliveredQuantities(w http.ResponseWriter, r *http.Request) {
	code := ledger.OrderCode(chi.URLParam(r, "code"))

	quantities, err := h.Fulfillment.DeliveredQuantities(r.Context(), code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuantitiesDTO{OrderCode: string(code), Quantities: quantities})
}

// RemainingQuantities returns undelivered amounts per product.
func (h *Handler) RemainingQuantities(w http.ResponseWriter, r *http.Request) {
	code := ledger.OrderCode(chi.URLParam(r, "code"))

	quantities, err := h.Fulfillment.RemainingQuantities(r.Context(), code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuantitiesDTO{OrderCode: string(code), Quantities: quantities})
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// GetMovement returns one ledger entry.
func (h *Handler) GetMovement(w http.ResponseWriter, r *http.Request) {
	id, err := movementID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid movement id", err)
		return
	}

	m, err := h.Store.GetMovement(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Movement not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(*m))
}

// ReverseMovement undoes one prior movement.
func (h *Handler) ReverseMovement(w http.ResponseWriter, r *http.Request) {
	id, err := movementID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid movement id", err)
		return
	}

	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Operator == "" {
		writeError(w, http.StatusBadRequest, "Operator is required", nil)
		return
	}

	m, err := h.Fulfillment.ReverseMovement(r.Context(), id, req.Operator, h.Now())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(*m))
}

// ReceiveStock records a supplier receipt.
func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req ReceiveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := h.Fulfillment.ReceiveStock(r.Context(),
		ledger.ProductID(req.ProductID), req.Quantity, req.Reason, req.Operator, h.Now())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(*m))
}

// =============================================================================
// HELPERS
// =============================================================================

func movementID(r *http.Request) (ledger.MovementID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return ledger.MovementID(id), nil
}

func productInput(req ProductRequest) (catalog.NewProductInput, error) {
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		return catalog.NewProductInput{}, err
	}

	in := catalog.NewProductInput{
		Name:              req.Name,
		UnitPrice:         unitPrice,
		InitialStock:      req.InitialStock,
		LowStockThreshold: req.LowStockThreshold,
		PreOrder:          req.PreOrder,
	}
	if req.CostPrice != nil {
		d, err := decimal.NewFromString(*req.CostPrice)
		if err != nil {
			return catalog.NewProductInput{}, err
		}
		in.CostPrice = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	if req.ShippingCost != nil {
		d, err := decimal.NewFromString(*req.ShippingCost)
		if err != nil {
			return catalog.NewProductInput{}, err
		}
		in.ShippingCost = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return in, nil
}

// writeEngineError maps domain errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrInsufficientStock):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient stock", err)
	case errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrConflict),
		errors.Is(err, ledger.ErrStaleRead):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, ledger.ErrUnsupportedKind),
		errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
