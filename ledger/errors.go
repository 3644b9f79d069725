/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the structured variants carry
  the product, movement, or order the failure is about.

ERROR CATEGORIES:
  1. Validation errors - malformed input (bad quantity, unknown kind)
  2. Stock errors - a movement would drive stock negative
  3. Reversal errors - illegal undo attempts
  4. Concurrency errors - optimistic stock check tripped
  5. State errors - illegal order status transition

PROPAGATION:
  Every error is returned to the immediate caller; the engine never
  swallows one. Multi-line operations report per-line errors inside
  LineResult instead of failing the batch.

SEE ALSO:
  - engine.go: Produces most of these
  - store.go: Store implementations map constraint failures onto these
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input: non-positive
	// quantities, unknown movement kinds, missing references.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when a movement would drive a
	// product's stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNotFound is returned when a referenced movement, product or
	// order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyReversed is returned when the target movement already has
	// a reversal pointing at it. A movement can be reversed at most once.
	ErrAlreadyReversed = errors.New("movement already reversed")

	// ErrUnsupportedKind is returned when trying to reverse a movement
	// whose kind is not reversible (a reversal itself).
	ErrUnsupportedKind = errors.New("movement kind cannot be reversed")

	// ErrStaleRead is returned when the optimistic concurrency guard
	// trips: the product's stored stock no longer matches the snapshot
	// the movement was built against. The caller retries the whole
	// read-validate-write cycle.
	ErrStaleRead = errors.New("stale stock read")

	// ErrConflict is returned for illegal order status transitions, e.g.
	// cancelling a completed order.
	ErrConflict = errors.New("conflicting order state")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError details a stock shortage.
type InsufficientStockError struct {
	ProductID ProductID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StaleReadError details an optimistic check failure.
type StaleReadError struct {
	ProductID ProductID
	Expected  int // stock snapshot the movement was built against
	Actual    int // stock the store currently records
}

func (e *StaleReadError) Error() string {
	return fmt.Sprintf("stale stock read for product %s: expected %d, store has %d",
		e.ProductID, e.Expected, e.Actual)
}

func (e *StaleReadError) Unwrap() error { return ErrStaleRead }

// AlreadyReversedError identifies the existing reversal.
type AlreadyReversedError struct {
	MovementID MovementID
	ReversalID MovementID
}

func (e *AlreadyReversedError) Error() string {
	return fmt.Sprintf("movement %d already reversed by movement %d", e.MovementID, e.ReversalID)
}

func (e *AlreadyReversedError) Unwrap() error { return ErrAlreadyReversed }

// UnsupportedKindError identifies an irreversible movement.
type UnsupportedKindError struct {
	MovementID MovementID
	Kind       MovementKind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("movement %d of kind %q cannot be reversed", e.MovementID, e.Kind)
}

func (e *UnsupportedKindError) Unwrap() error { return ErrUnsupportedKind }

// ConflictError details an illegal status transition.
type ConflictError struct {
	OrderCode OrderCode
	Status    OrderStatus
	Attempted string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %s is %s: cannot %s", e.OrderCode, e.Status, e.Attempted)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError names the missing thing.
type NotFoundError struct {
	Kind string // "product", "order", "movement"
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Ref)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry of the
// whole read-validate-write cycle.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStaleRead)
}

// IsClientError returns true if the error is due to invalid client input
// or state, as opposed to a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrUnsupportedKind) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
