/*
status.go - Order fulfillment state machine

PURPOSE:
  Derives an order's status from delivered-vs-ordered quantities, and
  guards the two transitions that are NOT derivable from the ledger:
  packing completion (a human confirms the physical box is packed) and
  cancellation.

STATES:
  pending -> partial_delivered -> ready_for_pickup -> completed
  cancelled is reachable from any non-terminal state.

DERIVATION RULE:
  delivered == 0        -> pending
  0 < delivered < total -> partial_delivered
  delivered >= total    -> ready_for_pickup

  completed is never derived: stock delivery and packing confirmation are
  distinct real-world events, so ready_for_pickup -> completed happens
  only on explicit staff confirmation.

SEE ALSO:
  - service.go: Recomputes status after every movement touching an order
*/
package fulfillment

import "github.com/warp/fulfillment-engine/ledger"

// DeriveStatus returns the quantity-derived status for an order.
func DeriveStatus(ordered, delivered int) ledger.OrderStatus {
	switch {
	case delivered <= 0:
		return ledger.StatusPending
	case delivered < ordered:
		return ledger.StatusPartialDelivered
	default:
		return ledger.StatusReadyForPickup
	}
}

// CanCancel reports whether an order in the given status may be
// cancelled. Terminal states cannot.
func CanCancel(s ledger.OrderStatus) bool {
	return !s.Terminal()
}

// CanCompletePacking reports whether packing confirmation is legal:
// every unit must already be delivered.
func CanCompletePacking(s ledger.OrderStatus) bool {
	return s == ledger.StatusReadyForPickup
}
