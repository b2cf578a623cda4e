package models

import "errors"

// Domain errors. Per-line reservation failures are reported with these and
// never abort sibling lines; infrastructure errors are wrapped and abort the
// whole unit of work.
var (
	ErrInvalidQuantity                 = errors.New("quantity must be between 1 and 5")
	ErrInsufficientInventory           = errors.New("insufficient inventory")
	ErrEventNotFound                   = errors.New("event not found")
	ErrOrderNotFound                   = errors.New("order not found")
	ErrTicketNotFound                  = errors.New("ticket not found")
	ErrInvalidOrderTransition          = errors.New("invalid order transition")
	ErrCapacityReductionBelowCommitted = errors.New("capacity reduction below committed reservations")
	ErrCapacityOverflow                = errors.New("release would exceed total capacity")
	ErrPendingOrderExists              = errors.New("pending order already exists for user")
)

// ErrorCode maps a domain error to a stable machine-readable code for
// per-line batch results and HTTP responses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, ErrInsufficientInventory):
		return "INSUFFICIENT_INVENTORY"
	case errors.Is(err, ErrEventNotFound):
		return "EVENT_NOT_FOUND"
	case errors.Is(err, ErrOrderNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, ErrTicketNotFound):
		return "TICKET_NOT_FOUND"
	case errors.Is(err, ErrInvalidOrderTransition):
		return "INVALID_ORDER_TRANSITION"
	case errors.Is(err, ErrCapacityReductionBelowCommitted):
		return "CAPACITY_REDUCTION_BELOW_COMMITTED"
	case errors.Is(err, ErrCapacityOverflow):
		return "CAPACITY_OVERFLOW"
	default:
		return "INTERNAL"
	}
}
