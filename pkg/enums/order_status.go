package enums

import "fmt"

// OrderStatus tracks the lifecycle of a purchase. Transitions are forward-only:
// awaiting_payment -> paid -> shipped.
type OrderStatus string

const (
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusShipped         OrderStatus = "shipped"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusAwaitingPayment,
	OrderStatusPaid,
	OrderStatusShipped,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// Completed reports whether the purchase already moved past awaiting_payment.
func (o OrderStatus) Completed() bool {
	return o == OrderStatusPaid || o == OrderStatusShipped
}

// CanTransitionTo reports whether the forward-only state machine allows the move.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch o {
	case OrderStatusAwaitingPayment:
		return next == OrderStatusPaid
	case OrderStatusPaid:
		return next == OrderStatusShipped
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
