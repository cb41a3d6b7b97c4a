package domain

import "time"

// OrderID identifies an order. Also used as the gateway room identifier
// for order-scoped broadcasts.
type OrderID string

// OrderStatus is the delivery lifecycle of an order.
type OrderStatus string

const (
	OrderPlaced         OrderStatus = "placed"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderPreparing      OrderStatus = "preparing"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// NextStatuses returns the statuses an order may legally transition to.
// Cancellation is allowed from any non-terminal status.
func (s OrderStatus) NextStatuses() []OrderStatus {
	switch s {
	case OrderPlaced:
		return []OrderStatus{OrderConfirmed, OrderCancelled}
	case OrderConfirmed:
		return []OrderStatus{OrderPreparing, OrderCancelled}
	case OrderPreparing:
		return []OrderStatus{OrderOutForDelivery, OrderCancelled}
	case OrderOutForDelivery:
		return []OrderStatus{OrderDelivered, OrderCancelled}
	}
	return nil
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range s.NextStatuses() {
		if n == next {
			return true
		}
	}
	return false
}

// Order is the minimal order shape this core needs: enough to exercise
// the idempotent create path and to address push notifications.
type Order struct {
	ID        OrderID
	Customer  SubjectID
	Partner   SubjectID
	Items     []OrderItem
	Total     int64 // minor currency units
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	Name     string
	Quantity int
	Price    int64 // minor currency units
}
