package push

import "github.com/mealwave/delivery-api/internal/domain"

// Notification is a generic server-originated message for one user.
type Notification struct {
	ID       string         `json:"id"`
	Category string         `json:"category"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// OrderUpdate describes an order state change pushed to interested clients.
type OrderUpdate struct {
	OrderID domain.OrderID     `json:"orderId"`
	Status  domain.OrderStatus `json:"status"`
	Note    string             `json:"note,omitempty"`
}

// Pusher is the outbound boundary business logic uses to reach connected
// clients. Delivery is fire-and-forget: an offline user is a no-op here,
// queued delivery belongs to the external notification store.
type Pusher interface {
	SendNotificationToUser(subject domain.SubjectID, n Notification)
	SendOrderUpdateToUser(subject domain.SubjectID, u OrderUpdate)
	BroadcastOrderUpdate(orderID domain.OrderID, u OrderUpdate)
}
