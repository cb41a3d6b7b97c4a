package orderrepo

import (
	"context"
	"time"

	"github.com/mealwave/delivery-api/internal/domain"
)

// Order is the persistence shape used by the order repository.
type Order struct {
	ID       domain.OrderID
	Customer domain.SubjectID
	// Partner is the fulfilling kitchen's subject; empty until assigned.
	Partner domain.SubjectID
	Status  domain.OrderStatus

	Items []domain.OrderItem
	// Total is the order total in minor currency units.
	Total int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted orders.
//
// ListByCustomer returns orders ordered by CreatedAt descending to keep
// behavior deterministic.
type Repository interface {
	Create(ctx context.Context, o Order) error

	GetByID(ctx context.Context, id domain.OrderID) (Order, error)

	// UpdateStatus transitions an order from exactly `from` to `to`.
	// A concurrent writer that moved the order off `from` first causes
	// ErrStaleStatus; the transition itself is validated at the
	// application layer.
	UpdateStatus(ctx context.Context, id domain.OrderID, from, to domain.OrderStatus, at time.Time) (Order, error)

	ListByCustomer(ctx context.Context, customer domain.SubjectID) ([]Order, error)
}
