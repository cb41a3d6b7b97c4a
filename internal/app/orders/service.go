package orders

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mealwave/delivery-api/internal/domain"
	clockport "github.com/mealwave/delivery-api/internal/ports/out/clock"
	"github.com/mealwave/delivery-api/internal/ports/out/orderrepo"
	"github.com/mealwave/delivery-api/internal/ports/out/push"
)

type Service struct {
	repo   orderrepo.Repository
	pusher push.Pusher
	clk    clockport.Clock

	newOrderID func() domain.OrderID
}

func NewService(repo orderrepo.Repository, pusher push.Pusher, clk clockport.Clock) *Service {
	return &Service{
		repo:   repo,
		pusher: pusher,
		clk:    clk,
		newOrderID: func() domain.OrderID {
			return domain.OrderID(uuid.NewString())
		},
	}
}

type PlaceOrderInput struct {
	Items []domain.OrderItem
}

func (s *Service) PlaceOrder(ctx context.Context, customer domain.SubjectID, in PlaceOrderInput) (domain.Order, error) {
	if len(in.Items) == 0 {
		return domain.Order{}, &Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    "VALIDATION_ERROR",
			Message: "order must contain at least one item",
		}
	}
	var total int64
	for i, it := range in.Items {
		if it.Name == "" || it.Quantity <= 0 || it.Price < 0 {
			return domain.Order{}, &Error{
				Status:  http.StatusUnprocessableEntity,
				Code:    "VALIDATION_ERROR",
				Message: "invalid order item",
				Details: map[string]any{"index": i},
			}
		}
		total += it.Price * int64(it.Quantity)
	}

	now := s.clk.Now().UTC()
	rec := orderrepo.Order{
		ID:        s.newOrderID(),
		Customer:  customer,
		Status:    domain.OrderPlaced,
		Items:     in.Items,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return domain.Order{}, err
	}

	o := toDomain(rec)
	if s.pusher != nil {
		s.pusher.SendOrderUpdateToUser(o.Customer, push.OrderUpdate{OrderID: o.ID, Status: o.Status})
	}
	return o, nil
}

func (s *Service) UpdateStatus(ctx context.Context, actor domain.Identity, id domain.OrderID, next domain.OrderStatus) (domain.Order, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return domain.Order{}, errNotFound(id)
		}
		return domain.Order{}, err
	}

	// Customers may only cancel their own orders; partners and admins
	// drive the fulfillment lifecycle.
	if actor.Role == domain.RoleCustomer {
		if cur.Customer != actor.Subject {
			return domain.Order{}, errNotFound(id)
		}
		if next != domain.OrderCancelled {
			return domain.Order{}, &Error{
				Status:  http.StatusForbidden,
				Code:    "FORBIDDEN",
				Message: "customers may only cancel orders",
			}
		}
	}

	if !cur.Status.CanTransitionTo(next) {
		return domain.Order{}, &Error{
			Status:  http.StatusConflict,
			Code:    "INVALID_STATUS_TRANSITION",
			Message: "order cannot move to the requested status",
			Details: map[string]any{"from": string(cur.Status), "to": string(next)},
		}
	}

	upd, err := s.repo.UpdateStatus(ctx, id, cur.Status, next, s.clk.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, orderrepo.ErrNotFound):
			return domain.Order{}, errNotFound(id)
		case errors.Is(err, orderrepo.ErrStaleStatus):
			return domain.Order{}, &Error{
				Status:  http.StatusConflict,
				Code:    "ORDER_STATUS_CHANGED",
				Message: "order status changed concurrently, re-read and retry",
			}
		}
		return domain.Order{}, err
	}

	o := toDomain(upd)
	if s.pusher != nil {
		u := push.OrderUpdate{OrderID: o.ID, Status: o.Status}
		s.pusher.BroadcastOrderUpdate(o.ID, u)
		s.pusher.SendOrderUpdateToUser(o.Customer, u)
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, actor domain.Identity, id domain.OrderID) (domain.Order, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return domain.Order{}, errNotFound(id)
		}
		return domain.Order{}, err
	}
	// Existence of other customers' orders is not disclosed.
	if actor.Role == domain.RoleCustomer && cur.Customer != actor.Subject {
		return domain.Order{}, errNotFound(id)
	}
	return toDomain(cur), nil
}

func (s *Service) ListMyOrders(ctx context.Context, subject domain.SubjectID) ([]domain.Order, error) {
	recs, err := s.repo.ListByCustomer(ctx, subject)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(recs))
	for _, r := range recs {
		out = append(out, toDomain(r))
	}
	return out, nil
}

func errNotFound(id domain.OrderID) *Error {
	return &Error{
		Status:  http.StatusNotFound,
		Code:    "ORDER_NOT_FOUND",
		Message: "order not found",
		Details: map[string]any{"orderId": string(id)},
	}
}

func toDomain(r orderrepo.Order) domain.Order {
	return domain.Order{
		ID:        r.ID,
		Customer:  r.Customer,
		Partner:   r.Partner,
		Items:     r.Items,
		Total:     r.Total,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
