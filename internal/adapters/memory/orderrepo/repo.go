package orderrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mealwave/delivery-api/internal/domain"
	"github.com/mealwave/delivery-api/internal/ports/out/orderrepo"
)

// Repo is an in-memory implementation of orderrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID       map[domain.OrderID]orderrepo.Order
	byCustomer map[domain.SubjectID][]domain.OrderID
}

func NewRepo() *Repo {
	return &Repo{
		byID:       make(map[domain.OrderID]orderrepo.Order),
		byCustomer: make(map[domain.SubjectID][]domain.OrderID),
	}
}

func (r *Repo) Create(ctx context.Context, o orderrepo.Order) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[o.ID]; ok {
		return orderrepo.ErrAlreadyExists
	}
	r.byID[o.ID] = cloneOrder(o)
	r.byCustomer[o.Customer] = append(r.byCustomer[o.Customer], o.ID)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.OrderID) (orderrepo.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return orderrepo.Order{}, orderrepo.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id domain.OrderID, from, to domain.OrderStatus, at time.Time) (orderrepo.Order, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return orderrepo.Order{}, orderrepo.ErrNotFound
	}
	if o.Status != from {
		return orderrepo.Order{}, orderrepo.ErrStaleStatus
	}
	o.Status = to
	o.UpdatedAt = at
	r.byID[id] = o
	return cloneOrder(o), nil
}

func (r *Repo) ListByCustomer(ctx context.Context, customer domain.SubjectID) ([]orderrepo.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCustomer[customer]
	out := make([]orderrepo.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.byID[id]; ok {
			out = append(out, cloneOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func cloneOrder(o orderrepo.Order) orderrepo.Order {
	out := o
	if o.Items != nil {
		out.Items = make([]domain.OrderItem, len(o.Items))
		copy(out.Items, o.Items)
	}
	return out
}
