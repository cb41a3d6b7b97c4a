package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mealwave/delivery-api/internal/app/orders"
	"github.com/mealwave/delivery-api/internal/domain"
)

// Server carries the application services the HTTP handlers delegate to.
type Server struct {
	Orders *orders.Service
}

func NewServer(ordersSvc *orders.Service) *Server {
	return &Server{Orders: ordersSvc}
}

type orderItemJSON struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type orderJSON struct {
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	PartnerID  string          `json:"partnerId,omitempty"`
	Status     string          `json:"status"`
	Items      []orderItemJSON `json:"items"`
	Total      int64           `json:"total"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type placeOrderRequest struct {
	Items []orderItemJSON `json:"items"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}

	o, err := s.Orders.PlaceOrder(r.Context(), id.Subject, orders.PlaceOrderInput{Items: items})
	if err != nil {
		s.writeOrdersError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": orderToJSON(o)})
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}

	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	next := domain.OrderStatus(req.Status)
	if !validOrderStatus(next) {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown order status",
			map[string]any{"status": req.Status})
		return
	}

	orderID := domain.OrderID(chi.URLParam(r, "orderID"))
	o, err := s.Orders.UpdateStatus(r.Context(), id, orderID, next)
	if err != nil {
		s.writeOrdersError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": orderToJSON(o)})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}

	orderID := domain.OrderID(chi.URLParam(r, "orderID"))
	o, err := s.Orders.GetOrder(r.Context(), id, orderID)
	if err != nil {
		s.writeOrdersError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": orderToJSON(o)})
}

func (s *Server) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}

	os, err := s.Orders.ListMyOrders(r.Context(), id.Subject)
	if err != nil {
		s.writeOrdersError(w, r, err)
		return
	}
	out := make([]orderJSON, 0, len(os))
	for _, o := range os {
		out = append(out, orderToJSON(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (s *Server) writeOrdersError(w http.ResponseWriter, r *http.Request, err error) {
	ae := (*orders.Error)(nil)
	if errors.As(err, &ae) {
		writeError(w, r, ae.Status, ae.Code, ae.Message, ae.Details)
		return
	}
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func validOrderStatus(s domain.OrderStatus) bool {
	switch s {
	case domain.OrderPlaced, domain.OrderConfirmed, domain.OrderPreparing,
		domain.OrderOutForDelivery, domain.OrderDelivered, domain.OrderCancelled:
		return true
	}
	return false
}

func orderToJSON(o domain.Order) orderJSON {
	items := make([]orderItemJSON, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemJSON{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}
	return orderJSON{
		OrderID:    string(o.ID),
		CustomerID: string(o.Customer),
		PartnerID:  string(o.Partner),
		Status:     string(o.Status),
		Items:      items,
		Total:      o.Total,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}
