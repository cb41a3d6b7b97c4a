package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mealwave/delivery-api/internal/domain"
)

// Presence exposes the gateway's online-connection view for the stats
// endpoint. Satisfied by gateway.Registry.
type Presence interface {
	CountOnline() int
	ListOnlineByRole(role domain.Role) []domain.SubjectID
}

// NewRouter constructs the API HTTP router.
//
// This is intentionally a thin adapter: it wires routes and middleware
// and delegates to the Server handlers. The idempotency middleware is
// scoped to the order routes so read paths and the websocket upgrade
// never pay for it.
func NewRouter(
	srv *Server,
	auth func(http.Handler) http.Handler,
	idem func(http.Handler) http.Handler,
	ws http.Handler,
	presence Presence,
) http.Handler {
	r := chi.NewRouter()

	// Baseline production-safe middleware (minimal but useful).
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(auth)

	// Health endpoint is unauthenticated (used for infra checks).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if ws != nil {
		r.Get("/ws", ws.ServeHTTP)
	}

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
			return
		}
		if id.Role != domain.RoleAdmin {
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", "admin only", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"onlineConnections": presence.CountOnline(),
			"onlineCustomers":   len(presence.ListOnlineByRole(domain.RoleCustomer)),
			"onlinePartners":    len(presence.ListOnlineByRole(domain.RolePartner)),
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(idem)
		r.Get("/", srv.handleListMyOrders)
		r.Post("/", srv.handlePlaceOrder)
		r.Get("/{orderID}", srv.handleGetOrder)
		r.Patch("/{orderID}/status", srv.handleUpdateOrderStatus)
	})

	return r
}
