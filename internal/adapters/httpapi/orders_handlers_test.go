package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	memclock "github.com/mealwave/delivery-api/internal/adapters/memory/clock"
	memidem "github.com/mealwave/delivery-api/internal/adapters/memory/idempotency"
	memlock "github.com/mealwave/delivery-api/internal/adapters/memory/lock"
	memorderrepo "github.com/mealwave/delivery-api/internal/adapters/memory/orderrepo"
	"github.com/mealwave/delivery-api/internal/app/orders"
	"github.com/mealwave/delivery-api/internal/domain"
)

type fakePresence struct {
	online    int
	customers []domain.SubjectID
	partners  []domain.SubjectID
}

func (f fakePresence) CountOnline() int { return f.online }
func (f fakePresence) ListOnlineByRole(role domain.Role) []domain.SubjectID {
	if role == domain.RolePartner {
		return f.partners
	}
	return f.customers
}

// newTestAPI wires the full router over in-memory backends with the dev
// auth shim, the way cmd/api does for local runs.
func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	clk := memclock.NewManualClock(time.Unix(7000, 0).UTC())
	svc := orders.NewService(memorderrepo.NewRepo(), nil, clk)
	cfg := testIdemConfig()
	idem := NewIdempotencyMiddleware(
		memidem.NewStore(clk),
		memlock.NewLocker(cfg.LockTTL, clk),
		clk, zap.NewNop(), cfg, DefaultFailurePolicy(),
	)
	return NewRouter(NewServer(svc), NewDevAuthMiddleware(""), idem, nil, fakePresence{
		online:    3,
		customers: []domain.SubjectID{"c-1", "c-2"},
		partners:  []domain.SubjectID{"p-1"},
	})
}

func apiDo(t *testing.T, h http.Handler, method, path, subject, role, idemKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}
	if role != "" {
		req.Header.Set("X-Debug-Role", role)
	}
	if idemKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idemKey)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type orderEnvelope struct {
	Order orderJSON `json:"order"`
}

func decodeOrder(t *testing.T, rr *httptest.ResponseRecorder) orderJSON {
	t.Helper()
	var env orderEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return env.Order
}

func TestAPI_PlaceOrderAndReplay(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	body := `{"items":[{"name":"veg thali","quantity":2,"price":1200}]}`

	first := apiDo(t, api, http.MethodPost, "/orders", "cust-1", "customer", "retry-1", body)
	if first.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", first.Code, first.Body.String())
	}
	o := decodeOrder(t, first)
	if o.OrderID == "" || o.Status != "placed" || o.Total != 2400 {
		t.Fatalf("order=%+v", o)
	}

	// A retried POST with the same key gets the recorded order, not a new one.
	second := apiDo(t, api, http.MethodPost, "/orders", "cust-1", "customer", "retry-1", body)
	if second.Code != http.StatusCreated || second.Header().Get("X-Idempotency-Replayed") != "true" {
		t.Fatalf("replay status=%d headers=%+v", second.Code, second.Header())
	}
	if replayed := decodeOrder(t, second); replayed.OrderID != o.OrderID {
		t.Fatalf("replayed orderId=%q, want %q", replayed.OrderID, o.OrderID)
	}

	list := apiDo(t, api, http.MethodGet, "/orders", "cust-1", "customer", "", "")
	var lst struct {
		Orders []orderJSON `json:"orders"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &lst); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(lst.Orders) != 1 {
		t.Fatalf("orders=%d, want the single deduplicated order", len(lst.Orders))
	}
}

func TestAPI_KeyReuseAcrossBodiesRejected(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	apiDo(t, api, http.MethodPost, "/orders", "cust-1", "customer", "retry-1",
		`{"items":[{"name":"a","quantity":1,"price":100}]}`)
	rr := apiDo(t, api, http.MethodPost, "/orders", "cust-1", "customer", "retry-1",
		`{"items":[{"name":"b","quantity":1,"price":100}]}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409", rr.Code)
	}
}

func TestAPI_StatusLifecycle(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	created := apiDo(t, api, http.MethodPost, "/orders", "cust-1", "customer", "",
		`{"items":[{"name":"biryani","quantity":1,"price":900}]}`)
	o := decodeOrder(t, created)

	rr := apiDo(t, api, http.MethodPatch, "/orders/"+o.OrderID+"/status", "kitchen-1", "partner", "",
		`{"status":"confirmed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm status=%d body=%s", rr.Code, rr.Body.String())
	}
	if upd := decodeOrder(t, rr); upd.Status != "confirmed" {
		t.Fatalf("status=%q", upd.Status)
	}

	// Skipping ahead in the lifecycle is a conflict.
	rr = apiDo(t, api, http.MethodPatch, "/orders/"+o.OrderID+"/status", "kitchen-1", "partner", "",
		`{"status":"delivered"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("skip status=%d, want 409", rr.Code)
	}

	// Unknown status names are rejected before the service runs.
	rr = apiDo(t, api, http.MethodPatch, "/orders/"+o.OrderID+"/status", "kitchen-1", "partner", "",
		`{"status":"teleported"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown status=%d, want 422", rr.Code)
	}
}

func TestAPI_ForeignOrderHidden(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	created := apiDo(t, api, http.MethodPost, "/orders", "cust-1", "customer", "",
		`{"items":[{"name":"dosa","quantity":1,"price":500}]}`)
	o := decodeOrder(t, created)

	rr := apiDo(t, api, http.MethodGet, "/orders/"+o.OrderID, "cust-2", "customer", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestAPI_StatsAdminOnly(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	rr := apiDo(t, api, http.MethodGet, "/stats", "cust-1", "customer", "", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("customer stats status=%d, want 403", rr.Code)
	}

	rr = apiDo(t, api, http.MethodGet, "/stats", "ops-1", "admin", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("admin stats status=%d body=%s", rr.Code, rr.Body.String())
	}
	var stats map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["onlineConnections"] != 3 || stats["onlineCustomers"] != 2 || stats["onlinePartners"] != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestAPI_Healthz(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rr := apiDo(t, api, http.MethodGet, "/healthz", "", "", "", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz=%d %q", rr.Code, rr.Body.String())
	}
}
