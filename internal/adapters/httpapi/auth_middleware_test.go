package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mealwave/delivery-api/internal/domain"
)

type stubVerifier struct {
	identity domain.Identity
	err      error
}

func (s stubVerifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	if s.err != nil {
		return domain.Identity{}, s.err
	}
	return s.identity, nil
}

func identityEcho(t *testing.T, got *domain.Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if ok {
			*got = id
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	t.Parallel()

	var got domain.Identity
	h := NewAuthMiddleware(stubVerifier{})(identityEcho(t, &got))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	t.Parallel()

	var got domain.Identity
	h := NewAuthMiddleware(stubVerifier{})(identityEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	t.Parallel()

	var got domain.Identity
	v := stubVerifier{err: errors.New("bad signature")}
	h := NewAuthMiddleware(v)(identityEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}
}

func TestAuthMiddleware_ValidTokenStoresIdentity(t *testing.T) {
	t.Parallel()

	var got domain.Identity
	v := stubVerifier{identity: domain.Identity{Subject: "sub-1", Role: domain.RolePartner}}
	h := NewAuthMiddleware(v)(identityEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	if got.Subject != "sub-1" || got.Role != domain.RolePartner {
		t.Fatalf("identity=%+v", got)
	}
}

func TestAuthMiddleware_SkipsHealthAndWebsocket(t *testing.T) {
	t.Parallel()

	var got domain.Identity
	h := NewAuthMiddleware(stubVerifier{})(identityEcho(t, &got))

	for _, path := range []string{"/healthz", "/ws"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d, want pass-through", path, rr.Code)
		}
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	t.Parallel()

	var got domain.Identity
	h := NewDevAuthMiddleware("")(identityEcho(t, &got))

	// No subject anywhere: rejected.
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}

	// Explicit subject and role.
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("X-Debug-Subject", "dev-user")
	req.Header.Set("X-Debug-Role", "admin")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || got.Subject != "dev-user" || got.Role != domain.RoleAdmin {
		t.Fatalf("status=%d identity=%+v", rr.Code, got)
	}

	// Unknown role falls back to customer.
	req = httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("X-Debug-Subject", "dev-user")
	req.Header.Set("X-Debug-Role", "superuser")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got.Role != domain.RoleCustomer {
		t.Fatalf("role=%q, want customer fallback", got.Role)
	}

	// Default subject applies when the header is absent.
	h = NewDevAuthMiddleware("fallback-user")(identityEcho(t, &got))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if got.Subject != "fallback-user" {
		t.Fatalf("subject=%q, want fallback-user", got.Subject)
	}
}
