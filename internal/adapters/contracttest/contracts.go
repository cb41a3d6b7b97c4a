package contracttest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mealwave/delivery-api/internal/domain"
	idempotencyport "github.com/mealwave/delivery-api/internal/ports/out/idempotency"
	lockport "github.com/mealwave/delivery-api/internal/ports/out/lock"
	"github.com/mealwave/delivery-api/internal/ports/out/orderrepo"
)

type CleanupFunc = func()

type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)
type LockerFactory func(t *testing.T) (lockport.Locker, CleanupFunc)
type OrderRepoFactory func(t *testing.T) (orderrepo.Repository, CleanupFunc)

// RunIdempotencyStore exercises the idempotency.Store contract against
// any adapter: creation, duplicate detection, the pending -> completed
// and pending -> failed transitions, failed-record rewrite, and expiry.
func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Now().UTC()
	rec := idempotencyport.Record{
		Key:         "k-1",
		Fingerprint: "fp-abc",
		Owner:       domain.Identity{Subject: "sub-1", Role: domain.RoleCustomer},
		Origin:      idempotencyport.Origin{RemoteAddr: "10.0.0.1", UserAgent: "contract-test"},
		CreatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	if err := store.CreatePending(ctx, rec); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}

	got, ok, err := store.Get(ctx, "k-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true after CreatePending")
	}
	if got.Status != idempotencyport.StatusPending || got.Fingerprint != "fp-abc" {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Duplicate-create race: second writer loses with ErrDuplicateKey.
	if err := store.CreatePending(ctx, rec); !errors.Is(err, idempotencyport.ErrDuplicateKey) {
		t.Fatalf("duplicate CreatePending err=%v, want ErrDuplicateKey", err)
	}

	// pending -> completed stores the response for verbatim replay.
	body := []byte(`{"orderId":"o-1"}`)
	if err := store.Complete(ctx, "k-1", 200, "application/json", body); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, ok, err = store.Get(ctx, "k-1")
	if err != nil || !ok {
		t.Fatalf("Get after Complete ok=%v err=%v", ok, err)
	}
	if got.Status != idempotencyport.StatusCompleted || got.StatusCode != 200 ||
		got.ContentType != "application/json" || !bytes.Equal(got.Response, body) {
		t.Fatalf("unexpected completed record: %+v", got)
	}
	// Fingerprint is immutable across transitions.
	if got.Fingerprint != "fp-abc" {
		t.Fatalf("fingerprint changed: %q", got.Fingerprint)
	}

	// A completed record still rejects duplicate creation.
	if err := store.CreatePending(ctx, rec); !errors.Is(err, idempotencyport.ErrDuplicateKey) {
		t.Fatalf("CreatePending over completed err=%v, want ErrDuplicateKey", err)
	}

	// pending -> failed, and a failed record is rewritable on retry.
	rec2 := rec
	rec2.Key = "k-2"
	if err := store.CreatePending(ctx, rec2); err != nil {
		t.Fatalf("CreatePending k-2: %v", err)
	}
	if err := store.Fail(ctx, "k-2", 502, []byte(`{"error":"upstream"}`)); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, ok, err = store.Get(ctx, "k-2")
	if err != nil || !ok {
		t.Fatalf("Get after Fail ok=%v err=%v", ok, err)
	}
	if got.Status != idempotencyport.StatusFailed || got.StatusCode != 502 {
		t.Fatalf("unexpected failed record: %+v", got)
	}
	if err := store.CreatePending(ctx, rec2); err != nil {
		t.Fatalf("CreatePending over failed err=%v, want rewrite", err)
	}
	got, _, _ = store.Get(ctx, "k-2")
	if got.Status != idempotencyport.StatusPending {
		t.Fatalf("rewritten record status=%q, want pending", got.Status)
	}

	// Expiry: a record past its deadline is absent and purgeable.
	rec3 := rec
	rec3.Key = "k-3"
	rec3.ExpiresAt = now.Add(-time.Minute)
	if err := store.CreatePending(ctx, rec3); err != nil {
		t.Fatalf("CreatePending k-3: %v", err)
	}
	if _, ok, err := store.Get(ctx, "k-3"); err != nil || ok {
		t.Fatalf("expired record visible: ok=%v err=%v", ok, err)
	}
	n, err := store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n < 1 {
		t.Fatalf("DeleteExpired removed %d records, want >= 1", n)
	}
	if _, ok, _ := store.Get(ctx, "k-1"); !ok {
		t.Fatalf("live record purged by DeleteExpired")
	}
}

// RunLocker exercises the lock.Locker contract: exclusion, idempotent
// release, key independence.
func RunLocker(t *testing.T, newLocker LockerFactory) {
	t.Helper()
	ctx := context.Background()

	l, cleanup := newLocker(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	ok, err := l.Acquire(ctx, "lock-a")
	if err != nil || !ok {
		t.Fatalf("Acquire ok=%v err=%v", ok, err)
	}
	ok, err = l.Acquire(ctx, "lock-a")
	if err != nil || ok {
		t.Fatalf("re-Acquire ok=%v err=%v, want held", ok, err)
	}
	ok, err = l.Acquire(ctx, "lock-b")
	if err != nil || !ok {
		t.Fatalf("Acquire other key ok=%v err=%v", ok, err)
	}

	if err := l.Release(ctx, "lock-a"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Release(ctx, "lock-a"); err != nil {
		t.Fatalf("idempotent Release: %v", err)
	}
	ok, err = l.Acquire(ctx, "lock-a")
	if err != nil || !ok {
		t.Fatalf("Acquire after Release ok=%v err=%v", ok, err)
	}
}

// RunOrderRepository exercises the orderrepo.Repository contract:
// create, duplicate rejection, guarded status transitions, and
// per-customer listing order.
func RunOrderRepository(t *testing.T, newRepo OrderRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := orderrepo.Order{
		ID:       "ord-1",
		Customer: "cust-1",
		Status:   domain.OrderPlaced,
		Items: []domain.OrderItem{
			{Name: "dal tadka", Quantity: 2, Price: 450},
		},
		Total:     900,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, o); !errors.Is(err, orderrepo.ErrAlreadyExists) {
		t.Fatalf("duplicate Create err=%v, want ErrAlreadyExists", err)
	}

	got, err := repo.GetByID(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Customer != "cust-1" || got.Status != domain.OrderPlaced || got.Total != 900 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "dal tadka" {
		t.Fatalf("unexpected items: %+v", got.Items)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, orderrepo.ErrNotFound) {
		t.Fatalf("GetByID missing err=%v, want ErrNotFound", err)
	}

	// Status transition is guarded by the expected current status.
	later := now.Add(time.Minute)
	upd, err := repo.UpdateStatus(ctx, "ord-1", domain.OrderPlaced, domain.OrderConfirmed, later)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if upd.Status != domain.OrderConfirmed {
		t.Fatalf("status=%q, want confirmed", upd.Status)
	}
	if _, err := repo.UpdateStatus(ctx, "ord-1", domain.OrderPlaced, domain.OrderPreparing, later); !errors.Is(err, orderrepo.ErrStaleStatus) {
		t.Fatalf("stale UpdateStatus err=%v, want ErrStaleStatus", err)
	}
	if _, err := repo.UpdateStatus(ctx, "missing", domain.OrderPlaced, domain.OrderConfirmed, later); !errors.Is(err, orderrepo.ErrNotFound) {
		t.Fatalf("UpdateStatus missing err=%v, want ErrNotFound", err)
	}

	// Newest first per customer; other customers excluded.
	o2 := o
	o2.ID = "ord-2"
	o2.CreatedAt = now.Add(2 * time.Minute)
	o2.UpdatedAt = o2.CreatedAt
	if err := repo.Create(ctx, o2); err != nil {
		t.Fatalf("Create ord-2: %v", err)
	}
	o3 := o
	o3.ID = "ord-3"
	o3.Customer = "cust-2"
	if err := repo.Create(ctx, o3); err != nil {
		t.Fatalf("Create ord-3: %v", err)
	}

	list, err := repo.ListByCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("ListByCustomer: %v", err)
	}
	if len(list) != 2 || list[0].ID != "ord-2" || list[1].ID != "ord-1" {
		t.Fatalf("unexpected listing: %+v", list)
	}
}
