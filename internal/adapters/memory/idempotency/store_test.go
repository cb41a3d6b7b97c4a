package idempotency

import (
	"context"
	"testing"
	"time"

	memclock "github.com/mealwave/delivery-api/internal/adapters/memory/clock"
	"github.com/mealwave/delivery-api/internal/ports/out/idempotency"
)

func TestStore_ExpiryFollowsClock(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(1000, 0))
	s := NewStore(clk)
	ctx := context.Background()

	rec := idempotency.Record{
		Key:         "k1",
		Fingerprint: "fp",
		CreatedAt:   clk.Now(),
		ExpiresAt:   clk.Now().Add(24 * time.Hour),
	}
	if err := s.CreatePending(ctx, rec); err != nil {
		t.Fatalf("CreatePending err=%v", err)
	}

	if _, ok, _ := s.Get(ctx, "k1"); !ok {
		t.Fatalf("record missing before expiry")
	}

	clk.Advance(24 * time.Hour)
	if _, ok, _ := s.Get(ctx, "k1"); ok {
		t.Fatalf("record visible at expiry deadline")
	}

	n, err := s.DeleteExpired(ctx, clk.Now())
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired n=%d err=%v, want 1", n, err)
	}
}

func TestStore_ExpiredKeyReusable(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(1000, 0))
	s := NewStore(clk)
	ctx := context.Background()

	rec := idempotency.Record{Key: "k1", Fingerprint: "fp-old", ExpiresAt: clk.Now().Add(time.Hour)}
	if err := s.CreatePending(ctx, rec); err != nil {
		t.Fatalf("CreatePending err=%v", err)
	}
	clk.Advance(2 * time.Hour)

	// Past expiry the key returns to absent and may be created fresh,
	// even with a different fingerprint.
	rec2 := idempotency.Record{Key: "k1", Fingerprint: "fp-new", ExpiresAt: clk.Now().Add(time.Hour)}
	if err := s.CreatePending(ctx, rec2); err != nil {
		t.Fatalf("CreatePending after expiry err=%v", err)
	}
	got, ok, _ := s.Get(ctx, "k1")
	if !ok || got.Fingerprint != "fp-new" {
		t.Fatalf("got=%+v ok=%v, want fresh record", got, ok)
	}
}

func TestStore_CompleteAbsentKeyIsNoop(t *testing.T) {
	t.Parallel()

	s := NewStore(memclock.NewManualClock(time.Unix(1000, 0)))
	if err := s.Complete(context.Background(), "missing", 200, "application/json", nil); err != nil {
		t.Fatalf("Complete absent err=%v", err)
	}
}
