package lock

import (
	"context"
	"testing"
	"time"

	memclock "github.com/mealwave/delivery-api/internal/adapters/memory/clock"
)

func TestLocker_MutualExclusion(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(100, 0))
	l := NewLocker(30*time.Second, clk)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("first Acquire ok=%v err=%v", ok, err)
	}
	ok, err = l.Acquire(ctx, "k1")
	if err != nil || ok {
		t.Fatalf("second Acquire ok=%v err=%v, want held", ok, err)
	}

	// A different key is independent.
	ok, err = l.Acquire(ctx, "k2")
	if err != nil || !ok {
		t.Fatalf("Acquire k2 ok=%v err=%v", ok, err)
	}
}

func TestLocker_ReleaseThenReacquire(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(100, 0))
	l := NewLocker(30*time.Second, clk)
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "k1"); !ok {
		t.Fatalf("Acquire failed")
	}
	if err := l.Release(ctx, "k1"); err != nil {
		t.Fatalf("Release err=%v", err)
	}
	if ok, _ := l.Acquire(ctx, "k1"); !ok {
		t.Fatalf("Acquire after Release failed")
	}
}

func TestLocker_ReleaseAbsentIsNotAnError(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(100, 0))
	l := NewLocker(30*time.Second, clk)
	if err := l.Release(context.Background(), "never-held"); err != nil {
		t.Fatalf("Release absent err=%v", err)
	}
}

func TestLocker_StaleLockReclaimedAfterTTL(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(100, 0))
	l := NewLocker(30*time.Second, clk)
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "k1"); !ok {
		t.Fatalf("Acquire failed")
	}

	// Holder crashes without releasing. Just before the TTL the lock is
	// still held; at the TTL it must be treated as absent.
	clk.Advance(29 * time.Second)
	if ok, _ := l.Acquire(ctx, "k1"); ok {
		t.Fatalf("lock reclaimed before TTL elapsed")
	}
	clk.Advance(1 * time.Second)
	if ok, _ := l.Acquire(ctx, "k1"); !ok {
		t.Fatalf("stale lock not reclaimed after TTL")
	}
}
