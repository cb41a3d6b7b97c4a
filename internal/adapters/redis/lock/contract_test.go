package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mealwave/delivery-api/internal/adapters/contracttest"
	lockport "github.com/mealwave/delivery-api/internal/ports/out/lock"
)

func openTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis-backed tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestContract_RedisLocker(t *testing.T) {
	client := openTestClient(t)

	contracttest.RunLocker(t, func(t *testing.T) (lockport.Locker, func()) {
		t.Helper()
		l := NewLocker(client, 30*time.Second)
		return l, func() {
			ctx := context.Background()
			_ = l.Release(ctx, "lock-a")
			_ = l.Release(ctx, "lock-b")
		}
	})
}

func TestRedisLocker_StaleLockExpiresViaTTL(t *testing.T) {
	client := openTestClient(t)
	l := NewLocker(client, 200*time.Millisecond)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "ttl-key")
	if err != nil || !ok {
		t.Fatalf("Acquire ok=%v err=%v", ok, err)
	}
	if ok, _ := l.Acquire(ctx, "ttl-key"); ok {
		t.Fatalf("lock acquirable while held")
	}

	// Holder "crashes": no release. The lock must become acquirable once
	// its TTL elapses.
	time.Sleep(300 * time.Millisecond)
	ok, err = l.Acquire(ctx, "ttl-key")
	if err != nil || !ok {
		t.Fatalf("stale lock not reclaimed after TTL: ok=%v err=%v", ok, err)
	}
	_ = l.Release(ctx, "ttl-key")
}
