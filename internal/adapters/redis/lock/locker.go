package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is a Redis implementation of lock.Locker.
//
// Acquisition is SET NX with a server-side TTL, so a lock abandoned by a
// crashed holder expires on its own and acquisition self-heals without a
// client-side staleness check. The stored value is the acquisition
// timestamp, kept for operator inspection.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl, prefix: "idempotency:lock:"}
}

func (l *Locker) Acquire(ctx context.Context, key string) (bool, error) {
	value := time.Now().UTC().Format(time.RFC3339Nano)
	return l.client.SetNX(ctx, l.prefix+key, value, l.ttl).Result()
}

func (l *Locker) Release(ctx context.Context, key string) error {
	// DEL of an absent key is a no-op in Redis, matching the idempotent
	// release contract.
	return l.client.Del(ctx, l.prefix+key).Err()
}
