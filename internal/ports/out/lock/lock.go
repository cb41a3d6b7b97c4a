package lock

import "context"

// Locker is a short-TTL mutual-exclusion primitive used to serialize
// concurrent retries of the same idempotency key.
//
// It is best-effort, not linearizable: a holder that crashes without
// releasing self-heals once the TTL elapses, trading a bounded window
// of double-execution risk for liveness. A lock whose age has reached
// the TTL must be treated as absent by Acquire.
type Locker interface {
	// Acquire attempts to take the lock for key. It returns false when a
	// non-stale lock is already held by someone else.
	Acquire(ctx context.Context, key string) (bool, error)

	// Release drops the lock for key. Releasing an absent lock is not an
	// error.
	Release(ctx context.Context, key string) error
}
