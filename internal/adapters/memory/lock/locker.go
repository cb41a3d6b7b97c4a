package lock

import (
	"context"
	"sync"
	"time"

	clockport "github.com/mealwave/delivery-api/internal/ports/out/clock"
)

// Locker is an in-process implementation of lock.Locker with TTL-based
// stale-lock reclamation. Suitable for single-instance deployments and
// tests; multi-instance deployments use the redis adapter.
type Locker struct {
	ttl time.Duration
	clk clockport.Clock

	mu    sync.Mutex
	locks map[string]time.Time // key -> acquisition time
}

func NewLocker(ttl time.Duration, clk clockport.Clock) *Locker {
	return &Locker{
		ttl:   ttl,
		clk:   clk,
		locks: make(map[string]time.Time),
	}
}

func (l *Locker) Acquire(ctx context.Context, key string) (bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	if acquiredAt, ok := l.locks[key]; ok {
		if now.Sub(acquiredAt) < l.ttl {
			return false, nil
		}
		// Stale lock from a crashed holder: reclaim it.
		delete(l.locks, key)
	}
	l.locks[key] = now
	return true, nil
}

func (l *Locker) Release(ctx context.Context, key string) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
	return nil
}
