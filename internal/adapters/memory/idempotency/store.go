package idempotency

import (
	"context"
	"sync"
	"time"

	clockport "github.com/mealwave/delivery-api/internal/ports/out/clock"
	"github.com/mealwave/delivery-api/internal/ports/out/idempotency"
)

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use.
type Store struct {
	clk clockport.Clock

	mu sync.RWMutex
	m  map[idempotency.Key]idempotency.Record
}

func NewStore(clk clockport.Clock) *Store {
	return &Store{
		clk: clk,
		m:   make(map[idempotency.Key]idempotency.Record),
	}
}

func (s *Store) Get(ctx context.Context, key idempotency.Key) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m[key]
	if !ok || rec.Expired(s.clk.Now()) {
		return idempotency.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Store) CreatePending(ctx context.Context, rec idempotency.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[rec.Key]; ok && !existing.Expired(s.clk.Now()) {
		// Failed records are replaced so a retry after failure can
		// re-execute; anything else is a duplicate-create race.
		if existing.Status != idempotency.StatusFailed {
			return idempotency.ErrDuplicateKey
		}
	}
	rec.Status = idempotency.StatusPending
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clk.Now()
	}
	s.m[rec.Key] = rec
	return nil
}

func (s *Store) Complete(ctx context.Context, key idempotency.Key, statusCode int, contentType string, response []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[key]
	if !ok {
		return nil
	}
	rec.Status = idempotency.StatusCompleted
	rec.StatusCode = statusCode
	rec.ContentType = contentType
	rec.Response = append([]byte(nil), response...)
	s.m[key] = rec
	return nil
}

func (s *Store) Fail(ctx context.Context, key idempotency.Key, statusCode int, response []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[key]
	if !ok {
		return nil
	}
	rec.Status = idempotency.StatusFailed
	rec.StatusCode = statusCode
	rec.Response = append([]byte(nil), response...)
	s.m[key] = rec
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, rec := range s.m {
		if rec.Expired(now) {
			delete(s.m, key)
			n++
		}
	}
	return n, nil
}
