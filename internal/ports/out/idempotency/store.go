package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/mealwave/delivery-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Status is the lifecycle of a record: a key is created pending, then
// transitions exactly once to completed or failed. Expiry returns it
// to absent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrDuplicateKey is returned by CreatePending when a record for the key
// already exists. Two concurrent retries racing to create the same key
// surface as this error for the loser, never as silent corruption.
var ErrDuplicateKey = errors.New("idempotency key already exists")

// Origin carries diagnostic request metadata. Never used for matching.
type Origin struct {
	RemoteAddr string
	UserAgent  string
}

// Record is the durable state of one idempotency key.
//
// Fingerprint is immutable once set: a later request presenting the same
// key with a different fingerprint must be rejected upstream, not stored.
// Response and StatusCode are populated on completion (and, for
// diagnostics, on failure — failed responses are never replayed).
type Record struct {
	Key         Key
	Fingerprint string
	Status      Status

	StatusCode  int
	ContentType string
	Response    []byte

	Owner  domain.Identity
	Origin Origin

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its deadline at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store persists idempotency records.
//
// Implementations must enforce key uniqueness at the storage layer so a
// create race between two writers degrades to ErrDuplicateKey for one
// of them. Get must treat expired records as absent.
type Store interface {
	// Get returns the record for key, or ok=false when absent or expired.
	Get(ctx context.Context, key Key) (Record, bool, error)

	// CreatePending inserts rec (rec.Status is forced to pending).
	// Returns ErrDuplicateKey when a live record for rec.Key exists.
	// A failed record counts as live for lookup but is overwritten here,
	// allowing a retry after failure to re-execute.
	CreatePending(ctx context.Context, rec Record) error

	// Complete transitions key to completed and stores the response for
	// verbatim replay.
	Complete(ctx context.Context, key Key, statusCode int, contentType string, response []byte) error

	// Fail transitions key to failed, keeping the error payload for
	// diagnostics only.
	Fail(ctx context.Context, key Key, statusCode int, response []byte) error

	// DeleteExpired purges records whose ExpiresAt is at or before now,
	// returning how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
