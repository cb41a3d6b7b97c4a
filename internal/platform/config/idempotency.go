package config

import (
	"fmt"
	"os"
	"time"
)

// IdempotencyConfig tunes the idempotency interceptor and its backing
// lock/store.
type IdempotencyConfig struct {
	// RecordTTL is how long a stored record may be replayed before it is
	// purged and the key returns to absent.
	RecordTTL time.Duration

	// LockTTL bounds how long a crashed holder can block retries of one key.
	LockTTL time.Duration

	// PendingRetryDelay is the single delay-and-recheck used to absorb the
	// narrow race when a lock miss means another retry is mid-create.
	PendingRetryDelay time.Duration

	// SweepInterval is how often expired records are purged.
	SweepInterval time.Duration
}

func LoadIdempotencyConfigFromEnv() (IdempotencyConfig, error) {
	cfg := IdempotencyConfig{
		RecordTTL:         24 * time.Hour,
		LockTTL:           30 * time.Second,
		PendingRetryDelay: 100 * time.Millisecond,
		SweepInterval:     time.Hour,
	}

	if v := os.Getenv("IDEMPOTENCY_RECORD_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return IdempotencyConfig{}, fmt.Errorf("IDEMPOTENCY_RECORD_TTL must be a duration (e.g. 24h): %w", err)
		}
		cfg.RecordTTL = d
	}
	if v := os.Getenv("IDEMPOTENCY_LOCK_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return IdempotencyConfig{}, fmt.Errorf("IDEMPOTENCY_LOCK_TTL must be a duration (e.g. 30s): %w", err)
		}
		cfg.LockTTL = d
	}
	if v := os.Getenv("IDEMPOTENCY_PENDING_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return IdempotencyConfig{}, fmt.Errorf("IDEMPOTENCY_PENDING_RETRY_DELAY must be a duration (e.g. 100ms): %w", err)
		}
		cfg.PendingRetryDelay = d
	}
	if v := os.Getenv("IDEMPOTENCY_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return IdempotencyConfig{}, fmt.Errorf("IDEMPOTENCY_SWEEP_INTERVAL must be a duration (e.g. 1h): %w", err)
		}
		cfg.SweepInterval = d
	}

	return cfg, nil
}
