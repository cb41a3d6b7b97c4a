package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/mealwave/delivery-api/internal/adapters/postgres"
	"github.com/mealwave/delivery-api/internal/domain"
	"github.com/mealwave/delivery-api/internal/ports/out/idempotency"
)

// Store is a Postgres implementation of idempotency.Store backed by the
// idempotency_keys table (unique index on idempotency_key, btree index
// on expires_at for the purge sweep).
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Schema is the DDL the store expects. Applied by deployment migrations;
// exported so test harnesses can create the table directly.
const Schema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	idempotency_key text PRIMARY KEY,
	fingerprint     text NOT NULL,
	status          text NOT NULL,
	status_code     int,
	content_type    text,
	response        bytea,
	owner_subject   text,
	owner_role      text,
	remote_addr     text,
	user_agent      text,
	created_at      timestamptz NOT NULL,
	expires_at      timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS idempotency_keys_expires_at_idx ON idempotency_keys (expires_at);
`

func (s *Store) Get(ctx context.Context, key idempotency.Key) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, errors.New("nil postgres pool")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT fingerprint, status, status_code, content_type, response,
		       owner_subject, owner_role, remote_addr, user_agent,
		       created_at, expires_at
		FROM idempotency_keys
		WHERE idempotency_key = $1
		  AND expires_at > now()
	`, string(key))

	var (
		rec         idempotency.Record
		statusCode  *int
		contentType *string
		subject     *string
		role        *string
		remoteAddr  *string
		userAgent   *string
	)
	rec.Key = key
	var status string
	if err := row.Scan(&rec.Fingerprint, &status, &statusCode, &contentType, &rec.Response,
		&subject, &role, &remoteAddr, &userAgent, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	rec.Status = idempotency.Status(status)
	if statusCode != nil {
		rec.StatusCode = *statusCode
	}
	if contentType != nil {
		rec.ContentType = *contentType
	}
	if subject != nil {
		rec.Owner.Subject = domain.SubjectID(*subject)
	}
	if role != nil {
		rec.Owner.Role = domain.Role(*role)
	}
	if remoteAddr != nil {
		rec.Origin.RemoteAddr = *remoteAddr
	}
	if userAgent != nil {
		rec.Origin.UserAgent = *userAgent
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return rec, true, nil
}

func (s *Store) CreatePending(ctx context.Context, rec idempotency.Record) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// Failed and expired rows are rewritable in place; anything else hits
	// the primary key and reports the duplicate-create race.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (
			idempotency_key, fingerprint, status,
			owner_subject, owner_role, remote_addr, user_agent,
			created_at, expires_at
		) VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			fingerprint   = EXCLUDED.fingerprint,
			status        = 'pending',
			status_code   = NULL,
			content_type  = NULL,
			response      = NULL,
			owner_subject = EXCLUDED.owner_subject,
			owner_role    = EXCLUDED.owner_role,
			remote_addr   = EXCLUDED.remote_addr,
			user_agent    = EXCLUDED.user_agent,
			created_at    = EXCLUDED.created_at,
			expires_at    = EXCLUDED.expires_at
		WHERE idempotency_keys.status = 'failed'
		   OR idempotency_keys.expires_at <= now()
	`,
		string(rec.Key),
		rec.Fingerprint,
		nullIfEmpty(string(rec.Owner.Subject)),
		nullIfEmpty(string(rec.Owner.Role)),
		nullIfEmpty(rec.Origin.RemoteAddr),
		nullIfEmpty(rec.Origin.UserAgent),
		createdAt.UTC(),
		rec.ExpiresAt.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			return idempotency.ErrDuplicateKey
		}
		return err
	}
	// Conditional upsert matched a live pending/completed row: no rows
	// touched means someone else owns the key.
	if tag.RowsAffected() == 0 {
		return idempotency.ErrDuplicateKey
	}
	return nil
}

func (s *Store) Complete(ctx context.Context, key idempotency.Key, statusCode int, contentType string, response []byte) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = 'completed', status_code = $2, content_type = $3, response = $4
		WHERE idempotency_key = $1
	`, string(key), statusCode, contentType, response)
	return err
}

func (s *Store) Fail(ctx context.Context, key idempotency.Key, statusCode int, response []byte) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = 'failed', status_code = $2, response = $3
		WHERE idempotency_key = $1
	`, string(key), statusCode, response)
	return err
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if s.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys WHERE expires_at <= $1
	`, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
