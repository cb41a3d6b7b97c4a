package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mealwave/delivery-api/internal/platform/config"
	clockport "github.com/mealwave/delivery-api/internal/ports/out/clock"
	"github.com/mealwave/delivery-api/internal/ports/out/idempotency"
	lockport "github.com/mealwave/delivery-api/internal/ports/out/lock"
)

const (
	// HeaderIdempotencyKey is the client-supplied retry token.
	HeaderIdempotencyKey = "Idempotency-Key"

	headerReplayKey      = "X-Idempotency-Key"
	headerReplayedMarker = "X-Idempotency-Replayed"
)

// FailureAction is what the interceptor does when a protection layer
// cannot give an answer.
type FailureAction string

const (
	// FailureReject refuses the request.
	FailureReject FailureAction = "reject"
	// FailureAllowUnprotected lets the request through without
	// idempotency protection.
	FailureAllowUnprotected FailureAction = "allow_unprotected"
)

// FailurePolicy decides, per failure mode, whether availability or
// strictness wins. A key conflict is a client error and is rejected; an
// unreachable lock cache or store degrades to unprotected execution so
// the API stays up.
type FailurePolicy struct {
	OnConflict   FailureAction
	OnLockerDown FailureAction
	OnStoreDown  FailureAction
}

func DefaultFailurePolicy() FailurePolicy {
	return FailurePolicy{
		OnConflict:   FailureReject,
		OnLockerDown: FailureAllowUnprotected,
		OnStoreDown:  FailureAllowUnprotected,
	}
}

// NewIdempotencyMiddleware makes mutating endpoints safe to retry.
//
// Requests carrying an Idempotency-Key execute at most once per key:
// the first attempt runs the handler and records its response, retries
// replay the recorded response verbatim with X-Idempotency-Replayed set.
// Reuse of a key with a different request payload is a 409. Responses
// with status >= 400 are recorded as failed and never replayed, so a
// client retry after a failure gets a fresh execution.
func NewIdempotencyMiddleware(
	store idempotency.Store,
	locker lockport.Locker,
	clk clockport.Clock,
	log *zap.Logger,
	cfg config.IdempotencyConfig,
	policy FailurePolicy,
) func(http.Handler) http.Handler {
	m := &idemMiddleware{
		store:  store,
		locker: locker,
		clk:    clk,
		log:    log,
		cfg:    cfg,
		policy: policy,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.serve(w, r, next)
		})
	}
}

type idemMiddleware struct {
	store  idempotency.Store
	locker lockport.Locker
	clk    clockport.Clock
	log    *zap.Logger
	cfg    config.IdempotencyConfig
	policy FailurePolicy
}

func (m *idemMiddleware) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		next.ServeHTTP(w, r)
		return
	}
	key := idempotency.Key(r.Header.Get(HeaderIdempotencyKey))
	if key == "" {
		next.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "failed to read request body", nil)
		return
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	fp := idempotency.ComputeFingerprint(r.Method, r.URL.Path, body)
	ctx := r.Context()

	rec, found, err := m.store.Get(ctx, key)
	if err != nil {
		m.storeDown(w, r, next, key, err)
		return
	}

	if found {
		m.serveExisting(w, r, next, key, fp, rec)
		return
	}

	acquired, err := m.locker.Acquire(ctx, string(key))
	if err != nil {
		m.log.Error("idempotency lock cache unreachable",
			zap.String("idempotencyKey", string(key)), zap.Error(err))
		if m.policy.OnLockerDown == FailureAllowUnprotected {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, r, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "idempotency protection unavailable", nil)
		return
	}
	if !acquired {
		// Another retry of this key holds the lock. Give it one window to
		// finish, then replay its result if it completed.
		m.recheckAfterRace(w, r, next, key, fp)
		return
	}
	defer func() {
		if err := m.locker.Release(context.WithoutCancel(ctx), string(key)); err != nil {
			m.log.Warn("idempotency lock release failed",
				zap.String("idempotencyKey", string(key)), zap.Error(err))
		}
	}()

	now := m.clk.Now().UTC()
	pending := idempotency.Record{
		Key:         key,
		Fingerprint: fp,
		Status:      idempotency.StatusPending,
		Origin: idempotency.Origin{
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		},
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.RecordTTL),
	}
	if id, ok := IdentityFromContext(ctx); ok {
		pending.Owner = id
	}

	if err := m.store.CreatePending(ctx, pending); err != nil {
		if errors.Is(err, idempotency.ErrDuplicateKey) {
			// Lost the create race despite holding the lock (e.g. a stale
			// lock was reclaimed). The winner's record decides.
			m.recheckAfterRace(w, r, next, key, fp)
			return
		}
		m.storeDown(w, r, next, key, err)
		return
	}

	m.executeAndRecord(w, r, next, key)
}

// serveExisting handles a request whose key already has a record.
func (m *idemMiddleware) serveExisting(w http.ResponseWriter, r *http.Request, next http.Handler, key idempotency.Key, fp string, rec idempotency.Record) {
	if rec.Fingerprint != fp {
		if m.policy.OnConflict == FailureReject {
			writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_CONFLICT",
				"idempotency key reused with a different request payload", nil)
			return
		}
		next.ServeHTTP(w, r)
		return
	}

	if rec.Status == idempotency.StatusCompleted {
		m.replay(w, rec)
		return
	}

	// Pending or failed: re-execution is needed, so contend for the lock.
	// A held lock means the first attempt (or another retry) is still in
	// flight; a free lock means its owner crashed or already failed.
	ctx := r.Context()
	acquired, err := m.locker.Acquire(ctx, string(key))
	if err != nil {
		m.log.Error("idempotency lock cache unreachable",
			zap.String("idempotencyKey", string(key)), zap.Error(err))
		if m.policy.OnLockerDown == FailureAllowUnprotected {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, r, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "idempotency protection unavailable", nil)
		return
	}
	if !acquired {
		m.recheckAfterRace(w, r, next, key, fp)
		return
	}
	defer func() {
		if err := m.locker.Release(context.WithoutCancel(ctx), string(key)); err != nil {
			m.log.Warn("idempotency lock release failed",
				zap.String("idempotencyKey", string(key)), zap.Error(err))
		}
	}()

	if rec.Status == idempotency.StatusFailed {
		// Failed attempts are retryable: rewrite the record and run again.
		now := m.clk.Now().UTC()
		fresh := rec
		fresh.Fingerprint = fp
		fresh.Status = idempotency.StatusPending
		fresh.StatusCode = 0
		fresh.ContentType = ""
		fresh.Response = nil
		fresh.CreatedAt = now
		fresh.ExpiresAt = now.Add(m.cfg.RecordTTL)
		if err := m.store.CreatePending(ctx, fresh); err != nil && !errors.Is(err, idempotency.ErrDuplicateKey) {
			m.storeDown(w, r, next, key, err)
			return
		}
	} else {
		// Pending with a free lock: the owner crashed mid-request. Blocking
		// here could hold the client for the full record TTL, so execute
		// and let the response land on the existing record.
		m.log.Warn("idempotency key still pending, proceeding",
			zap.String("idempotencyKey", string(key)))
	}
	m.executeAndRecord(w, r, next, key)
}

// recheckAfterRace is the single delay-and-recheck taken when another
// retry of the same key won the lock or the record create.
func (m *idemMiddleware) recheckAfterRace(w http.ResponseWriter, r *http.Request, next http.Handler, key idempotency.Key, fp string) {
	select {
	case <-r.Context().Done():
		writeError(w, r, http.StatusServiceUnavailable, "REQUEST_CANCELLED", "request cancelled", nil)
		return
	case <-time.After(m.cfg.PendingRetryDelay):
	}

	rec, found, err := m.store.Get(r.Context(), key)
	if err != nil {
		m.storeDown(w, r, next, key, err)
		return
	}
	if found {
		if rec.Fingerprint != fp && m.policy.OnConflict == FailureReject {
			writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_CONFLICT",
				"idempotency key reused with a different request payload", nil)
			return
		}
		if rec.Status == idempotency.StatusCompleted {
			m.replay(w, rec)
			return
		}
	}

	m.log.Warn("concurrent retry unresolved after recheck, proceeding unprotected",
		zap.String("idempotencyKey", string(key)))
	next.ServeHTTP(w, r)
}

// executeAndRecord runs the handler with response capture and persists
// the outcome against the pending record.
func (m *idemMiddleware) executeAndRecord(w http.ResponseWriter, r *http.Request, next http.Handler, key idempotency.Key) {
	rw := &captureWriter{ResponseWriter: w}
	next.ServeHTTP(rw, r)

	status := rw.Status()
	ctx := context.WithoutCancel(r.Context())
	switch {
	case status >= 200 && status < 300:
		contentType := rw.Header().Get("Content-Type")
		if err := m.store.Complete(ctx, key, status, contentType, rw.Body()); err != nil {
			m.log.Error("idempotency record complete failed",
				zap.String("idempotencyKey", string(key)), zap.Error(err))
		}
	case status >= 400:
		if err := m.store.Fail(ctx, key, status, rw.Body()); err != nil {
			m.log.Error("idempotency record fail-mark failed",
				zap.String("idempotencyKey", string(key)), zap.Error(err))
		}
	}
}

func (m *idemMiddleware) replay(w http.ResponseWriter, rec idempotency.Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(headerReplayKey, string(rec.Key))
	w.Header().Set(headerReplayedMarker, "true")
	w.WriteHeader(rec.StatusCode)
	_, _ = w.Write(rec.Response)
}

func (m *idemMiddleware) storeDown(w http.ResponseWriter, r *http.Request, next http.Handler, key idempotency.Key, err error) {
	m.log.Error("idempotency store unreachable",
		zap.String("idempotencyKey", string(key)), zap.Error(err))
	if m.policy.OnStoreDown == FailureAllowUnprotected {
		next.ServeHTTP(w, r)
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "idempotency protection unavailable", nil)
}

// captureWriter tees the response so the interceptor can persist what
// the handler wrote while still streaming it to the client.
type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	if !cw.wroteHeader {
		cw.status = code
		cw.wroteHeader = true
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	cw.buf.Write(p)
	return cw.ResponseWriter.Write(p)
}

func (cw *captureWriter) Status() int {
	if !cw.wroteHeader {
		return http.StatusOK
	}
	return cw.status
}

func (cw *captureWriter) Body() []byte { return cw.buf.Bytes() }
