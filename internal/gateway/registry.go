package gateway

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mealwave/delivery-api/internal/domain"
)

// Registry maps authenticated identities to their live connection. It is
// the single source of truth for "is this user online, and on which
// handle".
//
// At most one entry exists per subject: a new connection from the same
// subject supersedes the old one. The superseded handle stays open until
// it closes on its own but is no longer addressable.
type Registry struct {
	log *zap.Logger

	mu    sync.RWMutex
	conns map[domain.SubjectID]*Conn
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:   log,
		conns: make(map[domain.SubjectID]*Conn),
	}
}

// Register inserts or replaces the entry for c's subject and returns the
// superseded connection, if any.
func (r *Registry) Register(c *Conn) *Conn {
	r.mu.Lock()
	prev := r.conns[c.identity.Subject]
	r.conns[c.identity.Subject] = c
	r.mu.Unlock()

	if prev != nil {
		r.log.Info("connection superseded",
			zap.String("subject", string(c.identity.Subject)),
			zap.String("role", string(c.identity.Role)))
	}
	return prev
}

// Remove deletes c's entry, but only when c is still the registered
// handle. A superseded connection closing late must not evict its
// successor.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[c.identity.Subject]; ok && cur == c {
		delete(r.conns, c.identity.Subject)
		return true
	}
	return false
}

// Get returns the live connection for subject.
func (r *Registry) Get(subject domain.SubjectID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[subject]
	return c, ok
}

// SendToUser delivers env to subject's connection. Offline subjects are
// a no-op: delivery here is fire-and-forget, queued delivery belongs to
// the external notification store.
func (r *Registry) SendToUser(subject domain.SubjectID, env Envelope) bool {
	c, ok := r.Get(subject)
	if !ok {
		return false
	}
	if err := c.Send(env); err != nil {
		r.log.Warn("send to user failed",
			zap.String("subject", string(subject)),
			zap.String("type", env.Type),
			zap.Error(err))
		return false
	}
	return true
}

func (r *Registry) CountOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ListOnlineByRole returns the subjects of every online connection with
// the given role.
func (r *Registry) ListOnlineByRole(role domain.Role) []domain.SubjectID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SubjectID
	for subject, c := range r.conns {
		if c.identity.Role == role {
			out = append(out, subject)
		}
	}
	return out
}

// Snapshot returns the current connections. The heartbeat sweep iterates
// over this copy so reaping can re-lock safely.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// CloseAll force-closes every connection and empties the registry. Used
// on shutdown.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[domain.SubjectID]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.closeWith(code, reason)
	}
}
