package gateway

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mealwave/delivery-api/internal/domain"
)

// Rooms maps an order ID to the set of connections interested in it.
// Membership is many-to-many; a room with zero members is pruned
// immediately.
type Rooms struct {
	log *zap.Logger

	mu      sync.RWMutex
	members map[domain.OrderID]map[*Conn]struct{}
	joined  map[*Conn]map[domain.OrderID]struct{} // reverse index for LeaveAll
}

func NewRooms(log *zap.Logger) *Rooms {
	return &Rooms{
		log:     log,
		members: make(map[domain.OrderID]map[*Conn]struct{}),
		joined:  make(map[*Conn]map[domain.OrderID]struct{}),
	}
}

// Join adds c to roomID. Idempotent.
func (r *Rooms) Join(roomID domain.OrderID, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[roomID] == nil {
		r.members[roomID] = make(map[*Conn]struct{})
	}
	r.members[roomID][c] = struct{}{}
	if r.joined[c] == nil {
		r.joined[c] = make(map[domain.OrderID]struct{})
	}
	r.joined[c][roomID] = struct{}{}
}

// Leave removes c from roomID. Idempotent; an empty room is deleted.
func (r *Rooms) Leave(roomID domain.OrderID, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomID, c)
}

func (r *Rooms) leaveLocked(roomID domain.OrderID, c *Conn) {
	if set, ok := r.members[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.members, roomID)
		}
	}
	if set, ok := r.joined[c]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(r.joined, c)
		}
	}
}

// LeaveAll removes c from every room it joined. Called on disconnect and
// on heartbeat reap.
func (r *Rooms) LeaveAll(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID := range r.joined[c] {
		r.leaveLocked(roomID, c)
	}
}

// MemberCount returns the current size of roomID.
func (r *Rooms) MemberCount(roomID domain.OrderID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[roomID])
}

// Broadcast delivers env to every member of roomID present at call time.
// Delivery is best-effort per member: one failed write never aborts the
// rest. Returns the number of successful deliveries.
func (r *Rooms) Broadcast(roomID domain.OrderID, env Envelope) int {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.members[roomID]))
	for c := range r.members[roomID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if err := c.Send(env); err != nil {
			r.log.Warn("room broadcast member write failed",
				zap.String("room", string(roomID)),
				zap.String("subject", string(c.identity.Subject)),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
