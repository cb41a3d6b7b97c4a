package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mealwave/delivery-api/internal/domain"
)

// transport is the outbound surface of a socket. *websocket.Conn
// satisfies it; tests substitute fakes.
type transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Liveness is the per-connection heartbeat state machine:
//
//	alive -> probed -> alive   (probe answered before the next sweep)
//	alive -> probed -> reaped  (probe unanswered for a full sweep)
//
// An explicit state, not a shared boolean, so the sweep and the pong
// handler cannot race each other into a wrong decision.
type Liveness int32

const (
	LivenessAlive Liveness = iota
	LivenessProbed
	LivenessReaped
)

var errConnClosed = errors.New("connection closed")

// Conn is one admitted gateway connection. Frame writes are serialized
// through a mutex; liveness transitions are atomic.
type Conn struct {
	identity     domain.Identity
	t            transport
	writeTimeout time.Duration

	mu    sync.Mutex // serializes frame writes
	state atomic.Int32

	closeOnce sync.Once
}

func newConn(identity domain.Identity, t transport, writeTimeout time.Duration) *Conn {
	return &Conn{
		identity:     identity,
		t:            t,
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) Identity() domain.Identity { return c.identity }

func (c *Conn) Liveness() Liveness { return Liveness(c.state.Load()) }

// Send marshals env and writes it as one text frame. Writes to a reaped
// connection fail fast.
func (c *Conn) Send(env Envelope) error {
	if c.Liveness() == LivenessReaped {
		return errConnClosed
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t.WriteMessage(websocket.TextMessage, b)
}

// probe marks the connection probed and sends a ping control frame.
// Returns false when the connection was already probed, meaning the
// previous probe went unanswered.
func (c *Conn) probe() bool {
	if !c.state.CompareAndSwap(int32(LivenessAlive), int32(LivenessProbed)) {
		return false
	}
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.t.WriteControl(websocket.PingMessage, nil, deadline)
	return true
}

// reaffirm records a probe answer, returning the connection to alive.
// A pong after reaping is ignored.
func (c *Conn) reaffirm() {
	c.state.CompareAndSwap(int32(LivenessProbed), int32(LivenessAlive))
}

// closeWith sends a close frame with the given code and tears the
// connection down. Idempotent.
func (c *Conn) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(LivenessReaped))
		deadline := time.Now().Add(c.writeTimeout)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.t.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.t.Close()
	})
}
