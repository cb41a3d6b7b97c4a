package gateway

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HeartbeatMonitor detects half-open connections that TCP failures leave
// looking alive. Each sweep reaps connections still probed from the
// previous sweep, then probes the survivors; a pong reaffirms before the
// next sweep.
type HeartbeatMonitor struct {
	registry *Registry
	rooms    *Rooms
	interval time.Duration
	log      *zap.Logger

	stop chan struct{}
	done chan struct{}
}

func NewHeartbeatMonitor(registry *Registry, rooms *Rooms, interval time.Duration, log *zap.Logger) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		registry: registry,
		rooms:    rooms,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs sweeps on a fixed interval until Stop.
func (m *HeartbeatMonitor) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (m *HeartbeatMonitor) Stop() {
	close(m.stop)
	<-m.done
}

// Sweep performs one liveness pass and returns how many connections were
// reaped. Exported so tests can drive sweeps deterministically.
func (m *HeartbeatMonitor) Sweep() int {
	reaped := 0
	for _, c := range m.registry.Snapshot() {
		// Still probed means the previous sweep's ping went unanswered.
		if !c.probe() {
			m.log.Info("reaping unresponsive connection",
				zap.String("subject", string(c.identity.Subject)),
				zap.String("role", string(c.identity.Role)))
			m.registry.Remove(c)
			m.rooms.LeaveAll(c)
			c.closeWith(websocket.CloseGoingAway, "heartbeat timeout")
			reaped++
		}
	}
	return reaped
}
