package gateway

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mealwave/delivery-api/internal/domain"
)

func newTestMonitor(t *testing.T) (*HeartbeatMonitor, *Registry, *Rooms) {
	t.Helper()
	log := zap.NewNop()
	registry := NewRegistry(log)
	rooms := NewRooms(log)
	return NewHeartbeatMonitor(registry, rooms, time.Minute, log), registry, rooms
}

func TestHeartbeat_ResponsiveConnectionSurvives(t *testing.T) {
	t.Parallel()

	m, registry, _ := newTestMonitor(t)
	c, tr := newTestConn("user-1", domain.RoleCustomer)
	registry.Register(c)

	for i := 0; i < 5; i++ {
		if reaped := m.Sweep(); reaped != 0 {
			t.Fatalf("sweep %d reaped %d responsive connections", i, reaped)
		}
		// Client answers the probe before the next sweep.
		c.reaffirm()
	}
	if registry.CountOnline() != 1 {
		t.Fatalf("CountOnline=%d, want 1", registry.CountOnline())
	}
	if tr.pingCount() != 5 {
		t.Fatalf("pings=%d, want 5", tr.pingCount())
	}
}

func TestHeartbeat_UnresponsiveConnectionReapedAfterTwoSweeps(t *testing.T) {
	t.Parallel()

	m, registry, rooms := newTestMonitor(t)
	c, tr := newTestConn("user-1", domain.RoleCustomer)
	registry.Register(c)
	rooms.Join("order-42", c)

	// First sweep probes; the client never answers.
	if reaped := m.Sweep(); reaped != 0 {
		t.Fatalf("first sweep reaped %d, want 0", reaped)
	}
	if registry.CountOnline() != 1 {
		t.Fatalf("connection removed after a single missed probe")
	}

	// Second sweep finds the probe unanswered and reaps.
	if reaped := m.Sweep(); reaped != 1 {
		t.Fatalf("second sweep reaped %d, want 1", reaped)
	}
	if registry.CountOnline() != 0 {
		t.Fatalf("CountOnline=%d after reap, want 0", registry.CountOnline())
	}
	if rooms.MemberCount("order-42") != 0 {
		t.Fatalf("reaped connection still in room")
	}
	if !tr.isClosed() {
		t.Fatalf("reaped connection not closed")
	}
	if c.Liveness() != LivenessReaped {
		t.Fatalf("liveness=%v, want reaped", c.Liveness())
	}
}

func TestHeartbeat_LatePongAfterReapIsIgnored(t *testing.T) {
	t.Parallel()

	m, registry, _ := newTestMonitor(t)
	c, _ := newTestConn("user-1", domain.RoleCustomer)
	registry.Register(c)

	m.Sweep()
	m.Sweep()
	c.reaffirm()
	if c.Liveness() != LivenessReaped {
		t.Fatalf("late pong resurrected a reaped connection")
	}
}

func TestHeartbeat_StartStop(t *testing.T) {
	t.Parallel()

	log := zap.NewNop()
	registry := NewRegistry(log)
	rooms := NewRooms(log)
	m := NewHeartbeatMonitor(registry, rooms, 10*time.Millisecond, log)

	c, _ := newTestConn("user-1", domain.RoleCustomer)
	registry.Register(c)

	m.Start()
	defer m.Stop()

	// With no pongs the loop reaps on its own within two intervals.
	deadline := time.After(time.Second)
	for registry.CountOnline() != 0 {
		select {
		case <-deadline:
			t.Fatalf("unresponsive connection not reaped by running monitor")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
