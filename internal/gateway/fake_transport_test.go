package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mealwave/delivery-api/internal/domain"
)

// fakeTransport records frames written to it, standing in for a real
// websocket connection.
type fakeTransport struct {
	mu         sync.Mutex
	frames     [][]byte
	pings      int
	closeSent  bool
	closed     bool
	failWrites bool
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites || f.closed {
		return errors.New("write failed")
	}
	if messageType == websocket.TextMessage {
		f.frames = append(f.frames, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch messageType {
	case websocket.PingMessage:
		f.pings++
	case websocket.CloseMessage:
		f.closeSent = true
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeTransport) lastFrame() (Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal(f.frames[len(f.frames)-1], &env); err != nil {
		return Envelope{}, false
	}
	return env, true
}

func (f *fakeTransport) frameTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, b := range f.frames {
		var env Envelope
		if json.Unmarshal(b, &env) == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestConn(subject string, role domain.Role) (*Conn, *fakeTransport) {
	t := &fakeTransport{}
	c := newConn(domain.Identity{Subject: domain.SubjectID(subject), Role: role}, t, time.Second)
	return c, t
}
