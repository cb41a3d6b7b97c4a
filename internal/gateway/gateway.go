package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mealwave/delivery-api/internal/domain"
	"github.com/mealwave/delivery-api/internal/platform/config"
	"github.com/mealwave/delivery-api/internal/ports/out/notifications"
	"github.com/mealwave/delivery-api/internal/ports/out/push"
)

// TokenValidator authenticates a socket's bearer credential at
// connection time.
type TokenValidator interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Gateway owns the realtime delivery path: it authenticates, registers,
// groups, and keeps alive long-lived connections, and implements the
// push boundary business logic delivers events through.
//
// Constructed once and torn down on shutdown; anything that needs to
// push events receives it by injection, never as ambient global state.
type Gateway struct {
	cfg       config.GatewayConfig
	validator TokenValidator
	log       *zap.Logger

	registry  *Registry
	rooms     *Rooms
	router    *Router
	heartbeat *HeartbeatMonitor

	upgrader websocket.Upgrader
}

func New(cfg config.GatewayConfig, validator TokenValidator, acker notifications.Acker, log *zap.Logger) *Gateway {
	registry := NewRegistry(log)
	rooms := NewRooms(log)
	return &Gateway{
		cfg:       cfg,
		validator: validator,
		log:       log,
		registry:  registry,
		rooms:     rooms,
		router:    NewRouter(registry, rooms, acker, log),
		heartbeat: NewHeartbeatMonitor(registry, rooms, cfg.HeartbeatInterval, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Mobile and web clients connect from arbitrary origins; the
			// bearer token is the admission control.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (g *Gateway) Registry() *Registry { return g.registry }
func (g *Gateway) Rooms() *Rooms       { return g.rooms }
func (g *Gateway) Router() *Router     { return g.router }

// Start launches the heartbeat sweep loop.
func (g *Gateway) Start() {
	g.heartbeat.Start()
}

// Shutdown stops the heartbeat and force-closes every held connection.
func (g *Gateway) Shutdown(ctx context.Context) {
	_ = ctx
	g.heartbeat.Stop()
	g.registry.CloseAll(websocket.CloseGoingAway, "server shutting down")
}

// ServeHTTP upgrades the request and runs the connection to completion.
//
// The credential arrives as ?token= or an Authorization bearer header.
// Authentication happens post-upgrade so the client receives a proper
// close frame (1008) instead of a bare HTTP error.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	token := bearerToken(r)
	if token == "" {
		closeRejected(ws, "token required")
		return
	}
	identity, err := g.validator.Verify(r.Context(), token)
	if err != nil {
		closeRejected(ws, "invalid token")
		return
	}

	c := newConn(identity, ws, g.cfg.WriteTimeout)
	ws.SetReadLimit(g.cfg.MaxFrameBytes)
	ws.SetPongHandler(func(string) error {
		c.reaffirm()
		return nil
	})

	g.registry.Register(c)
	g.log.Info("connection admitted",
		zap.String("subject", string(identity.Subject)),
		zap.String("role", string(identity.Role)))

	_ = c.Send(Envelope{
		Type: TypeConnected,
		Data: map[string]string{"message": "connected to realtime notifications"},
	})

	g.readLoop(r.Context(), c, ws)
}

func (g *Gateway) readLoop(ctx context.Context, c *Conn, ws *websocket.Conn) {
	defer func() {
		g.registry.Remove(c)
		g.rooms.LeaveAll(c)
		c.closeWith(websocket.CloseNormalClosure, "")
		g.log.Info("connection closed",
			zap.String("subject", string(c.identity.Subject)))
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		g.router.Dispatch(ctx, c, data)
	}
}

// SendNotificationToUser implements push.Pusher.
func (g *Gateway) SendNotificationToUser(subject domain.SubjectID, n push.Notification) {
	g.registry.SendToUser(subject, Envelope{Type: TypeNotification, Data: n})
}

// SendOrderUpdateToUser implements push.Pusher.
func (g *Gateway) SendOrderUpdateToUser(subject domain.SubjectID, u push.OrderUpdate) {
	g.registry.SendToUser(subject, Envelope{Type: TypeOrderUpdate, Data: u})
}

// BroadcastOrderUpdate implements push.Pusher.
func (g *Gateway) BroadcastOrderUpdate(orderID domain.OrderID, u push.OrderUpdate) {
	n := g.rooms.Broadcast(orderID, Envelope{Type: TypeOrderUpdate, Data: u})
	g.log.Debug("order update broadcast",
		zap.String("order", string(orderID)),
		zap.Int("delivered", n))
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(authz, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	}
	return ""
}

func closeRejected(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.Close()
}
