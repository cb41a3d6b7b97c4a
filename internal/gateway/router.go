package gateway

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mealwave/delivery-api/internal/domain"
	"github.com/mealwave/delivery-api/internal/ports/out/notifications"
)

// HandlerFunc processes one decoded inbound frame from c.
type HandlerFunc func(ctx context.Context, c *Conn, data json.RawMessage)

// Router decodes inbound frames and dispatches them by type. Handlers
// only touch the registry, rooms, and the notification boundary; they
// never perform business-domain writes.
type Router struct {
	registry *Registry
	rooms    *Rooms
	acker    notifications.Acker
	log      *zap.Logger

	handlers map[string]HandlerFunc
}

func NewRouter(registry *Registry, rooms *Rooms, acker notifications.Acker, log *zap.Logger) *Router {
	r := &Router{
		registry: registry,
		rooms:    rooms,
		acker:    acker,
		log:      log,
		handlers: make(map[string]HandlerFunc),
	}
	r.Handle(TypePing, r.handlePing)
	r.Handle(TypeJoinOrderRoom, r.handleJoinOrderRoom)
	r.Handle(TypeLeaveOrderRoom, r.handleLeaveOrderRoom)
	r.Handle(TypeMarkNotificationRead, r.handleMarkNotificationRead)
	r.Handle(TypeSendMessageToPeer, r.handleSendMessageToPeer)
	return r
}

// Handle registers (or overrides) the handler for a frame type.
func (r *Router) Handle(frameType string, h HandlerFunc) {
	r.handlers[frameType] = h
}

// Dispatch decodes raw and routes it. Malformed frames and unknown types
// are logged and dropped; they never terminate the connection.
func (r *Router) Dispatch(ctx context.Context, c *Conn, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.log.Warn("malformed frame dropped",
			zap.String("subject", string(c.identity.Subject)),
			zap.Error(err))
		return
	}
	h, ok := r.handlers[frame.Type]
	if !ok {
		r.log.Warn("unknown frame type dropped",
			zap.String("subject", string(c.identity.Subject)),
			zap.String("type", frame.Type))
		return
	}
	h(ctx, c, frame.Data)
}

func (r *Router) handlePing(_ context.Context, c *Conn, _ json.RawMessage) {
	// Application-level liveness reply also reaffirms the heartbeat state,
	// for clients that cannot emit pong control frames.
	c.reaffirm()
	_ = c.Send(Envelope{Type: TypePong})
}

type roomFrame struct {
	OrderID string `json:"orderId"`
}

func (r *Router) handleJoinOrderRoom(_ context.Context, c *Conn, data json.RawMessage) {
	var f roomFrame
	if err := json.Unmarshal(data, &f); err != nil || f.OrderID == "" {
		return
	}
	r.rooms.Join(domain.OrderID(f.OrderID), c)
	r.log.Info("joined order room",
		zap.String("subject", string(c.identity.Subject)),
		zap.String("order", f.OrderID))
	_ = c.Send(Envelope{Type: TypeJoinedOrderRoom, Data: roomFrame{OrderID: f.OrderID}})
}

func (r *Router) handleLeaveOrderRoom(_ context.Context, c *Conn, data json.RawMessage) {
	var f roomFrame
	if err := json.Unmarshal(data, &f); err != nil || f.OrderID == "" {
		return
	}
	r.rooms.Leave(domain.OrderID(f.OrderID), c)
	_ = c.Send(Envelope{Type: TypeLeftOrderRoom, Data: roomFrame{OrderID: f.OrderID}})
}

type markReadFrame struct {
	NotificationID string `json:"notificationId"`
}

func (r *Router) handleMarkNotificationRead(ctx context.Context, c *Conn, data json.RawMessage) {
	var f markReadFrame
	if err := json.Unmarshal(data, &f); err != nil || f.NotificationID == "" {
		return
	}
	if err := r.acker.MarkRead(ctx, c.identity.Subject, f.NotificationID); err != nil {
		r.log.Error("mark notification read failed",
			zap.String("subject", string(c.identity.Subject)),
			zap.String("notification", f.NotificationID),
			zap.Error(err))
		return
	}
	_ = c.Send(Envelope{Type: TypeNotificationMarkedRead, Data: markReadFrame{NotificationID: f.NotificationID}})
}

type peerMessageFrame struct {
	PeerID  string `json:"peerId"`
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
}

type chatMessageData struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	OrderID   string `json:"orderId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type messageSentData struct {
	PeerID    string `json:"peerId"`
	Delivered bool   `json:"delivered"`
}

func (r *Router) handleSendMessageToPeer(_ context.Context, c *Conn, data json.RawMessage) {
	var f peerMessageFrame
	if err := json.Unmarshal(data, &f); err != nil || f.PeerID == "" || f.Message == "" {
		return
	}
	delivered := r.registry.SendToUser(domain.SubjectID(f.PeerID), Envelope{
		Type: TypeChatMessage,
		Data: chatMessageData{
			From:      string(c.identity.Subject),
			Message:   f.Message,
			OrderID:   f.OrderID,
			Timestamp: time.Now().UnixMilli(),
		},
	})
	_ = c.Send(Envelope{Type: TypeMessageSent, Data: messageSentData{PeerID: f.PeerID, Delivered: delivered}})
}
