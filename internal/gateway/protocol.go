package gateway

import "encoding/json"

// Frame types the server originates.
const (
	TypeConnected              = "connected"
	TypeNotification           = "notification"
	TypeOrderUpdate            = "order_update"
	TypePong                   = "pong"
	TypeJoinedOrderRoom        = "joined_order_room"
	TypeLeftOrderRoom          = "left_order_room"
	TypeNotificationMarkedRead = "notification_marked_read"
	TypeChatMessage            = "chat_message"
	TypeMessageSent            = "message_sent"
)

// Frame types clients originate.
const (
	TypePing                 = "ping"
	TypeJoinOrderRoom        = "join_order_room"
	TypeLeaveOrderRoom       = "leave_order_room"
	TypeMarkNotificationRead = "mark_notification_read"
	TypeSendMessageToPeer    = "send_message_to_peer"
)

// Envelope is the wire shape of every frame, in both directions:
// a JSON object {type, data?, timestamp?}.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// inboundFrame defers data decoding until the handler knows its shape.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}
