package ws

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> Server commands
	MessageTypeCreateRoom    MessageType = "create_room"
	MessageTypeJoinRoom      MessageType = "join_room"
	MessageTypeLeaveRoom     MessageType = "leave_room"
	MessageTypeDeleteRoom    MessageType = "delete_room"
	MessageTypeRenameRoom    MessageType = "rename_room"
	MessageTypeExtendTime    MessageType = "extend_time"
	MessageTypeKickMember    MessageType = "kick_member"
	MessageTypeListRooms     MessageType = "list_rooms"
	MessageTypeGetDashboard  MessageType = "get_dashboard"
	MessageTypeSendMessage   MessageType = "send_message"
	MessageTypeDeleteMessage MessageType = "delete_message"
	MessageTypeReactMessage  MessageType = "react_message"
	MessageTypePinMessage    MessageType = "pin_message"
	MessageTypeMarkRead      MessageType = "mark_read"
	MessageTypeTyping        MessageType = "typing"
	MessageTypeStopTyping    MessageType = "stop_typing"
	MessageTypePing          MessageType = "ping"

	// Server -> Client messages. Engine broadcast events ("room:created",
	// "message:new", ...) are delivered with the event name as the type.
	MessageTypeAck   MessageType = "ack"
	MessageTypeError MessageType = "error"
	MessageTypePong  MessageType = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// CreateRoomPayload represents create room payload
type CreateRoomPayload struct {
	RoomID           string `json:"room_id,omitempty"` // caller-chosen code, ephemeral only
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Password         string `json:"password,omitempty"`
	BurnAfterReading bool   `json:"burn_after_reading,omitempty"`
	TimeLimit        int    `json:"time_limit,omitempty"`     // minutes
	MessageExpiry    int    `json:"message_expiry,omitempty"` // hours, durable only
}

// JoinRoomPayload represents join room payload
type JoinRoomPayload struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password,omitempty"`
}

// RoomPayload addresses a room-scoped command
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// RenameRoomPayload represents rename room payload
type RenameRoomPayload struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

// ExtendTimePayload represents extend time payload
type ExtendTimePayload struct {
	RoomID  string `json:"room_id"`
	Minutes int    `json:"minutes"`
}

// KickMemberPayload represents kick member payload
type KickMemberPayload struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
}

// SendMessagePayload represents send message payload
type SendMessagePayload struct {
	RoomID   string `json:"room_id"`
	Content  string `json:"content"`
	Type     string `json:"type,omitempty"` // text, image, video, audio, file
	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// MessageRefPayload addresses one message within a room
type MessageRefPayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

// ReactMessagePayload represents reaction toggle payload
type ReactMessagePayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// TypingPayload represents typing indicator payload
type TypingPayload struct {
	RoomID string `json:"room_id"`
}

// TypingBroadcastPayload represents user typing broadcast
type TypingBroadcastPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Typing   bool   `json:"typing"`
}

// ErrorPayload represents error message
type ErrorPayload struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// AckPayload represents a command acknowledgement, with the command's
// result attached when it has one.
type AckPayload struct {
	RequestID string      `json:"request_id,omitempty"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
}

// NewMessage creates a new message
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now(),
	}, nil
}

// NewErrorMessage creates a new error message
func NewErrorMessage(code int, message, requestID string) (*Message, error) {
	return NewMessage(MessageTypeError, &ErrorPayload{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

// NewAckMessage creates a command acknowledgement
func NewAckMessage(requestID string, data interface{}) (*Message, error) {
	return NewMessage(MessageTypeAck, &AckPayload{
		RequestID: requestID,
		Success:   true,
		Data:      data,
	})
}

// ParsePayload parses message payload into the given type
func (m *Message) ParsePayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
