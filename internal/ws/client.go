package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-demo/lanchat/internal/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send buffer size
	sendBufferSize = 256
)

// Client represents a WebSocket client connection. Each connection is
// bound to one persistence partition for its whole lifetime.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	username string
	mode     model.Mode
	rooms    map[string]bool // Subscribed rooms
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewClient creates a new client
func NewClient(hub *Hub, conn *websocket.Conn, userID, username string, mode model.Mode, logger *zap.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		userID:   userID,
		username: username,
		mode:     mode,
		rooms:    make(map[string]bool),
		logger:   logger,
	}
}

// GetUserID returns client's user ID
func (c *Client) GetUserID() string {
	return c.userID
}

// GetUsername returns client's username
func (c *Client) GetUsername() string {
	return c.username
}

// GetMode returns the partition this connection is bound to
func (c *Client) GetMode() model.Mode {
	return c.mode
}

// GetRooms returns client's subscribed rooms
func (c *Client) GetRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// IsInRoom checks if client is in a room
func (c *Client) IsInRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

// JoinRoom adds client to a room
func (c *Client) JoinRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = true
}

// LeaveRoom removes client from a room
func (c *Client) LeaveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.String("user_id", c.userID),
					zap.Error(err),
				)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Failed to parse message",
				zap.String("user_id", c.userID),
				zap.Error(err),
			)
			c.sendError(400, "invalid message format", "")
			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming commands based on type
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeCreateRoom:
		c.handleCreateRoom(msg)
	case MessageTypeJoinRoom:
		c.handleJoinRoom(msg)
	case MessageTypeLeaveRoom:
		c.handleLeaveRoom(msg)
	case MessageTypeDeleteRoom:
		c.handleDeleteRoom(msg)
	case MessageTypeRenameRoom:
		c.handleRenameRoom(msg)
	case MessageTypeExtendTime:
		c.handleExtendTime(msg)
	case MessageTypeKickMember:
		c.handleKickMember(msg)
	case MessageTypeListRooms:
		c.hub.ListRooms(c, msg.RequestID)
	case MessageTypeGetDashboard:
		c.handleGetDashboard(msg)
	case MessageTypeSendMessage:
		c.handleSendMessage(msg)
	case MessageTypeDeleteMessage:
		c.handleDeleteMessage(msg)
	case MessageTypeReactMessage:
		c.handleReactMessage(msg)
	case MessageTypePinMessage:
		c.handlePinMessage(msg)
	case MessageTypeMarkRead:
		c.handleMarkRead(msg)
	case MessageTypeTyping:
		c.handleTyping(msg, true)
	case MessageTypeStopTyping:
		c.handleTyping(msg, false)
	case MessageTypePing:
		c.handlePing()
	default:
		c.sendError(400, "unknown message type", msg.RequestID)
	}
}

func (c *Client) handleCreateRoom(msg *Message) {
	var payload CreateRoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.CreateRoom(c, payload, msg.RequestID)
}

func (c *Client) handleJoinRoom(msg *Message) {
	var payload JoinRoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.JoinRoom(c, payload, msg.RequestID)
}

func (c *Client) handleLeaveRoom(msg *Message) {
	var payload RoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.LeaveRoom(c, payload.RoomID, msg.RequestID)
}

func (c *Client) handleDeleteRoom(msg *Message) {
	var payload RoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.DeleteRoom(c, payload.RoomID, msg.RequestID)
}

func (c *Client) handleRenameRoom(msg *Message) {
	var payload RenameRoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.RenameRoom(c, payload, msg.RequestID)
}

func (c *Client) handleExtendTime(msg *Message) {
	var payload ExtendTimePayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.ExtendTime(c, payload, msg.RequestID)
}

func (c *Client) handleKickMember(msg *Message) {
	var payload KickMemberPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.KickMember(c, payload, msg.RequestID)
}

func (c *Client) handleGetDashboard(msg *Message) {
	var payload RoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.GetDashboard(c, payload.RoomID, msg.RequestID)
}

func (c *Client) handleSendMessage(msg *Message) {
	var payload SendMessagePayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.SendMessage(c, payload, msg.RequestID)
}

func (c *Client) handleDeleteMessage(msg *Message) {
	var payload MessageRefPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.DeleteMessage(c, payload, msg.RequestID)
}

func (c *Client) handleReactMessage(msg *Message) {
	var payload ReactMessagePayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.ReactMessage(c, payload, msg.RequestID)
}

func (c *Client) handlePinMessage(msg *Message) {
	var payload MessageRefPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload", msg.RequestID)
		return
	}

	c.hub.PinMessage(c, payload, msg.RequestID)
}

func (c *Client) handleMarkRead(msg *Message) {
	var payload MessageRefPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return
	}

	c.hub.MarkRead(c, payload)
}

func (c *Client) handleTyping(msg *Message, typing bool) {
	var payload TypingPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return
	}

	c.hub.BroadcastTyping(c, payload.RoomID, typing)
}

func (c *Client) handlePing() {
	pongMsg, _ := NewMessage(MessageTypePong, nil)
	c.SendMessage(pongMsg)
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message",
			zap.String("user_id", c.userID),
			zap.Error(err),
		)
		return
	}

	select {
	case c.send <- data:
	default:
		// Channel is full, client is slow
		c.logger.Warn("Client send buffer full",
			zap.String("user_id", c.userID),
		)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(code int, message, requestID string) {
	errMsg, _ := NewErrorMessage(code, message, requestID)
	c.SendMessage(errMsg)
}

// sendAck acknowledges a command, attaching its result when present
func (c *Client) sendAck(requestID string, data interface{}) {
	ackMsg, err := NewAckMessage(requestID, data)
	if err != nil {
		c.logger.Error("Failed to build ack",
			zap.String("user_id", c.userID),
			zap.Error(err),
		)
		return
	}
	c.SendMessage(ackMsg)
}

// Close closes the client connection
func (c *Client) Close() {
	close(c.send)
}
