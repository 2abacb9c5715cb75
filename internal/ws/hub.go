package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-demo/lanchat/internal/model"
	apperrors "github.com/go-demo/lanchat/internal/pkg/errors"
	"github.com/go-demo/lanchat/internal/service"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const commandTimeout = 5 * time.Second

// Hub maintains the set of active clients and fans engine events out to
// them. It is the service layer's Broadcaster and the presence source for
// room occupancy.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients by room: roomID -> clients
	rooms map[string]map[*Client]bool

	// Clients by user: userID -> clients (supports multiple connections)
	users map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe access
	mu sync.RWMutex

	// Services
	roomService    *service.RoomService
	messageService *service.MessageService

	// Redis for Pub/Sub (horizontal scaling); nil disables mirroring
	redis      *redis.Client
	instanceID string

	// Logger
	logger *zap.Logger
}

// NewHub creates a new Hub
func NewHub(
	roomService *service.RoomService,
	messageService *service.MessageService,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		rooms:          make(map[string]map[*Client]bool),
		users:          make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		roomService:    roomService,
		messageService: messageService,
		redis:          redisClient,
		instanceID:     uuid.New().String(),
		logger:         logger,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	go h.subscribeRedis()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	h.clients[client] = true

	if h.users[client.userID] == nil {
		h.users[client.userID] = make(map[*Client]bool)
	}
	h.users[client.userID][client] = true
	total := len(h.clients)

	h.mu.Unlock()

	h.logger.Info("Client connected",
		zap.String("user_id", client.userID),
		zap.String("username", client.username),
		zap.String("mode", string(client.mode)),
		zap.Int("total_clients", total),
	)

	h.broadcastOnlineList()
}

func (h *Hub) unregisterClient(client *Client) {
	// Snapshot under the client's own lock; a concurrent kick can still be
	// mutating the subscription set.
	roomIDs := client.GetRooms()

	h.mu.Lock()

	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}

	delete(h.clients, client)

	if userClients, ok := h.users[client.userID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.users, client.userID)
		}
	}

	var emptied []string
	for _, roomID := range roomIDs {
		if h.detachLocked(roomID, client) {
			emptied = append(emptied, roomID)
		}
	}

	h.mu.Unlock()

	client.Close()

	h.logger.Info("Client disconnected",
		zap.String("user_id", client.userID),
		zap.String("username", client.username),
	)

	h.broadcastOnlineList()
	for _, roomID := range roomIDs {
		h.broadcastOnlineUsers(roomID)
	}
	for _, roomID := range emptied {
		h.roomService.HandleRoomEmpty(roomID, client.mode)
	}
}

// detachLocked removes a client from a room channel and reports whether
// the channel is now empty. Callers hold h.mu.
func (h *Hub) detachLocked(roomID string, client *Client) bool {
	roomClients, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	delete(roomClients, client)
	if len(roomClients) == 0 {
		delete(h.rooms, roomID)
		return true
	}
	return false
}

func (h *Hub) attach(roomID string, client *Client) {
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	h.mu.Unlock()

	client.JoinRoom(roomID)
}

func (h *Hub) detach(roomID string, client *Client) {
	h.mu.Lock()
	emptied := h.detachLocked(roomID, client)
	h.mu.Unlock()

	client.LeaveRoom(roomID)
	h.broadcastOnlineUsers(roomID)
	if emptied {
		h.roomService.HandleRoomEmpty(roomID, client.mode)
	}
}

// CreateRoom creates a room in the client's partition and attaches the
// creator to its channel.
func (h *Hub) CreateRoom(client *Client, payload CreateRoomPayload, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	room, err := h.roomService.Create(ctx, &service.CreateRoomInput{
		ID:               payload.RoomID,
		Name:             payload.Name,
		Description:      payload.Description,
		Password:         payload.Password,
		BurnAfterReading: payload.BurnAfterReading,
		TimeLimit:        payload.TimeLimit,
		MessageExpiry:    payload.MessageExpiry,
		Mode:             client.mode,
		CreatorID:        client.userID,
		CreatorName:      client.username,
	})
	if err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}

	h.attach(room.ID, client)
	h.broadcastOnlineUsers(room.ID)

	client.sendAck(requestID, room.Summary())
}

// JoinRoom joins the client to a room and replays its message history.
func (h *Hub) JoinRoom(client *Client, payload JoinRoomPayload, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	room, err := h.roomService.Join(ctx, payload.RoomID, client.mode, client.userID, client.username, payload.Password)
	if err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}

	h.attach(room.ID, client)
	h.broadcastOnlineUsers(room.ID)

	messages, err := h.messageService.List(ctx, room.ID, client.mode)
	if err != nil {
		messages = nil
	}

	client.sendAck(requestID, map[string]interface{}{
		"room":     room.Summary(),
		"messages": messages,
	})

	h.logger.Debug("Client joined room",
		zap.String("user_id", client.userID),
		zap.String("room_id", room.ID),
	)
}

// LeaveRoom detaches the client and updates the roster. A host leaving
// deletes the room.
func (h *Hub) LeaveRoom(client *Client, roomID, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	err := h.roomService.Leave(ctx, roomID, client.mode, client.userID, client.username)

	// The transport channel is dropped regardless: a client asking to
	// leave a room that just vanished still wants out.
	h.mu.Lock()
	h.detachLocked(roomID, client)
	h.mu.Unlock()
	client.LeaveRoom(roomID)

	if err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}

	h.broadcastOnlineUsers(roomID)
	client.sendAck(requestID, nil)
}

// DeleteRoom deletes a room on the host's behalf.
func (h *Hub) DeleteRoom(client *Client, roomID, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.roomService.Delete(ctx, roomID, client.mode, client.userID); err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, nil)
}

// RenameRoom renames a room on the host's behalf.
func (h *Hub) RenameRoom(client *Client, payload RenameRoomPayload, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	room, err := h.roomService.Rename(ctx, payload.RoomID, client.mode, client.userID, payload.Name)
	if err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, room.Summary())
}

// ExtendTime pushes a room's deadline out on the host's behalf.
func (h *Hub) ExtendTime(client *Client, payload ExtendTimePayload, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	room, err := h.roomService.ExtendTime(ctx, payload.RoomID, client.mode, client.userID, payload.Minutes)
	if err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, room.Summary())
}

// KickMember kicks a connected member on the host's behalf.
func (h *Hub) KickMember(client *Client, payload KickMemberPayload, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.roomService.Kick(ctx, payload.RoomID, client.mode, client.userID, client.username, payload.Username); err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, nil)
}

// ListRooms lists live rooms in the client's partition.
func (h *Hub) ListRooms(client *Client, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	rooms, err := h.roomService.List(ctx, client.mode)
	if err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, rooms)
}

// GetDashboard returns the host's security view of a room.
func (h *Hub) GetDashboard(client *Client, roomID, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	dash, err := h.roomService.GetDashboard(ctx, roomID, client.mode, client.userID)
	if err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, dash)
}

// SendMessage stores and broadcasts a chat message.
func (h *Hub) SendMessage(client *Client, payload SendMessagePayload, requestID string) {
	if !client.IsInRoom(payload.RoomID) {
		client.sendError(403, "you have not joined this room", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	msg, err := h.messageService.Send(ctx, &service.SendMessageInput{
		RoomID:   payload.RoomID,
		Mode:     client.mode,
		UserID:   client.userID,
		Username: client.username,
		Content:  payload.Content,
		Type:     model.MessageType(payload.Type),
		FileURL:  payload.FileURL,
		FileName: payload.FileName,
	})
	if err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}

	client.sendAck(requestID, map[string]string{"message_id": msg.ID})
}

// DeleteMessage deletes a message for its sender or the host.
func (h *Hub) DeleteMessage(client *Client, payload MessageRefPayload, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.messageService.Delete(ctx, payload.RoomID, client.mode, payload.MessageID, client.userID); err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, nil)
}

// ReactMessage toggles the client's reaction under an emoji.
func (h *Hub) ReactMessage(client *Client, payload ReactMessagePayload, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := h.messageService.React(ctx, payload.RoomID, client.mode, payload.MessageID, client.userID, payload.Emoji); err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, nil)
}

// PinMessage flips a message's pinned flag.
func (h *Hub) PinMessage(client *Client, payload MessageRefPayload, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := h.messageService.TogglePin(ctx, payload.RoomID, client.mode, payload.MessageID); err != nil {
		client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err), requestID)
		return
	}
	client.sendAck(requestID, nil)
}

// MarkRead records a read acknowledgement.
func (h *Hub) MarkRead(client *Client, payload MessageRefPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.messageService.MarkRead(ctx, payload.RoomID, client.mode, payload.MessageID, client.userID); err != nil {
		h.logger.Debug("Mark read failed",
			zap.String("room_id", payload.RoomID),
			zap.String("message_id", payload.MessageID),
			zap.Error(err),
		)
	}
}

// BroadcastTyping broadcasts a typing indicator to the room.
func (h *Hub) BroadcastTyping(client *Client, roomID string, typing bool) {
	if !client.IsInRoom(roomID) {
		return
	}

	h.BroadcastRoom(roomID, service.Event{
		Type: service.EventUserTyping,
		Payload: &TypingBroadcastPayload{
			RoomID:   roomID,
			UserID:   client.userID,
			Username: client.username,
			Typing:   typing,
		},
	})
}

// eventMessage converts an engine event into a wire message.
func eventMessage(event service.Event) (*Message, error) {
	return NewMessage(MessageType(event.Type), event.Payload)
}

// BroadcastRoom delivers an event to every connection in a room's channel.
func (h *Hub) BroadcastRoom(roomID string, event service.Event) {
	msg, err := eventMessage(event)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("event", event.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}

	h.publishRedis("room:"+roomID, msg)
}

// BroadcastAll delivers an event to every open connection.
func (h *Hub) BroadcastAll(event service.Event) {
	msg, err := eventMessage(event)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("event", event.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}

	h.publishRedis("all", msg)
}

// SendUser delivers an event to every connection of one principal.
func (h *Hub) SendUser(userID string, event service.Event) {
	msg, err := eventMessage(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for client := range h.users[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}
}

// RemoveFromRoom forcibly detaches a principal's connections from a room's
// channel. Used by kick.
func (h *Hub) RemoveFromRoom(roomID, userID string) {
	h.mu.Lock()
	var detached []*Client
	for client := range h.rooms[roomID] {
		if client.userID == userID {
			detached = append(detached, client)
		}
	}
	var emptied bool
	for _, client := range detached {
		if h.detachLocked(roomID, client) {
			emptied = true
		}
	}
	h.mu.Unlock()

	var mode model.Mode
	for _, client := range detached {
		client.LeaveRoom(roomID)
		mode = client.mode
	}

	if len(detached) > 0 {
		h.broadcastOnlineUsers(roomID)
	}
	if emptied {
		h.roomService.HandleRoomEmpty(roomID, mode)
	}
}

// OnlineUsers lists the principals connected to a room, one entry per
// user regardless of connection count.
func (h *Hub) OnlineUsers(roomID string) []model.OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	users := make([]model.OnlineUser, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		if seen[client.userID] {
			continue
		}
		seen[client.userID] = true
		users = append(users, model.OnlineUser{UserID: client.userID, Username: client.username})
	}
	return users
}

// broadcastOnlineList pushes the global online-user list to every open
// connection. Runs on every register and unregister.
func (h *Hub) broadcastOnlineList() {
	h.mu.RLock()
	users := make([]model.OnlineUser, 0, len(h.users))
	for userID, clients := range h.users {
		for client := range clients {
			users = append(users, model.OnlineUser{UserID: userID, Username: client.username})
			break
		}
	}
	h.mu.RUnlock()

	h.BroadcastAll(service.Event{
		Type: service.EventOnlineUsers,
		Payload: map[string]interface{}{
			"users": users,
			"count": len(users),
		},
	})
}

func (h *Hub) broadcastOnlineUsers(roomID string) {
	h.BroadcastRoom(roomID, service.Event{
		Type: service.EventRoomOnlineUsers,
		Payload: map[string]interface{}{
			"room_id": roomID,
			"users":   h.OnlineUsers(roomID),
		},
	})
}

// redisEnvelope carries a mirrored event between instances.
type redisEnvelope struct {
	Instance string          `json:"instance"`
	Channel  string          `json:"channel"`
	Message  json.RawMessage `json:"message"`
}

// Redis Pub/Sub for horizontal scaling
func (h *Hub) publishRedis(channel string, msg *Message) {
	if h.redis == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	envelope, err := json.Marshal(&redisEnvelope{
		Instance: h.instanceID,
		Channel:  channel,
		Message:  data,
	})
	if err != nil {
		return
	}

	ctx := context.Background()
	h.redis.Publish(ctx, "lanchat:events", envelope)
}

func (h *Hub) subscribeRedis() {
	if h.redis == nil {
		return
	}

	ctx := context.Background()
	pubsub := h.redis.Subscribe(ctx, "lanchat:events")
	defer pubsub.Close()

	for raw := range pubsub.Channel() {
		var envelope redisEnvelope
		if err := json.Unmarshal([]byte(raw.Payload), &envelope); err != nil {
			continue
		}
		if envelope.Instance == h.instanceID {
			continue
		}

		var msg Message
		if err := json.Unmarshal(envelope.Message, &msg); err != nil {
			continue
		}
		h.deliverMirrored(envelope.Channel, &msg)
	}
}

// deliverMirrored fans a message from another instance out to the local
// clients it targets, without re-publishing it.
func (h *Hub) deliverMirrored(channel string, msg *Message) {
	h.mu.RLock()
	var clients []*Client
	if channel == "all" {
		for client := range h.clients {
			clients = append(clients, client)
		}
	} else if roomID, ok := strings.CutPrefix(channel, "room:"); ok {
		for client := range h.rooms[roomID] {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}
}

// GetOnlineUserIDs returns all connected user IDs
func (h *Hub) GetOnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userIDs := make([]string, 0, len(h.users))
	for userID := range h.users {
		userIDs = append(userIDs, userID)
	}
	return userIDs
}

// IsUserOnline checks if a user has at least one open connection
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// GetRoomClients returns the number of connections in a room's channel
func (h *Hub) GetRoomClients(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]int{
		"total_clients": len(h.clients),
		"online_users":  len(h.users),
		"active_rooms":  len(h.rooms),
	}
}
