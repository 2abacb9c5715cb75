package service

import (
	"github.com/go-demo/lanchat/internal/model"
)

// Broadcast event names, as delivered to connected clients.
const (
	EventRoomCreated       = "room:created"
	EventRoomRemoved       = "room:removed"
	EventRoomExpired       = "room:expired"
	EventRoomOnlineUsers   = "room:online-users"
	EventRoomDeletedByHost = "room:deleted-by-host"
	EventRoomTimeExtended  = "room:time-extended"

	EventOnlineUsers = "users:online"

	EventUserJoined = "user:joined"
	EventUserLeft   = "user:left"
	EventUserKicked = "user:kicked"
	EventUserTyping = "user:typing"

	EventMessageNew      = "message:new"
	EventMessageDeleted  = "message:deleted"
	EventMessageReaction = "message:reaction"
	EventMessagePinned   = "message:pinned"

	EventDashboardUpdate = "dashboard:update"
)

// Event is one state-change notification produced by the engine.
type Event struct {
	Type    string
	Payload interface{}
}

// Broadcaster is the transport side of the engine: it fans events out to
// connected clients and answers presence queries. The websocket hub
// implements it.
type Broadcaster interface {
	// BroadcastRoom delivers an event to every connection in the room's
	// transport channel.
	BroadcastRoom(roomID string, event Event)

	// BroadcastAll delivers an event to every open connection.
	BroadcastAll(event Event)

	// SendUser delivers an event to every connection of one principal.
	SendUser(userID string, event Event)

	// RemoveFromRoom forcibly detaches a principal's connections from a
	// room's transport channel (used by kick and room deletion).
	RemoveFromRoom(roomID, userID string)

	// OnlineUsers lists the principals currently connected to a room.
	OnlineUsers(roomID string) []model.OnlineUser
}

// nopBroadcaster drops everything. Services start with it so they are
// usable before (and without) a hub.
type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastRoom(string, Event)           {}
func (nopBroadcaster) BroadcastAll(Event)                    {}
func (nopBroadcaster) SendUser(string, Event)                {}
func (nopBroadcaster) RemoveFromRoom(string, string)         {}
func (nopBroadcaster) OnlineUsers(string) []model.OnlineUser { return nil }
