package service

import (
	"sync"
	"testing"
	"time"

	"github.com/go-demo/lanchat/internal/blob"
	"github.com/go-demo/lanchat/internal/model"
	"github.com/go-demo/lanchat/internal/repository"
	"github.com/go-demo/lanchat/internal/scheduler"
	"github.com/go-demo/lanchat/internal/store"
	"go.uber.org/zap"
)

// recordingBroadcaster captures every event the services emit and serves a
// canned presence list.
type recordingBroadcaster struct {
	mu      sync.Mutex
	events  []recordedEvent
	online  map[string][]model.OnlineUser
	removed []string
}

type recordedEvent struct {
	scope  string // "room", "all" or "user"
	target string
	event  Event
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{online: make(map[string][]model.OnlineUser)}
}

func (b *recordingBroadcaster) BroadcastRoom(roomID string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{scope: "room", target: roomID, event: event})
}

func (b *recordingBroadcaster) BroadcastAll(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{scope: "all", event: event})
}

func (b *recordingBroadcaster) SendUser(userID string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{scope: "user", target: userID, event: event})
}

func (b *recordingBroadcaster) RemoveFromRoom(roomID, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, roomID+"/"+userID)
}

func (b *recordingBroadcaster) OnlineUsers(roomID string) []model.OnlineUser {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online[roomID]
}

func (b *recordingBroadcaster) setOnline(roomID string, users ...model.OnlineUser) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.online[roomID] = users
}

func (b *recordingBroadcaster) eventsOfType(eventType string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.events {
		if e.event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	rooms    *repository.Rooms
	messages *repository.Messages
	sched    *scheduler.Scheduler
	bc       *recordingBroadcaster
	msgSvc   *MessageService
	roomSvc  *RoomService
}

// newTestEnv wires a full engine over a file-backed durable partition and
// an in-memory ephemeral one, with lifecycle windows shrunk to
// milliseconds so timer behavior is observable in tests.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	logger := zap.NewNop()
	rooms := repository.NewRooms(
		repository.NewDurableRoomRepository(fs, logger),
		repository.NewEphemeralRoomRepository(),
	)
	messages := repository.NewMessages(
		repository.NewDurableMessageRepository(fs, logger),
		repository.NewEphemeralMessageRepository(),
	)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	cfg := LifecycleConfig{
		EmptyRoomWindow: 40 * time.Millisecond,
		BurnWindow:      60 * time.Millisecond,
		BurnReadWindow:  20 * time.Millisecond,
	}

	bc := newRecordingBroadcaster()
	msgSvc := NewMessageService(rooms, messages, sched, blob.NopStore{}, cfg, logger)
	msgSvc.SetBroadcaster(bc)
	roomSvc := NewRoomService(rooms, msgSvc, sched, cfg, logger)
	roomSvc.SetBroadcaster(bc)

	return &testEnv{
		rooms:    rooms,
		messages: messages,
		sched:    sched,
		bc:       bc,
		msgSvc:   msgSvc,
		roomSvc:  roomSvc,
	}
}
