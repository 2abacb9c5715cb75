package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-demo/lanchat/internal/model"
	"github.com/go-demo/lanchat/internal/store"
	"go.uber.org/zap"
)

const roomsCollection = "rooms"

// RoomRepository is CRUD over one partition of rooms. Read paths never
// return a room whose expiry has passed; observing one deletes it.
type RoomRepository interface {
	// Create stores a new room. Returns ErrRoomExists on a duplicate id.
	Create(ctx context.Context, room *model.Room) error

	// Get returns a room by id. Returns ErrRoomExpired (after deleting the
	// room) when its deadline has passed, ErrRoomNotFound when absent.
	Get(ctx context.Context, id string) (*model.Room, error)

	// List returns all live rooms, pruning expired ones from the backing
	// store as a side effect.
	List(ctx context.Context) ([]*model.Room, error)

	// ListWithExpired returns every room including expired ones, without
	// pruning. The cleanup sweep uses this so it can broadcast expiry
	// before deletion.
	ListWithExpired(ctx context.Context) ([]*model.Room, error)

	// Save persists a mutated room. Returns ErrRoomNotFound when absent.
	Save(ctx context.Context, room *model.Room) error

	// Delete removes a room. Deleting an absent room is a no-op.
	Delete(ctx context.Context, id string) error

	// AddMember and RemoveMember are idempotent membership updates.
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
}

// durableRoomRepository backs onto a single JSON document holding an array
// of rooms. Every mutation is a full read-modify-write, serialized by the
// repository mutex within this process.
type durableRoomRepository struct {
	store  store.Collection
	logger *zap.Logger
	mu     sync.Mutex
}

func NewDurableRoomRepository(s store.Collection, logger *zap.Logger) RoomRepository {
	return &durableRoomRepository{store: s, logger: logger}
}

// readAll degrades to an empty collection on an unreadable or corrupt
// document. Availability of the room list wins over strictness here.
func (r *durableRoomRepository) readAll(ctx context.Context) []*model.Room {
	data, err := r.store.Read(ctx, roomsCollection)
	if err != nil {
		r.logger.Error("Failed to read rooms collection", zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var rooms []*model.Room
	if err := json.Unmarshal(data, &rooms); err != nil {
		r.logger.Error("Rooms collection is corrupt, treating as empty", zap.Error(err))
		return nil
	}
	return rooms
}

func (r *durableRoomRepository) writeAll(ctx context.Context, rooms []*model.Room) error {
	if rooms == nil {
		rooms = []*model.Room{}
	}
	data, err := json.Marshal(rooms)
	if err != nil {
		return err
	}
	if err := r.store.Write(ctx, roomsCollection, data); err != nil {
		r.logger.Error("Failed to write rooms collection", zap.Error(err))
		return err
	}
	return nil
}

func (r *durableRoomRepository) Create(ctx context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.readAll(ctx)
	for _, existing := range rooms {
		if existing.ID == room.ID {
			return ErrRoomExists
		}
	}

	return r.writeAll(ctx, append(rooms, room))
}

func (r *durableRoomRepository) Get(ctx context.Context, id string) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.readAll(ctx)
	now := time.Now()
	for i, room := range rooms {
		if room.ID != id {
			continue
		}
		if room.IsExpired(now) {
			// Expired rooms are deleted on observation.
			if err := r.writeAll(ctx, append(rooms[:i], rooms[i+1:]...)); err != nil {
				r.logger.Warn("Failed to prune expired room", zap.String("room_id", id), zap.Error(err))
			}
			return nil, ErrRoomExpired
		}
		return room, nil
	}
	return nil, ErrRoomNotFound
}

func (r *durableRoomRepository) List(ctx context.Context) ([]*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.readAll(ctx)
	now := time.Now()

	live := make([]*model.Room, 0, len(rooms))
	pruned := false
	for _, room := range rooms {
		if room.IsExpired(now) {
			pruned = true
			continue
		}
		live = append(live, room)
	}

	if pruned {
		if err := r.writeAll(ctx, live); err != nil {
			r.logger.Warn("Failed to prune expired rooms", zap.Error(err))
		}
	}
	return live, nil
}

func (r *durableRoomRepository) ListWithExpired(ctx context.Context) ([]*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readAll(ctx), nil
}

func (r *durableRoomRepository) Save(ctx context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.readAll(ctx)
	for i, existing := range rooms {
		if existing.ID == room.ID {
			rooms[i] = room
			return r.writeAll(ctx, rooms)
		}
	}
	return ErrRoomNotFound
}

func (r *durableRoomRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.readAll(ctx)
	for i, existing := range rooms {
		if existing.ID == id {
			return r.writeAll(ctx, append(rooms[:i], rooms[i+1:]...))
		}
	}
	// Cleanup races with explicit deletes; an absent target is a no-op.
	return nil
}

func (r *durableRoomRepository) AddMember(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.readAll(ctx)
	for _, room := range rooms {
		if room.ID == roomID {
			if room.AddMember(userID) {
				return r.writeAll(ctx, rooms)
			}
			return nil
		}
	}
	return ErrRoomNotFound
}

func (r *durableRoomRepository) RemoveMember(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.readAll(ctx)
	for _, room := range rooms {
		if room.ID == roomID {
			if room.RemoveMember(userID) {
				return r.writeAll(ctx, rooms)
			}
			return nil
		}
	}
	return ErrRoomNotFound
}

// ephemeralRoomRepository holds rooms in process memory only. Contents are
// lost on restart by design.
type ephemeralRoomRepository struct {
	rooms map[string]*model.Room
	mu    sync.RWMutex
}

func NewEphemeralRoomRepository() RoomRepository {
	return &ephemeralRoomRepository{rooms: make(map[string]*model.Room)}
}

func (r *ephemeralRoomRepository) Create(ctx context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; ok {
		return ErrRoomExists
	}
	r.rooms[room.ID] = room
	return nil
}

func (r *ephemeralRoomRepository) Get(ctx context.Context, id string) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.IsExpired(time.Now()) {
		delete(r.rooms, id)
		return nil, ErrRoomExpired
	}
	return room, nil
}

func (r *ephemeralRoomRepository) List(ctx context.Context) ([]*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	live := make([]*model.Room, 0, len(r.rooms))
	for id, room := range r.rooms {
		if room.IsExpired(now) {
			delete(r.rooms, id)
			continue
		}
		live = append(live, room)
	}
	return live, nil
}

func (r *ephemeralRoomRepository) ListWithExpired(ctx context.Context) ([]*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		all = append(all, room)
	}
	return all, nil
}

func (r *ephemeralRoomRepository) Save(ctx context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; !ok {
		return ErrRoomNotFound
	}
	r.rooms[room.ID] = room
	return nil
}

func (r *ephemeralRoomRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
	return nil
}

func (r *ephemeralRoomRepository) AddMember(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.AddMember(userID)
	return nil
}

func (r *ephemeralRoomRepository) RemoveMember(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.RemoveMember(userID)
	return nil
}
