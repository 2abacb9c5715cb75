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

const messagesCollection = "messages"

// MessageRepository is CRUD over one partition of messages. Expired
// messages are excluded from every read and physically removed when seen.
type MessageRepository interface {
	// Add stores a new message.
	Add(ctx context.Context, msg *model.Message) error

	// Get returns a live message. Returns ErrMessageNotFound when absent
	// or already expired.
	Get(ctx context.Context, roomID, messageID string) (*model.Message, error)

	// ListByRoom returns the room's live messages in insertion order,
	// persisting the filtered set when any had expired.
	ListByRoom(ctx context.Context, roomID string) ([]*model.Message, error)

	// Save persists a mutated message.
	Save(ctx context.Context, msg *model.Message) error

	// Delete removes one message, returning it for external-resource
	// cleanup. An absent target yields (nil, nil), not an error.
	Delete(ctx context.Context, roomID, messageID string) (*model.Message, error)

	// DeleteByRoom removes all of a room's messages, returning them.
	DeleteByRoom(ctx context.Context, roomID string) ([]*model.Message, error)

	// PruneExpired removes the room's individually expired messages and
	// returns them.
	PruneExpired(ctx context.Context, roomID string) ([]*model.Message, error)
}

// durableMessageRepository keeps all messages in one JSON document, the
// same full read-modify-write discipline as the durable room partition.
type durableMessageRepository struct {
	store  store.Collection
	logger *zap.Logger
	mu     sync.Mutex
}

func NewDurableMessageRepository(s store.Collection, logger *zap.Logger) MessageRepository {
	return &durableMessageRepository{store: s, logger: logger}
}

func (r *durableMessageRepository) readAll(ctx context.Context) []*model.Message {
	data, err := r.store.Read(ctx, messagesCollection)
	if err != nil {
		r.logger.Error("Failed to read messages collection", zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var msgs []*model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		r.logger.Error("Messages collection is corrupt, treating as empty", zap.Error(err))
		return nil
	}
	return msgs
}

func (r *durableMessageRepository) writeAll(ctx context.Context, msgs []*model.Message) error {
	if msgs == nil {
		msgs = []*model.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	if err := r.store.Write(ctx, messagesCollection, data); err != nil {
		r.logger.Error("Failed to write messages collection", zap.Error(err))
		return err
	}
	return nil
}

func (r *durableMessageRepository) Add(ctx context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeAll(ctx, append(r.readAll(ctx), msg))
}

func (r *durableMessageRepository) Get(ctx context.Context, roomID, messageID string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, msg := range r.readAll(ctx) {
		if msg.RoomID == roomID && msg.ID == messageID {
			if msg.IsExpired(now) {
				return nil, ErrMessageNotFound
			}
			return msg, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (r *durableMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.readAll(ctx)
	now := time.Now()

	kept := make([]*model.Message, 0, len(msgs))
	var roomMsgs []*model.Message
	pruned := false
	for _, msg := range msgs {
		if msg.IsExpired(now) {
			pruned = true
			continue
		}
		kept = append(kept, msg)
		if msg.RoomID == roomID {
			roomMsgs = append(roomMsgs, msg)
		}
	}

	if pruned {
		if err := r.writeAll(ctx, kept); err != nil {
			r.logger.Warn("Failed to persist filtered messages", zap.Error(err))
		}
	}
	return roomMsgs, nil
}

func (r *durableMessageRepository) Save(ctx context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.readAll(ctx)
	for i, existing := range msgs {
		if existing.ID == msg.ID && existing.RoomID == msg.RoomID {
			msgs[i] = msg
			return r.writeAll(ctx, msgs)
		}
	}
	return ErrMessageNotFound
}

func (r *durableMessageRepository) Delete(ctx context.Context, roomID, messageID string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.readAll(ctx)
	for i, msg := range msgs {
		if msg.RoomID == roomID && msg.ID == messageID {
			removed := msg
			if err := r.writeAll(ctx, append(msgs[:i], msgs[i+1:]...)); err != nil {
				return nil, err
			}
			return removed, nil
		}
	}
	return nil, nil
}

func (r *durableMessageRepository) DeleteByRoom(ctx context.Context, roomID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.readAll(ctx)
	kept := make([]*model.Message, 0, len(msgs))
	var removed []*model.Message
	for _, msg := range msgs {
		if msg.RoomID == roomID {
			removed = append(removed, msg)
			continue
		}
		kept = append(kept, msg)
	}

	if len(removed) == 0 {
		return nil, nil
	}
	if err := r.writeAll(ctx, kept); err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *durableMessageRepository) PruneExpired(ctx context.Context, roomID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.readAll(ctx)
	now := time.Now()

	kept := make([]*model.Message, 0, len(msgs))
	var removed []*model.Message
	for _, msg := range msgs {
		if msg.RoomID == roomID && msg.IsExpired(now) {
			removed = append(removed, msg)
			continue
		}
		kept = append(kept, msg)
	}

	if len(removed) == 0 {
		return nil, nil
	}
	if err := r.writeAll(ctx, kept); err != nil {
		return nil, err
	}
	return removed, nil
}

// ephemeralMessageRepository keeps messages in memory, bucketed by room.
type ephemeralMessageRepository struct {
	byRoom map[string][]*model.Message
	mu     sync.Mutex
}

func NewEphemeralMessageRepository() MessageRepository {
	return &ephemeralMessageRepository{byRoom: make(map[string][]*model.Message)}
}

func (r *ephemeralMessageRepository) Add(ctx context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRoom[msg.RoomID] = append(r.byRoom[msg.RoomID], msg)
	return nil
}

func (r *ephemeralMessageRepository) Get(ctx context.Context, roomID, messageID string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, msg := range r.byRoom[roomID] {
		if msg.ID == messageID {
			if msg.IsExpired(now) {
				return nil, ErrMessageNotFound
			}
			return msg, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (r *ephemeralMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	msgs := r.byRoom[roomID]
	live := make([]*model.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.IsExpired(now) {
			continue
		}
		live = append(live, msg)
	}
	r.byRoom[roomID] = live
	return live, nil
}

func (r *ephemeralMessageRepository) Save(ctx context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.byRoom[msg.RoomID] {
		if existing.ID == msg.ID {
			r.byRoom[msg.RoomID][i] = msg
			return nil
		}
	}
	return ErrMessageNotFound
}

func (r *ephemeralMessageRepository) Delete(ctx context.Context, roomID, messageID string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.byRoom[roomID]
	for i, msg := range msgs {
		if msg.ID == messageID {
			r.byRoom[roomID] = append(msgs[:i], msgs[i+1:]...)
			return msg, nil
		}
	}
	return nil, nil
}

func (r *ephemeralMessageRepository) DeleteByRoom(ctx context.Context, roomID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.byRoom[roomID]
	delete(r.byRoom, roomID)
	return removed, nil
}

func (r *ephemeralMessageRepository) PruneExpired(ctx context.Context, roomID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	msgs := r.byRoom[roomID]
	kept := make([]*model.Message, 0, len(msgs))
	var removed []*model.Message
	for _, msg := range msgs {
		if msg.IsExpired(now) {
			removed = append(removed, msg)
			continue
		}
		kept = append(kept, msg)
	}
	r.byRoom[roomID] = kept
	return removed, nil
}
