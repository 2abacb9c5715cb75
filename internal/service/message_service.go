package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-demo/lanchat/internal/blob"
	"github.com/go-demo/lanchat/internal/model"
	apperrors "github.com/go-demo/lanchat/internal/pkg/errors"
	"github.com/go-demo/lanchat/internal/repository"
	"github.com/go-demo/lanchat/internal/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LifecycleConfig holds the expiry windows the engine works with. They are
// injected so tests can shrink them to milliseconds.
type LifecycleConfig struct {
	// EmptyRoomWindow is how long an ephemeral room survives with zero
	// connected occupants before self-destructing.
	EmptyRoomWindow time.Duration

	// BurnWindow is the send-time expiry for messages in ephemeral
	// burn-after-reading rooms.
	BurnWindow time.Duration

	// BurnReadWindow is the countdown started when a burn-after-reading
	// message is acknowledged as read.
	BurnReadWindow time.Duration
}

// DefaultLifecycleConfig mirrors the production defaults.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		EmptyRoomWindow: 10 * time.Minute,
		BurnWindow:      30 * time.Second,
		BurnReadWindow:  10 * time.Second,
	}
}

type MessageService struct {
	rooms       *repository.Rooms
	messages    *repository.Messages
	sched       *scheduler.Scheduler
	blobs       blob.Store
	broadcaster Broadcaster
	cfg         LifecycleConfig
	logger      *zap.Logger
}

func NewMessageService(
	rooms *repository.Rooms,
	messages *repository.Messages,
	sched *scheduler.Scheduler,
	blobs blob.Store,
	cfg LifecycleConfig,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		rooms:       rooms,
		messages:    messages,
		sched:       sched,
		blobs:       blobs,
		broadcaster: nopBroadcaster{},
		cfg:         cfg,
		logger:      logger,
	}
}

// SetBroadcaster attaches the transport hub. Called once at wiring time.
func (s *MessageService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func messageKey(mode model.Mode, roomID, messageID string) string {
	return fmt.Sprintf("msg:%s:%s:%s", mode, roomID, messageID)
}

func mapRoomErr(err error) error {
	switch err {
	case repository.ErrRoomNotFound:
		return apperrors.ErrRoomNotFound
	case repository.ErrRoomExpired:
		return apperrors.ErrRoomExpired
	case nil:
		return nil
	default:
		return apperrors.ErrInternal
	}
}

// SendMessageInput represents message send input
type SendMessageInput struct {
	RoomID   string
	Mode     model.Mode
	UserID   string
	Username string
	Content  string
	Type     model.MessageType
	FileURL  string
	FileName string
}

// Send stores a message, deriving its expiry from the owning room's policy
// at send time. The deadline is frozen here: later extensions of the
// room's time limit do not move already-scheduled deletions.
func (s *MessageService) Send(ctx context.Context, input *SendMessageInput) (*model.Message, error) {
	room, err := s.rooms.Partition(input.Mode).Get(ctx, input.RoomID)
	if err != nil {
		return nil, mapRoomErr(err)
	}

	if input.Type == "" {
		input.Type = model.MessageTypeText
	}

	now := time.Now()
	msg := &model.Message{
		ID:        uuid.New().String(),
		RoomID:    input.RoomID,
		UserID:    input.UserID,
		Username:  input.Username,
		Content:   input.Content,
		Type:      input.Type,
		FileURL:   input.FileURL,
		FileName:  input.FileName,
		Timestamp: now,
		ExpiresAt: s.deriveExpiry(room, now),
	}

	if err := s.messages.Partition(input.Mode).Add(ctx, msg); err != nil {
		s.logger.Error("Failed to store message",
			zap.String("room_id", input.RoomID),
			zap.Error(err),
		)
		return nil, apperrors.ErrInternal
	}

	if msg.ExpiresAt != nil {
		s.scheduleExpiry(msg, input.Mode)
	}

	s.broadcaster.BroadcastRoom(input.RoomID, Event{Type: EventMessageNew, Payload: msg})
	return msg, nil
}

// SendSystem appends a system announcement to a room.
func (s *MessageService) SendSystem(ctx context.Context, room *model.Room, content string) {
	_, err := s.Send(ctx, &SendMessageInput{
		RoomID:   room.ID,
		Mode:     room.Mode,
		UserID:   "system",
		Username: "System",
		Content:  content,
		Type:     model.MessageTypeSystem,
	})
	if err != nil {
		s.logger.Warn("Failed to append system message",
			zap.String("room_id", room.ID),
			zap.Error(err),
		)
	}
}

// deriveExpiry implements the send-time expiry policy:
// burn-after-reading in the ephemeral partition wins with a short fixed
// window; otherwise a room time limit pins messages to the room's own
// deadline; otherwise a durable room's messageExpiry hours apply.
func (s *MessageService) deriveExpiry(room *model.Room, now time.Time) *time.Time {
	if room.BurnAfterReading && room.Mode == model.ModeEphemeral {
		t := now.Add(s.cfg.BurnWindow)
		return &t
	}
	if room.TimeLimit > 0 && room.ExpiresAt != nil {
		t := *room.ExpiresAt
		return &t
	}
	if room.Mode == model.ModeDurable && room.MessageExpiry > 0 {
		t := now.Add(time.Duration(room.MessageExpiry) * time.Hour)
		return &t
	}
	return nil
}

func (s *MessageService) scheduleExpiry(msg *model.Message, mode model.Mode) {
	roomID, messageID := msg.RoomID, msg.ID
	s.sched.Schedule(messageKey(mode, roomID, messageID), time.Until(*msg.ExpiresAt), func() {
		s.expireMessage(roomID, mode, messageID)
	})
}

// expireMessage is the deferred-deletion callback. A target already removed
// through another path is a silent no-op.
func (s *MessageService) expireMessage(roomID string, mode model.Mode, messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	removed, err := s.messages.Partition(mode).Delete(ctx, roomID, messageID)
	if err != nil || removed == nil {
		return
	}

	if removed.HasFile() {
		_ = s.blobs.Remove(ctx, removed.FileURL)
	}

	s.broadcaster.BroadcastRoom(roomID, Event{
		Type:    EventMessageDeleted,
		Payload: map[string]string{"room_id": roomID, "message_id": messageID},
	})
}

// List returns a room's live messages.
func (s *MessageService) List(ctx context.Context, roomID string, mode model.Mode) ([]*model.Message, error) {
	if _, err := s.rooms.Partition(mode).Get(ctx, roomID); err != nil {
		return nil, mapRoomErr(err)
	}
	msgs, err := s.messages.Partition(mode).ListByRoom(ctx, roomID)
	if err != nil {
		s.logger.Error("Failed to list messages", zap.String("room_id", roomID), zap.Error(err))
		return nil, apperrors.ErrInternal
	}
	return msgs, nil
}

// Delete removes a message. Only the sender or the room host may delete.
func (s *MessageService) Delete(ctx context.Context, roomID string, mode model.Mode, messageID, requesterID string) error {
	room, err := s.rooms.Partition(mode).Get(ctx, roomID)
	if err != nil {
		return mapRoomErr(err)
	}

	msg, err := s.messages.Partition(mode).Get(ctx, roomID, messageID)
	if err != nil {
		return apperrors.ErrMessageNotFound
	}
	if msg.UserID != requesterID && !room.IsHost(requesterID) {
		return apperrors.ErrForbidden
	}

	removed, err := s.messages.Partition(mode).Delete(ctx, roomID, messageID)
	if err != nil {
		return apperrors.ErrInternal
	}
	s.sched.Cancel(messageKey(mode, roomID, messageID))

	if removed != nil && removed.HasFile() {
		_ = s.blobs.Remove(ctx, removed.FileURL)
	}

	s.broadcaster.BroadcastRoom(roomID, Event{
		Type:    EventMessageDeleted,
		Payload: map[string]string{"room_id": roomID, "message_id": messageID},
	})
	return nil
}

// React toggles the requester's reaction under an emoji.
func (s *MessageService) React(ctx context.Context, roomID string, mode model.Mode, messageID, userID, emoji string) (*model.Message, error) {
	if emoji == "" {
		return nil, apperrors.ErrValidation.WithDetails("emoji is required")
	}

	repo := s.messages.Partition(mode)
	msg, err := repo.Get(ctx, roomID, messageID)
	if err != nil {
		return nil, apperrors.ErrMessageNotFound
	}

	msg.ToggleReaction(emoji, userID)
	if err := repo.Save(ctx, msg); err != nil {
		s.logger.Error("Failed to save reaction", zap.String("message_id", messageID), zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	s.broadcaster.BroadcastRoom(roomID, Event{
		Type: EventMessageReaction,
		Payload: map[string]interface{}{
			"room_id":    roomID,
			"message_id": messageID,
			"reactions":  msg.Reactions,
		},
	})
	return msg, nil
}

// TogglePin flips a message's pinned flag. Pinning exists only in the
// durable partition.
func (s *MessageService) TogglePin(ctx context.Context, roomID string, mode model.Mode, messageID string) (*model.Message, error) {
	if mode != model.ModeDurable {
		return nil, apperrors.ErrValidation.WithDetails("pinning is only available in durable rooms")
	}

	repo := s.messages.Partition(mode)
	msg, err := repo.Get(ctx, roomID, messageID)
	if err != nil {
		return nil, apperrors.ErrMessageNotFound
	}

	msg.Pinned = !msg.Pinned
	if err := repo.Save(ctx, msg); err != nil {
		s.logger.Error("Failed to save pin", zap.String("message_id", messageID), zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	s.broadcaster.BroadcastRoom(roomID, Event{
		Type: EventMessagePinned,
		Payload: map[string]interface{}{
			"room_id":    roomID,
			"message_id": messageID,
			"pinned":     msg.Pinned,
		},
	})
	return msg, nil
}

// MarkRead records a read acknowledgement. In an ephemeral
// burn-after-reading room the first acknowledgement starts the burn
// countdown, pulling the message's deletion forward if that is sooner than
// its send-time deadline.
func (s *MessageService) MarkRead(ctx context.Context, roomID string, mode model.Mode, messageID, userID string) error {
	room, err := s.rooms.Partition(mode).Get(ctx, roomID)
	if err != nil {
		return mapRoomErr(err)
	}

	repo := s.messages.Partition(mode)
	msg, err := repo.Get(ctx, roomID, messageID)
	if err != nil {
		return apperrors.ErrMessageNotFound
	}

	if !msg.MarkRead(userID) {
		return nil
	}

	if room.BurnAfterReading && room.Mode == model.ModeEphemeral {
		deadline := time.Now().Add(s.cfg.BurnReadWindow)
		if msg.ExpiresAt == nil || deadline.Before(*msg.ExpiresAt) {
			msg.ExpiresAt = &deadline
			s.scheduleExpiry(msg, mode)
		}
	}

	if err := repo.Save(ctx, msg); err != nil {
		s.logger.Error("Failed to save read state", zap.String("message_id", messageID), zap.Error(err))
		return apperrors.ErrInternal
	}
	return nil
}

// PurgeRoom deletes all of a room's messages, cancels their timers and
// releases any file references. Called on room deletion and expiry.
func (s *MessageService) PurgeRoom(ctx context.Context, roomID string, mode model.Mode) {
	removed, err := s.messages.Partition(mode).DeleteByRoom(ctx, roomID)
	if err != nil {
		s.logger.Error("Failed to purge room messages", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	for _, msg := range removed {
		s.sched.Cancel(messageKey(mode, roomID, msg.ID))
		if msg.HasFile() {
			_ = s.blobs.Remove(ctx, msg.FileURL)
		}
	}
}

// PruneRoom removes a room's individually expired messages, releasing
// their timers and file references. Used by the periodic sweep.
func (s *MessageService) PruneRoom(ctx context.Context, roomID string, mode model.Mode) {
	removed, err := s.messages.Partition(mode).PruneExpired(ctx, roomID)
	if err != nil {
		s.logger.Error("Failed to prune room messages", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	for _, msg := range removed {
		s.sched.Cancel(messageKey(mode, roomID, msg.ID))
		if msg.HasFile() {
			_ = s.blobs.Remove(ctx, msg.FileURL)
		}
	}
}
