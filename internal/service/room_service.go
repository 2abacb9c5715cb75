package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-demo/lanchat/internal/model"
	apperrors "github.com/go-demo/lanchat/internal/pkg/errors"
	"github.com/go-demo/lanchat/internal/pkg/utils"
	"github.com/go-demo/lanchat/internal/repository"
	"github.com/go-demo/lanchat/internal/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minRoomNameLength = 3
	maxRoomNameLength = 50

	minExtendMinutes = 1
	maxExtendMinutes = 60
)

// RoomService is the room lifecycle engine. All state-changing commands
// are serialized by its mutex, so no two join/leave/kick handlers for the
// same room ever interleave; the process is the only writer.
type RoomService struct {
	rooms       *repository.Rooms
	messages    *MessageService
	sched       *scheduler.Scheduler
	broadcaster Broadcaster
	cfg         LifecycleConfig
	logger      *zap.Logger

	mu sync.Mutex

	// leftUsers and the per-room failure lists exist only while their
	// room does; deleteRoomLocked clears them.
	leftUsers map[string][]model.LeftUser
}

func NewRoomService(
	rooms *repository.Rooms,
	messages *MessageService,
	sched *scheduler.Scheduler,
	cfg LifecycleConfig,
	logger *zap.Logger,
) *RoomService {
	return &RoomService{
		rooms:       rooms,
		messages:    messages,
		sched:       sched,
		broadcaster: nopBroadcaster{},
		cfg:         cfg,
		logger:      logger,
		leftUsers:   make(map[string][]model.LeftUser),
	}
}

// SetBroadcaster attaches the transport hub. Called once at wiring time.
func (s *RoomService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func roomKey(mode model.Mode, roomID string) string {
	return fmt.Sprintf("room:%s:%s", mode, roomID)
}

func emptyKey(mode model.Mode, roomID string) string {
	return fmt.Sprintf("empty:%s:%s", mode, roomID)
}

func (s *RoomService) stateKey(mode model.Mode, roomID string) string {
	return string(mode) + ":" + roomID
}

// CreateRoomInput represents room creation input
type CreateRoomInput struct {
	// ID is the caller-chosen room code, ephemeral partition only.
	ID               string
	Name             string
	Description      string
	Password         string
	BurnAfterReading bool
	TimeLimit        int // minutes, 0 = none
	MessageExpiry    int // hours, durable only, 0 = never
	Mode             model.Mode
	CreatorID        string
	CreatorName      string
}

// Create validates and stores a new room, auto-joining the creator.
func (s *RoomService) Create(ctx context.Context, input *CreateRoomInput) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !input.Mode.IsValid() {
		return nil, apperrors.ErrInvalidMode
	}
	if l := len(input.Name); l < minRoomNameLength || l > maxRoomNameLength {
		return nil, apperrors.ErrValidation.WithDetails(
			fmt.Sprintf("room name must be %d-%d characters", minRoomNameLength, maxRoomNameLength))
	}
	if input.TimeLimit < 0 {
		return nil, apperrors.ErrValidation.WithDetails("time limit must be a positive number of minutes")
	}
	if input.MessageExpiry < 0 {
		return nil, apperrors.ErrValidation.WithDetails("message expiry must be a positive number of hours")
	}

	var passwordHash string
	if input.Password != "" {
		hash, err := utils.HashPassword(input.Password)
		if err != nil {
			return nil, apperrors.ErrValidation.WithDetails(err.Error())
		}
		passwordHash = hash
	}

	id := input.ID
	if input.Mode == model.ModeEphemeral {
		if id == "" {
			return nil, apperrors.ErrValidation.WithDetails("ephemeral rooms need a caller-chosen room code")
		}
	} else {
		id = uuid.New().String()
	}

	now := time.Now()
	room := &model.Room{
		ID:               id,
		Name:             input.Name,
		Description:      input.Description,
		CreatedBy:        input.CreatorID,
		PasswordHash:     passwordHash,
		BurnAfterReading: input.BurnAfterReading,
		TimeLimit:        input.TimeLimit,
		Mode:             input.Mode,
		Members:          []string{input.CreatorID},
		CreatedAt:        now,
	}
	if input.Mode == model.ModeDurable {
		room.MessageExpiry = input.MessageExpiry
	}
	if input.TimeLimit > 0 {
		expiresAt := now.Add(time.Duration(input.TimeLimit) * time.Minute)
		room.ExpiresAt = &expiresAt
	}
	room.RecordAttendance(input.CreatorName, model.AttendanceJoined, "", now)

	if err := s.rooms.Partition(input.Mode).Create(ctx, room); err != nil {
		if err == repository.ErrRoomExists {
			return nil, apperrors.ErrRoomExists
		}
		s.logger.Error("Failed to create room", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	if room.ExpiresAt != nil {
		s.scheduleRoomExpiry(room)
	}

	s.messages.SendSystem(ctx, room, fmt.Sprintf("%s created the room", input.CreatorName))

	s.logger.Info("Room created",
		zap.String("room_id", room.ID),
		zap.String("mode", string(room.Mode)),
		zap.String("created_by", input.CreatorID),
	)

	s.broadcaster.BroadcastAll(Event{Type: EventRoomCreated, Payload: room.Summary()})
	return room, nil
}

func (s *RoomService) scheduleRoomExpiry(room *model.Room) {
	id, mode := room.ID, room.Mode
	s.sched.Schedule(roomKey(mode, id), time.Until(*room.ExpiresAt), func() {
		s.ExpireRoom(id, mode)
	})
}

// Get returns a live room from the given partition.
func (s *RoomService) Get(ctx context.Context, roomID string, mode model.Mode) (*model.Room, error) {
	room, err := s.rooms.Partition(mode).Get(ctx, roomID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	return room, nil
}

// List returns the live rooms of one partition.
func (s *RoomService) List(ctx context.Context, mode model.Mode) ([]*model.RoomSummary, error) {
	if !mode.IsValid() {
		return nil, apperrors.ErrInvalidMode
	}
	rooms, err := s.rooms.Partition(mode).List(ctx)
	if err != nil {
		s.logger.Error("Failed to list rooms", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	summaries := make([]*model.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	return summaries, nil
}

// Join adds a principal to a room after the password check. A mismatch
// leaves membership untouched and bumps the caller's failure counter.
func (s *RoomService) Join(ctx context.Context, roomID string, mode model.Mode, userID, username, password string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.rooms.Partition(mode)
	room, err := repo.Get(ctx, roomID)
	if err != nil {
		if err == repository.ErrRoomNotFound {
			// Report a cross-partition hit distinctly so the client can
			// suggest switching modes.
			other := model.ModeDurable
			if mode == model.ModeDurable {
				other = model.ModeEphemeral
			}
			if _, otherErr := s.rooms.Partition(other).Get(ctx, roomID); otherErr == nil {
				return nil, apperrors.ErrRoomOtherMode
			}
		}
		return nil, mapRoomErr(err)
	}

	if room.HasPassword() && !utils.CheckPassword(password, room.PasswordHash) {
		now := time.Now()
		room.RecordFailedAttempt(username, "Wrong password", now)
		if err := repo.Save(ctx, room); err != nil {
			s.logger.Warn("Failed to persist failed attempt", zap.String("room_id", roomID), zap.Error(err))
		}

		s.logger.Warn("Join rejected: wrong password",
			zap.String("room_id", roomID),
			zap.String("username", username),
		)
		s.broadcaster.BroadcastRoom(roomID, Event{
			Type: EventDashboardUpdate,
			Payload: map[string]interface{}{
				"room_id":         roomID,
				"failed_attempts": room.FailedAttempts,
			},
		})
		return nil, apperrors.ErrWrongPassword
	}

	// A pending emptiness deletion dies the moment anyone joins.
	s.sched.Cancel(emptyKey(mode, roomID))

	now := time.Now()
	room.AddMember(userID)
	room.RecordAttendance(username, model.AttendanceJoined, "", now)
	if err := repo.Save(ctx, room); err != nil {
		s.logger.Warn("Failed to persist join", zap.String("room_id", roomID), zap.Error(err))
	}

	s.messages.SendSystem(ctx, room, fmt.Sprintf("%s joined the room", username))

	s.broadcaster.BroadcastRoom(roomID, Event{
		Type: EventUserJoined,
		Payload: map[string]string{
			"room_id":  roomID,
			"user_id":  userID,
			"username": username,
		},
	})
	return room, nil
}

// Leave removes a principal from a room. The host leaving is final: the
// room is deleted immediately, never handed to the emptiness timer.
func (s *RoomService) Leave(ctx context.Context, roomID string, mode model.Mode, userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.rooms.Partition(mode)
	room, err := repo.Get(ctx, roomID)
	if err != nil {
		return mapRoomErr(err)
	}

	if room.IsHost(userID) {
		s.logger.Info("Host left, deleting room",
			zap.String("room_id", roomID),
			zap.String("host", username),
		)
		s.deleteRoomLocked(ctx, room, EventRoomDeletedByHost)
		return nil
	}

	now := time.Now()
	room.RemoveMember(userID)
	room.RecordAttendance(username, model.AttendanceLeft, "", now)
	if err := repo.Save(ctx, room); err != nil {
		s.logger.Warn("Failed to persist leave", zap.String("room_id", roomID), zap.Error(err))
	}

	key := s.stateKey(mode, roomID)
	s.leftUsers[key] = append(s.leftUsers[key], model.LeftUser{
		Username: username,
		Reason:   "Left",
		LeftAt:   now,
	})

	s.messages.SendSystem(ctx, room, fmt.Sprintf("%s left the room", username))

	s.broadcaster.BroadcastRoom(roomID, Event{
		Type: EventUserLeft,
		Payload: map[string]string{
			"room_id":  roomID,
			"user_id":  userID,
			"username": username,
		},
	})
	return nil
}

// HandleRoomEmpty is called by the presence tracker when an ephemeral
// room's transport channel drops to zero occupants. The room gets a grace
// window to be rejoined before it self-destructs.
func (s *RoomService) HandleRoomEmpty(roomID string, mode model.Mode) {
	if mode != model.ModeEphemeral {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.rooms.Partition(mode).Get(ctx, roomID); err != nil {
		return
	}

	s.logger.Debug("Room is empty, scheduling deletion",
		zap.String("room_id", roomID),
		zap.Duration("window", s.cfg.EmptyRoomWindow),
	)
	s.sched.Schedule(emptyKey(mode, roomID), s.cfg.EmptyRoomWindow, func() {
		s.deleteEmptyRoom(roomID, mode)
	})
}

func (s *RoomService) deleteEmptyRoom(roomID string, mode model.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := s.rooms.Partition(mode).Get(ctx, roomID)
	if err != nil {
		// Already gone; cleanup is idempotent.
		return
	}

	s.logger.Info("Deleting ephemeral room after emptiness window", zap.String("room_id", roomID))
	s.deleteRoomLocked(ctx, room, EventRoomRemoved)
}

// Kick forcibly removes a connected member. Host only.
func (s *RoomService) Kick(ctx context.Context, roomID string, mode model.Mode, kickerID, kickerName, targetUsername string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.rooms.Partition(mode)
	room, err := repo.Get(ctx, roomID)
	if err != nil {
		return mapRoomErr(err)
	}
	if !room.IsHost(kickerID) {
		return apperrors.ErrHostOnly
	}

	var target *model.OnlineUser
	for _, online := range s.broadcaster.OnlineUsers(roomID) {
		if online.Username == targetUsername {
			u := online
			target = &u
			break
		}
	}
	if target == nil {
		return apperrors.ErrNotFound.WithDetails("user is not connected to this room")
	}
	if target.UserID == room.CreatedBy {
		return apperrors.ErrForbidden.WithDetails("the host cannot be kicked")
	}

	now := time.Now()
	room.RemoveMember(target.UserID)
	room.RecordAttendance(targetUsername, model.AttendanceKicked, kickerName, now)
	if err := repo.Save(ctx, room); err != nil {
		s.logger.Warn("Failed to persist kick", zap.String("room_id", roomID), zap.Error(err))
	}

	key := s.stateKey(mode, roomID)
	s.leftUsers[key] = append(s.leftUsers[key], model.LeftUser{
		Username: targetUsername,
		Reason:   "Kicked by host",
		LeftAt:   now,
	})

	// The target learns it was a kick, not a leave, before losing the
	// transport channel.
	kickedPayload := map[string]string{
		"room_id":   roomID,
		"username":  targetUsername,
		"kicked_by": kickerName,
	}
	s.broadcaster.SendUser(target.UserID, Event{Type: EventUserKicked, Payload: kickedPayload})
	s.broadcaster.RemoveFromRoom(roomID, target.UserID)
	s.broadcaster.BroadcastRoom(roomID, Event{Type: EventUserKicked, Payload: kickedPayload})

	s.messages.SendSystem(ctx, room, fmt.Sprintf("%s was kicked by the host", targetUsername))

	s.logger.Info("User kicked",
		zap.String("room_id", roomID),
		zap.String("target", targetUsername),
		zap.String("kicked_by", kickerID),
	)
	return nil
}

// Rename changes a room's display name. Host only.
func (s *RoomService) Rename(ctx context.Context, roomID string, mode model.Mode, userID, newName string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l := len(newName); l < minRoomNameLength || l > maxRoomNameLength {
		return nil, apperrors.ErrValidation.WithDetails(
			fmt.Sprintf("room name must be %d-%d characters", minRoomNameLength, maxRoomNameLength))
	}

	repo := s.rooms.Partition(mode)
	room, err := repo.Get(ctx, roomID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	if !room.IsHost(userID) {
		return nil, apperrors.ErrHostOnly
	}

	oldName := room.Name
	room.Name = newName
	if err := repo.Save(ctx, room); err != nil {
		s.logger.Error("Failed to persist rename", zap.String("room_id", roomID), zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	s.messages.SendSystem(ctx, room, fmt.Sprintf("Room renamed from %q to %q", oldName, newName))
	return room, nil
}

// ExtendTime pushes a room's deadline out by 1-60 minutes. Host only.
// Already-scheduled message deletions keep their send-time deadlines.
func (s *RoomService) ExtendTime(ctx context.Context, roomID string, mode model.Mode, userID string, minutes int) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if minutes < minExtendMinutes || minutes > maxExtendMinutes {
		return nil, apperrors.ErrValidation.WithDetails(
			fmt.Sprintf("extension must be %d-%d minutes", minExtendMinutes, maxExtendMinutes))
	}

	repo := s.rooms.Partition(mode)
	room, err := repo.Get(ctx, roomID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	if !room.IsHost(userID) {
		return nil, apperrors.ErrHostOnly
	}
	if room.ExpiresAt == nil {
		return nil, apperrors.ErrValidation.WithDetails("room has no time limit")
	}

	extended := room.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	room.ExpiresAt = &extended
	room.TimeLimit += minutes
	if err := repo.Save(ctx, room); err != nil {
		s.logger.Error("Failed to persist extension", zap.String("room_id", roomID), zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	s.scheduleRoomExpiry(room)

	s.broadcaster.BroadcastRoom(roomID, Event{
		Type: EventRoomTimeExtended,
		Payload: map[string]interface{}{
			"room_id":    roomID,
			"expires_at": extended,
			"time_limit": room.TimeLimit,
		},
	})
	return room, nil
}

// Delete is the host's explicit room deletion, cascading to messages.
func (s *RoomService) Delete(ctx context.Context, roomID string, mode model.Mode, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.rooms.Partition(mode).Get(ctx, roomID)
	if err != nil {
		return mapRoomErr(err)
	}
	if !room.IsHost(userID) {
		return apperrors.ErrHostOnly
	}

	s.deleteRoomLocked(ctx, room, EventRoomRemoved)
	return nil
}

// ExpireRoom is the deadline callback and sweep entry point. A target
// already gone is a silent no-op.
func (s *RoomService) ExpireRoom(roomID string, mode model.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Get would prune the room before we can notify its members, so scan
	// the unpruned view.
	rooms, err := s.rooms.Partition(mode).ListWithExpired(ctx)
	if err != nil {
		return
	}
	for _, room := range rooms {
		if room.ID == roomID {
			s.logger.Info("Room expired", zap.String("room_id", roomID), zap.String("mode", string(mode)))
			s.deleteRoomLocked(ctx, room, EventRoomExpired)
			return
		}
	}
}

// deleteRoomLocked tears a room down: notify members, purge messages and
// their file references, drop timers and per-room state, remove the room.
// Callers hold s.mu.
func (s *RoomService) deleteRoomLocked(ctx context.Context, room *model.Room, roomEvent string) {
	payload := map[string]string{"room_id": room.ID, "name": room.Name}
	s.broadcaster.BroadcastRoom(room.ID, Event{Type: roomEvent, Payload: payload})

	s.messages.PurgeRoom(ctx, room.ID, room.Mode)

	s.sched.Cancel(roomKey(room.Mode, room.ID))
	s.sched.Cancel(emptyKey(room.Mode, room.ID))
	delete(s.leftUsers, s.stateKey(room.Mode, room.ID))

	if err := s.rooms.Partition(room.Mode).Delete(ctx, room.ID); err != nil {
		s.logger.Error("Failed to delete room", zap.String("room_id", room.ID), zap.Error(err))
	}

	// Room-list watchers hear about expiry as expiry, everything else as
	// a plain removal.
	allEvent := EventRoomRemoved
	if roomEvent == EventRoomExpired {
		allEvent = EventRoomExpired
	}
	s.broadcaster.BroadcastAll(Event{Type: allEvent, Payload: payload})
}

// Dashboard is the host's per-room security view: who is online, who left
// or was kicked, and who failed the password.
type Dashboard struct {
	RoomID         string                `json:"room_id"`
	OnlineUsers    []model.OnlineUser    `json:"online_users"`
	LeftUsers      []model.LeftUser      `json:"left_users"`
	FailedAttempts []model.FailedAttempt `json:"failed_attempts"`
}

// GetDashboard returns the security view. Host only.
func (s *RoomService) GetDashboard(ctx context.Context, roomID string, mode model.Mode, userID string) (*Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.rooms.Partition(mode).Get(ctx, roomID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	if !room.IsHost(userID) {
		return nil, apperrors.ErrForbidden
	}

	online := s.broadcaster.OnlineUsers(roomID)
	if online == nil {
		online = []model.OnlineUser{}
	}
	left := s.leftUsers[s.stateKey(mode, roomID)]
	if left == nil {
		left = []model.LeftUser{}
	}
	failed := room.FailedAttempts
	if failed == nil {
		failed = []model.FailedAttempt{}
	}

	return &Dashboard{
		RoomID:         roomID,
		OnlineUsers:    online,
		LeftUsers:      left,
		FailedAttempts: failed,
	}, nil
}
