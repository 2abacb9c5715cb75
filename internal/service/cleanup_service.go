package service

import (
	"context"
	"time"

	"github.com/go-demo/lanchat/internal/model"
	"github.com/go-demo/lanchat/internal/repository"
	"go.uber.org/zap"
)

// CleanupService is the safety net under the deferred-deletion timers: a
// periodic sweep that catches deadlines whose callbacks were lost, for
// example across a restart of the durable partition.
type CleanupService struct {
	rooms    *repository.Rooms
	roomSvc  *RoomService
	messages *MessageService
	interval time.Duration
	logger   *zap.Logger
}

func NewCleanupService(
	rooms *repository.Rooms,
	roomSvc *RoomService,
	messages *MessageService,
	interval time.Duration,
	logger *zap.Logger,
) *CleanupService {
	return &CleanupService{
		rooms:    rooms,
		roomSvc:  roomSvc,
		messages: messages,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Cleanup sweep started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Cleanup sweep stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep walks the durable partition once. Expired rooms go through the
// full deletion path so members are notified; live rooms only shed their
// individually expired messages. The ephemeral partition is covered by
// its in-process timers and lazy expiry on read, which a restart resets
// along with the data.
func (s *CleanupService) Sweep(ctx context.Context) {
	rooms, err := s.rooms.Partition(model.ModeDurable).ListWithExpired(ctx)
	if err != nil {
		s.logger.Error("Sweep failed to list rooms", zap.Error(err))
		return
	}

	now := time.Now()
	for _, room := range rooms {
		if room.IsExpired(now) {
			s.roomSvc.ExpireRoom(room.ID, model.ModeDurable)
			continue
		}
		s.messages.PruneRoom(ctx, room.ID, model.ModeDurable)
	}
}
