package repository

import (
	"errors"

	"github.com/go-demo/lanchat/internal/model"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room id already in use")
	ErrRoomExpired     = errors.New("room has expired")
	ErrMessageNotFound = errors.New("message not found")
)

// Rooms bundles the two room partitions. A room's partition is chosen once
// at creation and carried on the room itself; callers pick the repository
// by that mode.
type Rooms struct {
	durable   RoomRepository
	ephemeral RoomRepository
}

func NewRooms(durable, ephemeral RoomRepository) *Rooms {
	return &Rooms{durable: durable, ephemeral: ephemeral}
}

// Partition returns the repository backing the given mode.
func (r *Rooms) Partition(mode model.Mode) RoomRepository {
	if mode == model.ModeEphemeral {
		return r.ephemeral
	}
	return r.durable
}

// Messages bundles the two message partitions.
type Messages struct {
	durable   MessageRepository
	ephemeral MessageRepository
}

func NewMessages(durable, ephemeral MessageRepository) *Messages {
	return &Messages{durable: durable, ephemeral: ephemeral}
}

func (m *Messages) Partition(mode model.Mode) MessageRepository {
	if mode == model.ModeEphemeral {
		return m.ephemeral
	}
	return m.durable
}
