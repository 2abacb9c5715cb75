package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-demo/lanchat/internal/model"
	apperrors "github.com/go-demo/lanchat/internal/pkg/errors"
)

func TestMessageService_SendPlainRoomNeverExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := mustCreateRoom(t, env, &CreateRoomInput{ID: "club", Name: "night club", Mode: model.ModeEphemeral, CreatorID: "u1", CreatorName: "alice"})

	msg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: room.ID, Mode: model.ModeEphemeral,
		UserID: "u1", Username: "alice", Content: "hello",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if msg.ExpiresAt != nil {
		t.Errorf("Expected no expiry, got %v", msg.ExpiresAt)
	}
	if msg.Type != model.MessageTypeText {
		t.Errorf("Expected default type text, got %q", msg.Type)
	}
	if len(env.bc.eventsOfType(EventMessageNew)) == 0 {
		t.Error("Expected message:new broadcast")
	}
}

func TestMessageService_SendMissingRoom(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.msgSvc.Send(context.Background(), &SendMessageInput{
		RoomID: "ghost", Mode: model.ModeEphemeral,
		UserID: "u1", Username: "alice", Content: "hello",
	})
	if err != apperrors.ErrRoomNotFound {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestMessageService_BurnRoomMessageSelfDestructs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := mustCreateRoom(t, env, &CreateRoomInput{ID: "burn", Name: "burn room", Mode: model.ModeEphemeral, BurnAfterReading: true, CreatorID: "u1", CreatorName: "alice"})

	msg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: room.ID, Mode: model.ModeEphemeral,
		UserID: "u1", Username: "alice", Content: "secret",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if msg.ExpiresAt == nil {
		t.Fatal("Expected a burn deadline")
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := env.messages.Partition(model.ModeEphemeral).Get(ctx, room.ID, msg.ID); err == nil {
		t.Error("Expected message to self-destruct")
	}
	if len(env.bc.eventsOfType(EventMessageDeleted)) == 0 {
		t.Error("Expected message:deleted broadcast")
	}
}

func TestMessageService_TimeLimitedRoomFreezesDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := mustCreateRoom(t, env, &CreateRoomInput{ID: "flash", Name: "flash room", Mode: model.ModeEphemeral, TimeLimit: 30, CreatorID: "host", CreatorName: "alice"})

	msg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: room.ID, Mode: model.ModeEphemeral,
		UserID: "host", Username: "alice", Content: "hello",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if msg.ExpiresAt == nil || !msg.ExpiresAt.Equal(*room.ExpiresAt) {
		t.Fatalf("Expected message pinned to room deadline %v, got %v", room.ExpiresAt, msg.ExpiresAt)
	}

	// Extending the room must not move already-sent messages.
	frozen := *msg.ExpiresAt
	if _, err := env.roomSvc.ExtendTime(ctx, room.ID, model.ModeEphemeral, "host", 10); err != nil {
		t.Fatalf("Failed to extend: %v", err)
	}
	got, err := env.messages.Partition(model.ModeEphemeral).Get(ctx, room.ID, msg.ID)
	if err != nil {
		t.Fatalf("Failed to get message: %v", err)
	}
	if !got.ExpiresAt.Equal(frozen) {
		t.Errorf("Expected frozen deadline %v, got %v", frozen, got.ExpiresAt)
	}
}

func TestMessageService_DurableMessageExpiryHours(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := mustCreateRoom(t, env, &CreateRoomInput{Name: "announcements", Mode: model.ModeDurable, MessageExpiry: 2, CreatorID: "u1", CreatorName: "alice"})

	msg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: room.ID, Mode: model.ModeDurable,
		UserID: "u1", Username: "alice", Content: "hello",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if msg.ExpiresAt == nil {
		t.Fatal("Expected an expiry")
	}
	want := msg.Timestamp.Add(2 * time.Hour)
	if !msg.ExpiresAt.Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, msg.ExpiresAt)
	}
}

func TestMessageService_DeletePermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := mustCreateRoom(t, env, &CreateRoomInput{ID: "club", Name: "night club", Mode: model.ModeEphemeral, CreatorID: "host", CreatorName: "alice"})
	msg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: room.ID, Mode: model.ModeEphemeral,
		UserID: "u2", Username: "bob", Content: "hello",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	if err := env.msgSvc.Delete(ctx, room.ID, model.ModeEphemeral, msg.ID, "u3"); err != apperrors.ErrForbidden {
		t.Errorf("Expected ErrForbidden for a bystander, got %v", err)
	}
	if err := env.msgSvc.Delete(ctx, room.ID, model.ModeEphemeral, msg.ID, "host"); err != nil {
		t.Errorf("Expected the host to delete, got %v", err)
	}
	if err := env.msgSvc.Delete(ctx, room.ID, model.ModeEphemeral, msg.ID, "host"); err != apperrors.ErrMessageNotFound {
		t.Errorf("Expected ErrMessageNotFound on repeat, got %v", err)
	}

	own, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: room.ID, Mode: model.ModeEphemeral,
		UserID: "u2", Username: "bob", Content: "again",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if err := env.msgSvc.Delete(ctx, room.ID, model.ModeEphemeral, own.ID, "u2"); err != nil {
		t.Errorf("Expected the sender to delete, got %v", err)
	}
}

func TestMessageService_ReactToggles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := mustCreateRoom(t, env, &CreateRoomInput{ID: "club", Name: "night club", Mode: model.ModeEphemeral, CreatorID: "u1", CreatorName: "alice"})
	msg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: room.ID, Mode: model.ModeEphemeral,
		UserID: "u1", Username: "alice", Content: "hello",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	if _, err := env.msgSvc.React(ctx, room.ID, model.ModeEphemeral, msg.ID, "u1", ""); apperrors.GetHTTPStatus(err) != 400 {
		t.Errorf("Expected empty emoji to fail validation, got %v", err)
	}

	reacted, err := env.msgSvc.React(ctx, room.ID, model.ModeEphemeral, msg.ID, "u1", "🔥")
	if err != nil {
		t.Fatalf("Failed to react: %v", err)
	}
	if len(reacted.Reactions["🔥"]) != 1 {
		t.Errorf("Expected one reaction, got %v", reacted.Reactions)
	}

	toggled, err := env.msgSvc.React(ctx, room.ID, model.ModeEphemeral, msg.ID, "u1", "🔥")
	if err != nil {
		t.Fatalf("Failed to toggle: %v", err)
	}
	if len(toggled.Reactions["🔥"]) != 0 {
		t.Errorf("Expected reaction removed, got %v", toggled.Reactions)
	}
}

func TestMessageService_PinDurableOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	durable := mustCreateRoom(t, env, &CreateRoomInput{Name: "announcements", Mode: model.ModeDurable, CreatorID: "u1", CreatorName: "alice"})
	ephemeral := mustCreateRoom(t, env, &CreateRoomInput{ID: "club", Name: "night club", Mode: model.ModeEphemeral, CreatorID: "u1", CreatorName: "alice"})

	dmsg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: durable.ID, Mode: model.ModeDurable,
		UserID: "u1", Username: "alice", Content: "rules",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	emsg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: ephemeral.ID, Mode: model.ModeEphemeral,
		UserID: "u1", Username: "alice", Content: "hello",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	pinned, err := env.msgSvc.TogglePin(ctx, durable.ID, model.ModeDurable, dmsg.ID)
	if err != nil {
		t.Fatalf("Failed to pin: %v", err)
	}
	if !pinned.Pinned {
		t.Error("Expected message pinned")
	}
	unpinned, err := env.msgSvc.TogglePin(ctx, durable.ID, model.ModeDurable, dmsg.ID)
	if err != nil {
		t.Fatalf("Failed to unpin: %v", err)
	}
	if unpinned.Pinned {
		t.Error("Expected message unpinned")
	}

	if _, err := env.msgSvc.TogglePin(ctx, ephemeral.ID, model.ModeEphemeral, emsg.ID); apperrors.GetHTTPStatus(err) != 400 {
		t.Errorf("Expected pinning in an ephemeral room to fail, got %v", err)
	}
}

func TestMessageService_MarkReadStartsBurnCountdown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room := mustCreateRoom(t, env, &CreateRoomInput{ID: "burn", Name: "burn room", Mode: model.ModeEphemeral, BurnAfterReading: true, CreatorID: "u1", CreatorName: "alice"})
	msg, err := env.msgSvc.Send(ctx, &SendMessageInput{
		RoomID: room.ID, Mode: model.ModeEphemeral,
		UserID: "u1", Username: "alice", Content: "secret",
	})
	if err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	sendDeadline := *msg.ExpiresAt

	if err := env.msgSvc.MarkRead(ctx, room.ID, model.ModeEphemeral, msg.ID, "u2"); err != nil {
		t.Fatalf("Failed to mark read: %v", err)
	}

	got, err := env.messages.Partition(model.ModeEphemeral).Get(ctx, room.ID, msg.ID)
	if err != nil {
		t.Fatalf("Failed to get message: %v", err)
	}
	if !got.ExpiresAt.Before(sendDeadline) {
		t.Errorf("Expected read ack to pull the deadline forward from %v, got %v", sendDeadline, got.ExpiresAt)
	}

	// Repeat ack from the same reader changes nothing.
	if err := env.msgSvc.MarkRead(ctx, room.ID, model.ModeEphemeral, msg.ID, "u2"); err != nil {
		t.Fatalf("Failed on repeat ack: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := env.messages.Partition(model.ModeEphemeral).Get(ctx, room.ID, msg.ID); err == nil {
		t.Error("Expected message burned after read countdown")
	}
}

func TestMessageService_ListMissingRoom(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.msgSvc.List(context.Background(), "ghost", model.ModeEphemeral); err != apperrors.ErrRoomNotFound {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}
