package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-demo/lanchat/internal/blob"
	"github.com/go-demo/lanchat/internal/middleware"
	"github.com/go-demo/lanchat/internal/repository"
	"github.com/go-demo/lanchat/internal/scheduler"
	"github.com/go-demo/lanchat/internal/service"
	"github.com/go-demo/lanchat/internal/store"
	"go.uber.org/zap"
)

// fakeAuth stands in for the JWT middleware so handler tests can pick the
// acting user per request.
func fakeAuth(userID, username string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Set(middleware.UsernameKey, username)
		c.Next()
	}
}

func setupRoomRouter(t *testing.T, userID, username string) (*gin.Engine, *service.RoomService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()

	files, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open file store: %v", err)
	}

	rooms := repository.NewRooms(
		repository.NewDurableRoomRepository(files, logger),
		repository.NewEphemeralRoomRepository(),
	)
	messages := repository.NewMessages(
		repository.NewDurableMessageRepository(files, logger),
		repository.NewEphemeralMessageRepository(),
	)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	cfg := service.LifecycleConfig{
		EmptyRoomWindow: time.Minute,
		BurnWindow:      time.Minute,
		BurnReadWindow:  time.Minute,
	}

	messageService := service.NewMessageService(rooms, messages, sched, blob.NopStore{}, cfg, logger)
	roomService := service.NewRoomService(rooms, messageService, sched, cfg, logger)

	h := NewRoomHandler(roomService)

	router := gin.New()
	group := router.Group("/api/v1/rooms")
	group.Use(fakeAuth(userID, username))
	{
		group.GET("", h.List)
		group.POST("", h.Create)
		group.GET("/:id", h.GetByID)
		group.DELETE("/:id", h.Delete)
		group.GET("/:id/dashboard", h.GetDashboard)
	}

	return router, roomService
}

func performJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoomHandler_CreateAndGet(t *testing.T) {
	router, _ := setupRoomRouter(t, "host-1", "alice")

	w := performJSON(router, "POST", "/api/v1/rooms", gin.H{
		"room_id": "lobby",
		"name":    "The Lobby",
		"mode":    "ephemeral",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Success bool `json:"success"`
		Data    struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			HasPassword bool   `json:"has_password"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !created.Success {
		t.Error("Expected success=true")
	}
	if created.Data.ID != "lobby" || created.Data.Name != "The Lobby" {
		t.Errorf("Unexpected room summary: %+v", created.Data)
	}

	w = performJSON(router, "GET", "/api/v1/rooms/lobby?mode=ephemeral", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRoomHandler_CreateValidation(t *testing.T) {
	router, _ := setupRoomRouter(t, "host-1", "alice")

	// Name too short fails gin binding
	w := performJSON(router, "POST", "/api/v1/rooms", gin.H{
		"name": "ab",
		"mode": "ephemeral",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for short name, got %d", w.Code)
	}

	// Mode outside the oneof set
	w = performJSON(router, "POST", "/api/v1/rooms", gin.H{
		"name": "valid name",
		"mode": "archived",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown mode, got %d", w.Code)
	}
}

func TestRoomHandler_CreateDuplicate(t *testing.T) {
	router, _ := setupRoomRouter(t, "host-1", "alice")

	body := gin.H{"room_id": "lobby", "name": "The Lobby", "mode": "ephemeral"}
	if w := performJSON(router, "POST", "/api/v1/rooms", body); w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	w := performJSON(router, "POST", "/api/v1/rooms", body)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate room, got %d", w.Code)
	}
}

func TestRoomHandler_List(t *testing.T) {
	router, _ := setupRoomRouter(t, "host-1", "alice")

	performJSON(router, "POST", "/api/v1/rooms", gin.H{"room_id": "room-a", "name": "Room A", "mode": "ephemeral"})
	performJSON(router, "POST", "/api/v1/rooms", gin.H{"room_id": "room-b", "name": "Room B", "mode": "ephemeral"})

	w := performJSON(router, "GET", "/api/v1/rooms?mode=ephemeral", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var listed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(listed.Data) != 2 {
		t.Errorf("Expected 2 rooms, got %d", len(listed.Data))
	}

	// The durable partition is separate and still empty
	w = performJSON(router, "GET", "/api/v1/rooms?mode=durable", nil)
	var durable struct {
		Data []json.RawMessage `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &durable)
	if len(durable.Data) != 0 {
		t.Errorf("Expected empty durable partition, got %d rooms", len(durable.Data))
	}
}

func TestRoomHandler_GetMissing(t *testing.T) {
	router, _ := setupRoomRouter(t, "host-1", "alice")

	w := performJSON(router, "GET", "/api/v1/rooms/nowhere", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRoomHandler_BadMode(t *testing.T) {
	router, _ := setupRoomRouter(t, "host-1", "alice")

	w := performJSON(router, "GET", "/api/v1/rooms?mode=archived", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRoomHandler_DeleteHostOnly(t *testing.T) {
	hostRouter, roomService := setupRoomRouter(t, "host-1", "alice")

	w := performJSON(hostRouter, "POST", "/api/v1/rooms", gin.H{
		"room_id": "lobby", "name": "The Lobby", "mode": "ephemeral",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	// Same service, different acting user
	gin.SetMode(gin.TestMode)
	outsider := gin.New()
	h := NewRoomHandler(roomService)
	group := outsider.Group("/api/v1/rooms")
	group.Use(fakeAuth("user-2", "bob"))
	group.DELETE("/:id", h.Delete)

	w = performJSON(outsider, "DELETE", "/api/v1/rooms/lobby", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-host delete, got %d", w.Code)
	}

	w = performJSON(hostRouter, "DELETE", "/api/v1/rooms/lobby", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}

	w = performJSON(hostRouter, "GET", "/api/v1/rooms/lobby", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestRoomHandler_Dashboard(t *testing.T) {
	hostRouter, roomService := setupRoomRouter(t, "host-1", "alice")

	w := performJSON(hostRouter, "POST", "/api/v1/rooms", gin.H{
		"room_id": "lobby", "name": "The Lobby", "mode": "ephemeral",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	w = performJSON(hostRouter, "GET", "/api/v1/rooms/lobby/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var dash struct {
		Data struct {
			RoomID         string            `json:"room_id"`
			OnlineUsers    []json.RawMessage `json:"online_users"`
			FailedAttempts []json.RawMessage `json:"failed_attempts"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &dash); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if dash.Data.RoomID != "lobby" {
		t.Errorf("Expected room_id lobby, got %q", dash.Data.RoomID)
	}

	// Non-host gets refused
	gin.SetMode(gin.TestMode)
	outsider := gin.New()
	h := NewRoomHandler(roomService)
	group := outsider.Group("/api/v1/rooms")
	group.Use(fakeAuth("user-2", "bob"))
	group.GET("/:id/dashboard", h.GetDashboard)

	w = performJSON(outsider, "GET", "/api/v1/rooms/lobby/dashboard", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-host dashboard, got %d", w.Code)
	}
}
