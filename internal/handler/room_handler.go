package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-demo/lanchat/internal/dto/request"
	"github.com/go-demo/lanchat/internal/dto/response"
	"github.com/go-demo/lanchat/internal/middleware"
	"github.com/go-demo/lanchat/internal/model"
	"github.com/go-demo/lanchat/internal/service"
)

// RoomHandler is the REST surface over the room lifecycle engine. Joins,
// messaging and everything interactive go through the WebSocket commands;
// this covers room administration and read access.
type RoomHandler struct {
	roomService *service.RoomService
}

func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
	}
}

// roomMode reads the partition from the mode query parameter.
func roomMode(c *gin.Context) (model.Mode, bool) {
	mode := model.Mode(c.DefaultQuery("mode", string(model.ModeEphemeral)))
	if !mode.IsValid() {
		response.BadRequest(c, "unknown persistence mode")
		return "", false
	}
	return mode, true
}

// List godoc
// @Summary List rooms
// @Description List live rooms in one persistence mode
// @Tags Rooms
// @Produce json
// @Security BearerAuth
// @Param mode query string false "durable or ephemeral" default(ephemeral)
// @Success 200 {object} response.Response{data=[]model.RoomSummary}
// @Router /api/v1/rooms [get]
func (h *RoomHandler) List(c *gin.Context) {
	mode, ok := roomMode(c)
	if !ok {
		return
	}

	rooms, err := h.roomService.List(c.Request.Context(), mode)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rooms)
}

// Create godoc
// @Summary Create room
// @Description Create a room in the requested persistence mode
// @Tags Rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body request.CreateRoomRequest true "Room data"
// @Success 201 {object} response.Response{data=model.RoomSummary}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/rooms [post]
func (h *RoomHandler) Create(c *gin.Context) {
	var req request.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	room, err := h.roomService.Create(c.Request.Context(), &service.CreateRoomInput{
		ID:               req.RoomID,
		Name:             req.Name,
		Description:      req.Description,
		Password:         req.Password,
		BurnAfterReading: req.BurnAfterReading,
		TimeLimit:        req.TimeLimit,
		MessageExpiry:    req.MessageExpiry,
		Mode:             model.Mode(req.Mode),
		CreatorID:        middleware.GetUserID(c),
		CreatorName:      middleware.GetUsername(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, room.Summary())
}

// GetByID godoc
// @Summary Get room
// @Description Get one room's outward-facing view
// @Tags Rooms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param mode query string false "durable or ephemeral" default(ephemeral)
// @Success 200 {object} response.Response{data=model.RoomSummary}
// @Failure 404 {object} response.Response
// @Failure 410 {object} response.Response
// @Router /api/v1/rooms/{id} [get]
func (h *RoomHandler) GetByID(c *gin.Context) {
	mode, ok := roomMode(c)
	if !ok {
		return
	}

	room, err := h.roomService.Get(c.Request.Context(), c.Param("id"), mode)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, room.Summary())
}

// Delete godoc
// @Summary Delete room
// @Description Delete a room and all of its messages (host only)
// @Tags Rooms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param mode query string false "durable or ephemeral" default(ephemeral)
// @Success 204 {object} nil
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/rooms/{id} [delete]
func (h *RoomHandler) Delete(c *gin.Context) {
	mode, ok := roomMode(c)
	if !ok {
		return
	}

	if err := h.roomService.Delete(c.Request.Context(), c.Param("id"), mode, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// GetDashboard godoc
// @Summary Room dashboard
// @Description Online users, departed users and failed password attempts (host only)
// @Tags Rooms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param mode query string false "durable or ephemeral" default(ephemeral)
// @Success 200 {object} response.Response{data=service.Dashboard}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/rooms/{id}/dashboard [get]
func (h *RoomHandler) GetDashboard(c *gin.Context) {
	mode, ok := roomMode(c)
	if !ok {
		return
	}

	dash, err := h.roomService.GetDashboard(c.Request.Context(), c.Param("id"), mode, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dash)
}
