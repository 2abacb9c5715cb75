package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-demo/lanchat/internal/model"
	"github.com/go-demo/lanchat/internal/pkg/utils"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// LAN deployment, any origin on the local network may connect
		return true
	},
}

// Handler handles WebSocket connections
type Handler struct {
	hub        *Hub
	jwtManager *utils.JWTManager
	logger     *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, jwtManager *utils.JWTManager, logger *zap.Logger) *Handler {
	return &Handler{
		hub:        hub,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

// ServeWS handles WebSocket connection requests
// @Summary WebSocket connection
// @Description Open a WebSocket connection bound to one persistence mode
// @Tags WebSocket
// @Param token query string true "JWT Token"
// @Param mode query string false "Persistence mode (durable or ephemeral)" default(ephemeral)
// @Success 101 {string} string "Switching Protocols"
// @Failure 401 {object} map[string]string
// @Router /ws [get]
func (h *Handler) ServeWS(c *gin.Context) {
	// Get token from query parameter or header
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth token"})
		return
	}

	claims, err := h.jwtManager.Verify(token)
	if err != nil {
		h.logger.Warn("Invalid token for WebSocket",
			zap.Error(err),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	mode := model.Mode(c.DefaultQuery("mode", string(model.ModeEphemeral)))
	if !mode.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown persistence mode"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket",
			zap.Error(err),
		)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.Username, mode, h.logger)

	h.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns WebSocket hub statistics
// @Summary Hub statistics
// @Description Connection, user and room channel counts
// @Tags WebSocket
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int
// @Router /api/v1/ws/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats := h.hub.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// GetOnlineUsers returns connected user IDs
// @Summary Online users
// @Description IDs of all currently connected users
// @Tags WebSocket
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string][]string
// @Router /api/v1/ws/online [get]
func (h *Handler) GetOnlineUsers(c *gin.Context) {
	users := h.hub.GetOnlineUserIDs()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"users": users,
			"count": len(users),
		},
	})
}

// IsUserOnline checks if a specific user is online
// @Summary Check user presence
// @Description Whether the given user has an open connection
// @Tags WebSocket
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "User ID"
// @Success 200 {object} map[string]bool
// @Router /api/v1/ws/online/{user_id} [get]
func (h *Handler) IsUserOnline(c *gin.Context) {
	userID := c.Param("user_id")
	online := h.hub.IsUserOnline(userID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user_id": userID,
			"online":  online,
		},
	})
}
