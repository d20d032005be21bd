// Package presence exposes read-only presence endpoints. Presence is
// written only by the WebSocket connection lifecycle.
package presence

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"peerpractice-backend/internal/service/signaling"
	"peerpractice-backend/pkg/response"
)

// Handler handles presence HTTP requests
type Handler struct {
	signalingService *signaling.Service
}

// NewHandler creates a new presence handler
func NewHandler(signalingService *signaling.Service) *Handler {
	return &Handler{
		signalingService: signalingService,
	}
}

// GetOnlineUsers lists currently online users
// GET /v1/presence/online
func (h *Handler) GetOnlineUsers(c *gin.Context) {
	users, err := h.signalingService.OnlineUsers(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

// GetStatus returns one user's presence record
// GET /v1/presence/:user_id
func (h *Handler) GetStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	record, err := h.signalingService.PresenceStatus(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, record)
}
