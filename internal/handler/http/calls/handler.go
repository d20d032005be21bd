// Package calls exposes read-only call history endpoints: request
// history, active sessions, and the signaling event log. Call state
// changes only through the signaling WebSocket.
package calls

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"peerpractice-backend/internal/service/signaling"
	"peerpractice-backend/pkg/constants"
	"peerpractice-backend/pkg/response"
)

// Handler handles call history HTTP requests
type Handler struct {
	signalingService *signaling.Service
}

// NewHandler creates a new calls handler
func NewHandler(signalingService *signaling.Service) *Handler {
	return &Handler{
		signalingService: signalingService,
	}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(constants.DefaultPageSize)))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListRequests returns the user's sent and received call requests
// GET /v1/calls/requests
func (h *Handler) ListRequests(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit, offset := pagination(c)

	requests, err := h.signalingService.ListRequestsForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"requests": requests,
		"limit":    limit,
		"offset":   offset,
	})
}

// ListActiveSessions returns the user's active call sessions
// GET /v1/calls/sessions/active
func (h *Handler) ListActiveSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	sessions, err := h.signalingService.ListActiveSessionsForUser(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"sessions": sessions,
	})
}

// ListEvents returns the user's recent signaling events
// GET /v1/calls/events
func (h *Handler) ListEvents(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit, _ := pagination(c)

	events, err := h.signalingService.ListEventsForUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"events": events,
	})
}
