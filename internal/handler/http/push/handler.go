// Package push exposes push notification token management endpoints.
package push

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"peerpractice-backend/pkg/logger"
	"peerpractice-backend/pkg/push"
	"peerpractice-backend/pkg/response"
)

// Handler handles push notification HTTP requests
type Handler struct {
	pushService *push.Service
}

// NewHandler creates a new push notification handler
func NewHandler(pushService *push.Service) *Handler {
	return &Handler{
		pushService: pushService,
	}
}

// currentUserID extracts the authenticated user from the request context
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok
}

// RegisterTokenRequest represents request to register a push token
type RegisterTokenRequest struct {
	Token    string         `json:"token" binding:"required"`
	Type     push.TokenType `json:"type" binding:"required,oneof=fcm apns"`
	DeviceID string         `json:"device_id"`
	Platform string         `json:"platform"` // ios, android
}

// RegisterToken registers a new push notification token for the authenticated user
// POST /v1/push/tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if req.Platform != "" && req.Platform != "ios" && req.Platform != "android" {
		response.ValidationError(c, "Invalid platform. Must be 'ios' or 'android'")
		return
	}

	token := &push.Token{
		UserID:    userID,
		Token:     req.Token,
		Type:      req.Type,
		DeviceID:  req.DeviceID,
		Platform:  req.Platform,
		Active:    true,
		CreatedAt: time.Now().Unix(),
		UpdatedAt: time.Now().Unix(),
	}

	if err := h.pushService.RegisterToken(c.Request.Context(), token); err != nil {
		logger.Error("Failed to register push token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to register token")
		return
	}

	logger.Info("Push token registered",
		zap.String("user_id", userID.String()),
		zap.String("token_type", string(req.Type)),
		zap.String("platform", req.Platform))

	response.Success(c, http.StatusOK, gin.H{
		"token_id": token.ID,
	})
}

// UnregisterTokenRequest represents request to unregister a push token
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnregisterToken removes a push notification token
// DELETE /v1/push/tokens
func (h *Handler) UnregisterToken(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	token, err := h.pushService.GetTokenByValue(c.Request.Context(), req.Token)
	if err != nil {
		response.InternalError(c, "Failed to get token")
		return
	}

	if token == nil || token.UserID != userID {
		response.NotFound(c, "Token not found")
		return
	}

	if err := h.pushService.UnregisterToken(c.Request.Context(), token.ID); err != nil {
		logger.Error("Failed to unregister push token",
			zap.String("user_id", userID.String()),
			zap.String("token_id", token.ID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to unregister token")
		return
	}

	logger.Info("Push token unregistered",
		zap.String("user_id", userID.String()),
		zap.String("token_id", token.ID.String()))

	response.Success(c, http.StatusOK, gin.H{
		"message": "Token unregistered",
	})
}

// UnregisterAllTokens removes all push notification tokens for the authenticated user
// DELETE /v1/push/tokens/all
func (h *Handler) UnregisterAllTokens(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.pushService.UnregisterAllTokens(c.Request.Context(), userID); err != nil {
		logger.Error("Failed to unregister all push tokens",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to unregister tokens")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "All tokens unregistered",
	})
}

// GetTokens returns all push notification tokens for the authenticated user
// GET /v1/push/tokens
func (h *Handler) GetTokens(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	tokens, err := h.pushService.GetTokensByUserID(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to get push tokens",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to get tokens")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokens,
		"count":  len(tokens),
	})
}
