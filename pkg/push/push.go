package push

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peerpractice-backend/pkg/logger"
)

// Provider defines the interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal, low
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	Category string            `json:"category,omitempty"`
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
)

// Token represents a push notification token for a user
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	Platform  string    `json:"platform,omitempty"` // ios, android
	Active    bool      `json:"active"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// TokenRepository defines the interface for storing and retrieving push tokens
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	GetByToken(ctx context.Context, token string) (*Token, error)
	Update(ctx context.Context, token *Token) error
	Delete(ctx context.Context, tokenID uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
	MarkInactive(ctx context.Context, tokenID uuid.UUID) error
}

// Service sends practice-call notifications to users who have no live
// signaling connection. Fire-and-forget like the live pushes: no queue,
// no retry.
type Service struct {
	provider Provider
	repo     TokenRepository
}

// NewService creates a new push notification service
func NewService(provider Provider, repo TokenRepository) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
	}
}

// RegisterToken registers a new push notification token for a user
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	// Re-registering an existing token reactivates it
	existing, err := s.repo.GetByToken(ctx, token.Token)
	if err == nil && existing != nil {
		existing.Active = true
		existing.UpdatedAt = token.UpdatedAt
		existing.DeviceID = token.DeviceID
		existing.Platform = token.Platform
		return s.repo.Update(ctx, existing)
	}

	return s.repo.Store(ctx, token)
}

// UnregisterToken removes a push notification token
func (s *Service) UnregisterToken(ctx context.Context, tokenID uuid.UUID) error {
	return s.repo.Delete(ctx, tokenID)
}

// UnregisterAllTokens removes all tokens for a user
func (s *Service) UnregisterAllTokens(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// GetTokensByUserID retrieves all tokens for a user
func (s *Service) GetTokensByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// GetTokenByValue retrieves a token by its raw value; nil when unknown
func (s *Service) GetTokenByValue(ctx context.Context, token string) (*Token, error) {
	return s.repo.GetByToken(ctx, token)
}

// SendIncomingCallNotification notifies an offline receiver that a peer
// wants to start a practice call
func (s *Service) SendIncomingCallNotification(ctx context.Context, receiverID uuid.UUID, requesterName string, requestID uuid.UUID, duration int) error {
	notification := &Notification{
		Title:    "Incoming practice call",
		Body:     fmt.Sprintf("%s wants to practice with you for %d minutes", requesterName, duration),
		Priority: "high",
		Sound:    "default",
		Category: "INCOMING_PRACTICE_CALL",
		Data: map[string]string{
			"type":           "incoming_call_request",
			"request_id":     requestID.String(),
			"requester_name": requesterName,
			"duration":       fmt.Sprintf("%d", duration),
		},
	}

	return s.sendToUser(ctx, notification, receiverID)
}

// SendMissedCallNotification notifies a receiver that a call request
// expired unanswered
func (s *Service) SendMissedCallNotification(ctx context.Context, receiverID uuid.UUID, requesterName string, requestID uuid.UUID) error {
	notification := &Notification{
		Title:    "Missed practice call",
		Body:     fmt.Sprintf("You missed a practice call from %s", requesterName),
		Priority: "normal",
		Sound:    "default",
		Data: map[string]string{
			"type":           "missed_call_request",
			"request_id":     requestID.String(),
			"requester_name": requesterName,
		},
	}

	return s.sendToUser(ctx, notification, receiverID)
}

// sendToUser delivers a notification to every active token of a user
func (s *Service) sendToUser(ctx context.Context, notification *Notification, userID uuid.UUID) error {
	tokens, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get push tokens: %w", err)
	}

	var active []string
	for _, token := range tokens {
		if token.Active {
			active = append(active, token.Token)
		}
	}

	if len(active) == 0 {
		logger.Debug("No active push tokens for user",
			zap.String("user_id", userID.String()))
		return nil
	}

	result, err := s.provider.Send(ctx, notification, active)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}

	logger.Info("Push notification sent",
		zap.String("user_id", userID.String()),
		zap.String("title", notification.Title),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount))

	if len(result.InvalidTokens) > 0 {
		s.handleInvalidTokens(ctx, result.InvalidTokens)
	}

	return nil
}

// handleInvalidTokens marks tokens rejected by the provider as inactive
func (s *Service) handleInvalidTokens(ctx context.Context, invalidTokens []string) {
	for _, tokenStr := range invalidTokens {
		token, err := s.repo.GetByToken(ctx, tokenStr)
		if err == nil && token != nil {
			if err := s.repo.MarkInactive(ctx, token.ID); err != nil {
				logger.Warn("Failed to mark token as inactive",
					zap.String("token_id", token.ID.String()),
					zap.Error(err))
			}
		}
	}
}

// MockProvider is a mock implementation for development/testing
type MockProvider struct {
	NotificationsSent int
}

// Send implements Provider interface
func (m *MockProvider) Send(_ context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.NotificationsSent++

	logger.Debug("MockProvider: Sending notification",
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
		zap.Int("token_count", len(tokens)))

	return &SendResult{
		SuccessCount: len(tokens),
	}, nil
}
