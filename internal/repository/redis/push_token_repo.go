package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"peerpractice-backend/pkg/constants"
	"peerpractice-backend/pkg/logger"
	"peerpractice-backend/pkg/push"
)

// PushTokenRepository stores push notification tokens in Redis.
// Keys: push:token:{token} holds the serialized token, push:user:{id}:tokens
// is the per-user token set.
type PushTokenRepository struct {
	client *redis.Client
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(client *redis.Client) *PushTokenRepository {
	return &PushTokenRepository{
		client: client,
	}
}

// Store stores a push notification token
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	now := time.Now().Unix()
	if token.CreatedAt == 0 {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tokenKey := fmt.Sprintf("push:token:%s", token.Token)
	if err := r.client.Set(ctx, tokenKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	userTokensKey := fmt.Sprintf("push:user:%s:tokens", token.UserID)
	if err := r.client.SAdd(ctx, userTokensKey, token.Token).Err(); err != nil {
		return fmt.Errorf("failed to add token to user set: %w", err)
	}

	if err := r.client.Expire(ctx, userTokensKey, constants.PushTokenExpiry).Err(); err != nil {
		logger.Warn("Failed to set expiration on user tokens set",
			zap.String("user_id", token.UserID.String()),
			zap.Error(err))
	}

	logger.Debug("Push token stored",
		zap.String("token_id", token.ID.String()),
		zap.String("user_id", token.UserID.String()),
		zap.String("token_type", string(token.Type)))

	return nil
}

// GetByToken retrieves a token by its value
func (r *PushTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*push.Token, error) {
	tokenKey := fmt.Sprintf("push:token:%s", tokenStr)
	data, err := r.client.Get(ctx, tokenKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Token not found
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token push.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// GetByUserID retrieves all tokens for a user
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	userTokensKey := fmt.Sprintf("push:user:%s:tokens", userID)
	tokens, err := r.client.SMembers(ctx, userTokensKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}

	var result []*push.Token
	for _, tokenStr := range tokens {
		token, err := r.GetByToken(ctx, tokenStr)
		if err != nil {
			logger.Warn("Failed to get token",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}
		if token != nil {
			result = append(result, token)
		}
	}

	return result, nil
}

// Update updates an existing token
func (r *PushTokenRepository) Update(ctx context.Context, token *push.Token) error {
	token.UpdatedAt = time.Now().Unix()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tokenKey := fmt.Sprintf("push:token:%s", token.Token)
	if err := r.client.Set(ctx, tokenKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	return nil
}

// Delete removes a token by ID
func (r *PushTokenRepository) Delete(ctx context.Context, tokenID uuid.UUID) error {
	// Tokens are keyed by value, so locate the matching ID by scan.
	// Token counts per instance are small enough for this to stay cheap.
	token, err := r.findByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if token == nil {
		return nil // Token not found
	}

	userTokensKey := fmt.Sprintf("push:user:%s:tokens", token.UserID)
	r.client.SRem(ctx, userTokensKey, token.Token)

	tokenKey := fmt.Sprintf("push:token:%s", token.Token)
	if err := r.client.Del(ctx, tokenKey).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	logger.Debug("Push token deleted",
		zap.String("token_id", tokenID.String()),
		zap.String("user_id", token.UserID.String()))

	return nil
}

// DeleteByUserID removes all tokens for a user
func (r *PushTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	userTokensKey := fmt.Sprintf("push:user:%s:tokens", userID)
	tokens, err := r.client.SMembers(ctx, userTokensKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get user tokens: %w", err)
	}

	for _, tokenStr := range tokens {
		tokenKey := fmt.Sprintf("push:token:%s", tokenStr)
		if err := r.client.Del(ctx, tokenKey).Err(); err != nil {
			logger.Warn("Failed to delete token",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	if err := r.client.Del(ctx, userTokensKey).Err(); err != nil {
		return fmt.Errorf("failed to delete user tokens set: %w", err)
	}

	logger.Debug("All push tokens deleted for user",
		zap.String("user_id", userID.String()),
		zap.Int("count", len(tokens)))

	return nil
}

// MarkInactive marks a token as inactive
func (r *PushTokenRepository) MarkInactive(ctx context.Context, tokenID uuid.UUID) error {
	token, err := r.findByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if token == nil {
		return nil // Token not found
	}

	token.Active = false
	token.UpdatedAt = time.Now().Unix()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tokenKey := fmt.Sprintf("push:token:%s", token.Token)
	if err := r.client.Set(ctx, tokenKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	logger.Debug("Push token marked as inactive",
		zap.String("token_id", tokenID.String()),
		zap.String("user_id", token.UserID.String()))

	return nil
}

// findByID scans token keys for the entry with the given ID
func (r *PushTokenRepository) findByID(ctx context.Context, tokenID uuid.UUID) (*push.Token, error) {
	iter := r.client.Scan(ctx, 0, "push:token:*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}

		var token push.Token
		if err := json.Unmarshal(data, &token); err != nil {
			continue
		}

		if token.ID == tokenID {
			return &token, nil
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tokens: %w", err)
	}

	return nil, nil
}
