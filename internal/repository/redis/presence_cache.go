package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"peerpractice-backend/pkg/constants"
)

// PresenceCache mirrors the durable presence store in Redis for cheap
// online checks. Entries auto-expire unless refreshed by heartbeats, so a
// crashed instance cannot leave users online forever. Best-effort only;
// the CockroachDB presence table stays authoritative.
type PresenceCache struct {
	client *redis.Client
}

// NewPresenceCache creates a new presence cache
func NewPresenceCache(client *redis.Client) *PresenceCache {
	return &PresenceCache{client: client}
}

// SetOnline marks the user online with a TTL
func (c *PresenceCache) SetOnline(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("presence:%s", userID)

	if err := c.client.Set(ctx, key, "online", constants.PresenceCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}

	if err := c.client.SAdd(ctx, "presence:online", userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}

	return nil
}

// SetOffline removes the user's cache entry
func (c *PresenceCache) SetOffline(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("presence:%s", userID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	if err := c.client.SRem(ctx, "presence:online", userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}

	return nil
}

// IsOnline checks whether the user has a live cache entry
func (c *PresenceCache) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("presence:%s", userID)

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}

	return exists > 0, nil
}

// Refresh extends the user's TTL (heartbeat)
func (c *PresenceCache) Refresh(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("presence:%s", userID)

	if err := c.client.Expire(ctx, key, constants.PresenceCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}

	return nil
}

// OnlineCount returns the number of cached online users
func (c *PresenceCache) OnlineCount(ctx context.Context) (int64, error) {
	count, err := c.client.SCard(ctx, "presence:online").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count online users: %w", err)
	}
	return count, nil
}
