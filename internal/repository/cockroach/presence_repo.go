package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"peerpractice-backend/internal/domain"
)

// PresenceRepository is the durable source of truth for who is online.
// Rows persist indefinitely; last_seen keeps a history even while offline.
type PresenceRepository struct {
	pool *pgxpool.Pool
}

// NewPresenceRepository creates a new presence repository
func NewPresenceRepository(pool *pgxpool.Pool) *PresenceRepository {
	return &PresenceRepository{pool: pool}
}

// SetOnline upserts the user's presence row with the live connection handle
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID, connectionID string) error {
	query := `
		INSERT INTO user_presence (user_id, is_online, last_seen, connection_id)
		VALUES ($1, true, NOW(), $2)
		ON CONFLICT (user_id)
		DO UPDATE SET is_online = true, last_seen = NOW(), connection_id = $2
	`

	_, err := r.pool.Exec(ctx, query, userID, connectionID)
	if err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}

	return nil
}

// SetOffline upserts the user's presence row clearing the connection handle
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	query := `
		INSERT INTO user_presence (user_id, is_online, last_seen, connection_id)
		VALUES ($1, false, NOW(), NULL)
		ON CONFLICT (user_id)
		DO UPDATE SET is_online = false, last_seen = NOW(), connection_id = NULL
	`

	_, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}

	return nil
}

// GetStatus retrieves one user's presence row
func (r *PresenceRepository) GetStatus(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	query := `
		SELECT user_id, is_online, last_seen, connection_id
		FROM user_presence
		WHERE user_id = $1
	`

	record := &domain.PresenceRecord{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&record.UserID,
		&record.IsOnline,
		&record.LastSeen,
		&record.ConnectionID,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	return record, nil
}

// GetOnlineUsers returns all online users joined with their public profiles
func (r *PresenceRepository) GetOnlineUsers(ctx context.Context) ([]*domain.OnlineUser, error) {
	query := `
		SELECT u.user_id, u.username, u.display_name, u.avatar_url, p.last_seen
		FROM user_presence p
		JOIN users u ON u.user_id = p.user_id
		WHERE p.is_online = true
		ORDER BY u.display_name ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}
	defer rows.Close()

	var users []*domain.OnlineUser
	for rows.Next() {
		u := &domain.OnlineUser{}
		err := rows.Scan(
			&u.UserID,
			&u.Username,
			&u.DisplayName,
			&u.AvatarURL,
			&u.LastSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan online user: %w", err)
		}
		users = append(users, u)
	}

	return users, nil
}
