package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresenceRecord is the durable online/offline state for one user.
// Maps to the user_presence table; connection_id is the opaque handle of
// the live signaling connection and is null while offline.
type PresenceRecord struct {
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	IsOnline     bool      `json:"is_online" db:"is_online"`
	LastSeen     time.Time `json:"last_seen" db:"last_seen"`
	ConnectionID *string   `json:"connection_id,omitempty" db:"connection_id"`
}

// OfflinePresence returns the default record for a user who has never
// authenticated on this service
func OfflinePresence(userID uuid.UUID) *PresenceRecord {
	return &PresenceRecord{
		UserID:   userID,
		IsOnline: false,
	}
}

// OnlineUser joins a presence row with the user's public profile for
// online-user listings and broadcasts
type OnlineUser struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}
