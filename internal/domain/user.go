package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents an entry in the platform user directory.
// The directory is owned by the account service; this service reads it
// to resolve call participants and presence listings.
type User struct {
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// UserResponse is the public user representation returned to clients
// and embedded in signaling pushes
type UserResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}

// ToResponse converts User to its public representation
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		UserID:      u.UserID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}
