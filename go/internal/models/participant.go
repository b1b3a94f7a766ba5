package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a user's membership in a room.
type Participant struct {
	RoomID    uuid.UUID `json:"room_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	IsHost    bool      `json:"is_host"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Profile is the display identity stored for a user.
type Profile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
