package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Room struct {
	ID        uuid.UUID             `json:"id"`
	Code      string                `json:"code"`
	Name      string                `json:"name"`
	HostID    string                `json:"host_id"`
	FoodMode  string                `json:"food_mode"`
	CreatedAt time.Time             `json:"created_at"`
	ExpiresAt time.Time             `json:"expires_at"`
	IsActive  bool                  `json:"is_active"`
	ClosedAt  sql.NullTime          `json:"closed_at"`
	Result    pqtype.NullRawMessage `json:"result"`
}

type RoomParticipant struct {
	RoomID    uuid.UUID      `json:"room_id"`
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	AvatarUrl sql.NullString `json:"avatar_url"`
	IsHost    bool           `json:"is_host"`
	JoinedAt  time.Time      `json:"joined_at"`
}

type Profile struct {
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	AvatarUrl sql.NullString `json:"avatar_url"`
}

type FoodSuggestion struct {
	ID          uuid.UUID      `json:"id"`
	RoomID      uuid.UUID      `json:"room_id"`
	Name        string         `json:"name"`
	Emoji       string         `json:"emoji"`
	Description sql.NullString `json:"description"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

type FoodVote struct {
	RoomID       uuid.UUID `json:"room_id"`
	UserID       string    `json:"user_id"`
	SuggestionID uuid.UUID `json:"suggestion_id"`
	Reaction     string    `json:"reaction"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Message struct {
	ID         uuid.UUID `json:"id"`
	RoomID     uuid.UUID `json:"room_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChangeOutbox struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    sql.NullTime    `json:"sent_at"`
	Attempts  int32           `json:"attempts"`
}
