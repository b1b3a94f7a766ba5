package models

import (
	"time"

	"github.com/google/uuid"
)

// Suggestion is a proposed food option. Suggestions are never edited.
type Suggestion struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	Name        string    `json:"name"`
	Emoji       string    `json:"emoji"`
	Description *string   `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is a chat line in a room.
type Message struct {
	ID         uuid.UUID `json:"id"`
	RoomID     uuid.UUID `json:"room_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// PendingMessage is a chat line that has been broadcast but not yet stored.
type PendingMessage struct {
	ID         uuid.UUID `json:"id"`
	RoomID     uuid.UUID `json:"room_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}
