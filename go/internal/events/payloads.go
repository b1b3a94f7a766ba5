package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Change event types written by the outbox triggers.
const (
	EventTypeRoomCreated       = "RoomCreated"
	EventTypeRoomClosed        = "RoomClosed"
	EventTypeParticipantJoined = "ParticipantJoined"
	EventTypeSuggestionAdded   = "SuggestionAdded"
	EventTypeVoteCast          = "VoteCast"
	EventTypeVoteCleared       = "VoteCleared"
	EventTypeMessagePosted     = "MessagePosted"
)

// Envelope is the JetStream message body for a change event.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Payloads mirror the row images produced by row_to_json in the triggers.

// RoomPayload is the payload for RoomCreated and RoomClosed.
type RoomPayload struct {
	ID        uuid.UUID  `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	HostID    string     `json:"host_id"`
	FoodMode  string     `json:"food_mode"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsActive  bool       `json:"is_active"`
	ClosedAt  *time.Time `json:"closed_at"`
}

// ParticipantPayload is the payload for ParticipantJoined.
type ParticipantPayload struct {
	RoomID    uuid.UUID `json:"room_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url"`
	IsHost    bool      `json:"is_host"`
	JoinedAt  time.Time `json:"joined_at"`
}

// SuggestionPayload is the payload for SuggestionAdded.
type SuggestionPayload struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	Name        string    `json:"name"`
	Emoji       string    `json:"emoji"`
	Description *string   `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// VotePayload is the payload for VoteCast and VoteCleared.
type VotePayload struct {
	RoomID       uuid.UUID `json:"room_id"`
	UserID       string    `json:"user_id"`
	SuggestionID uuid.UUID `json:"suggestion_id"`
	Reaction     string    `json:"reaction"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MessagePayload is the payload for MessagePosted.
type MessagePayload struct {
	ID         uuid.UUID `json:"id"`
	RoomID     uuid.UUID `json:"room_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Ephemeral broadcast types. These are never persisted.
const (
	BroadcastPending = "pending"
	BroadcastRetract = "retract"
)

// Broadcast is a best-effort room broadcast between connected clients.
type Broadcast struct {
	Type       string    `json:"type"`
	PendingID  uuid.UUID `json:"pending_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Text       string    `json:"text,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}
