package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidReaction = errors.New("invalid reaction")

// Reaction is the graded value a participant attaches to a vote.
type Reaction string

const (
	ReactionLove    Reaction = "love"
	ReactionLike    Reaction = "like"
	ReactionNeutral Reaction = "neutral"
	ReactionDislike Reaction = "dislike"
)

// ParseReaction validates a reaction coming from a client or a change event.
func ParseReaction(s string) (Reaction, error) {
	switch Reaction(s) {
	case ReactionLove, ReactionLike, ReactionNeutral, ReactionDislike:
		return Reaction(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReaction, s)
	}
}

// Vote is the single vote a user holds in a room.
type Vote struct {
	RoomID       uuid.UUID `json:"room_id"`
	UserID       string    `json:"user_id"`
	SuggestionID uuid.UUID `json:"suggestion_id"`
	Reaction     Reaction  `json:"reaction"`
	UpdatedAt    time.Time `json:"updated_at"`
}
