package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/models"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrRoomMismatch     = errors.New("event room mismatch")
)

// Event is a change envelope decoded into the model it carries. Exactly one
// of the model fields is set, or RoomClosed is true.
type Event struct {
	RoomID      uuid.UUID
	Type        string
	Message     *models.Message
	Vote        *models.Vote
	Suggestion  *models.Suggestion
	Participant *models.Participant
	Room        *models.Room
	RoomClosed  bool
}

// Decode validates a change envelope and converts its payload.
func Decode(env events.Envelope) (Event, error) {
	roomID, err := uuid.Parse(env.RoomID)
	if err != nil {
		return Event{}, fmt.Errorf("invalid room id %q: %w", env.RoomID, err)
	}
	ev := Event{RoomID: roomID, Type: env.EventType}

	switch env.EventType {
	case events.EventTypeMessagePosted:
		var p events.MessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("failed to decode message payload: %w", err)
		}
		ev.Message = &models.Message{
			ID:         p.ID,
			RoomID:     p.RoomID,
			AuthorID:   p.AuthorID,
			AuthorName: p.AuthorName,
			Text:       p.Text,
			Timestamp:  p.CreatedAt.UTC(),
		}

	case events.EventTypeVoteCast, events.EventTypeVoteCleared:
		var p events.VotePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("failed to decode vote payload: %w", err)
		}
		reaction, err := models.ParseReaction(p.Reaction)
		if err != nil {
			return Event{}, err
		}
		ev.Vote = &models.Vote{
			RoomID:       p.RoomID,
			UserID:       p.UserID,
			SuggestionID: p.SuggestionID,
			Reaction:     reaction,
			UpdatedAt:    p.UpdatedAt.UTC(),
		}

	case events.EventTypeSuggestionAdded:
		var p events.SuggestionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("failed to decode suggestion payload: %w", err)
		}
		ev.Suggestion = &models.Suggestion{
			ID:          p.ID,
			RoomID:      p.RoomID,
			Name:        p.Name,
			Emoji:       p.Emoji,
			Description: p.Description,
			CreatedBy:   p.CreatedBy,
			CreatedAt:   p.CreatedAt.UTC(),
		}

	case events.EventTypeParticipantJoined:
		var p events.ParticipantPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("failed to decode participant payload: %w", err)
		}
		ev.Participant = &models.Participant{
			RoomID:   p.RoomID,
			UserID:   p.UserID,
			Name:     p.Name,
			IsHost:   p.IsHost,
			JoinedAt: p.JoinedAt.UTC(),
		}
		if p.AvatarURL != nil {
			ev.Participant.AvatarURL = *p.AvatarURL
		}

	case events.EventTypeRoomCreated, events.EventTypeRoomClosed:
		var p events.RoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("failed to decode room payload: %w", err)
		}
		foodMode, err := models.ParseFoodMode(p.FoodMode)
		if err != nil {
			return Event{}, err
		}
		ev.Room = &models.Room{
			ID:        p.ID,
			Code:      p.Code,
			Name:      p.Name,
			HostID:    p.HostID,
			FoodMode:  foodMode,
			CreatedAt: p.CreatedAt.UTC(),
			ExpiresAt: p.ExpiresAt.UTC(),
			IsActive:  p.IsActive,
			ClosedAt:  p.ClosedAt,
		}
		ev.RoomClosed = env.EventType == events.EventTypeRoomClosed

	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}

	if owner := ev.payloadRoomID(); owner != roomID {
		return Event{}, fmt.Errorf("%w: payload room %s in envelope for %s", ErrRoomMismatch, owner, roomID)
	}
	return ev, nil
}

func (ev Event) payloadRoomID() uuid.UUID {
	switch {
	case ev.Message != nil:
		return ev.Message.RoomID
	case ev.Vote != nil:
		return ev.Vote.RoomID
	case ev.Suggestion != nil:
		return ev.Suggestion.RoomID
	case ev.Participant != nil:
		return ev.Participant.RoomID
	case ev.Room != nil:
		return ev.Room.ID
	}
	return uuid.Nil
}
