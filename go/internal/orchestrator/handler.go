package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/tally"
	"github.com/rs/zerolog/log"
)

// closeRoom tallies the stored suggestions and votes of an expired room and
// records the outcome. CloseRoom only updates active rooms, so racing a
// client that finalised the room first is harmless.
func (o *Orchestrator) closeRoom(ctx context.Context, roomID uuid.UUID) error {
	room, err := o.repo.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}
	now := o.clock.Now()
	if !room.IsActive {
		log.Debug().Str("room_id", roomID.String()).Msg("room already closed")
		return nil
	}
	if now.Before(room.ExpiresAt) {
		log.Debug().Str("room_id", roomID.String()).Time("expires_at", room.ExpiresAt).Msg("room not due yet")
		return nil
	}

	suggestions, err := o.repo.ListSuggestions(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to list suggestions: %w", err)
	}
	votes, err := o.repo.ListVotes(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to list votes: %w", err)
	}

	byUser := make(map[string]uuid.UUID, len(votes))
	for _, v := range votes {
		byUser[v.UserID] = v.SuggestionID
	}
	result := tally.Tally(suggestions, byUser)
	outcome := tally.NewOutcome(suggestions, result, now)

	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	if err := o.repo.CloseRoom(ctx, roomID, payload); err != nil {
		return fmt.Errorf("failed to close room: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("classification", string(outcome.Classification)).
		Int("total_votes", result.TotalVotes).
		Int("winners", len(result.Winners)).
		Str("instance", o.instanceID).
		Msg("closed expired room")
	return nil
}
