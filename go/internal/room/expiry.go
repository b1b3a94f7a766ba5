package room

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/tally"
	"github.com/rs/zerolog/log"
)

// HandleExpiry finalises the current room once its time is up or the host
// ends it. Only the first call for an adopted room does any work; later calls
// return nil. If the data service cannot be read the outcome is computed from
// local state instead.
func (s *Store) HandleExpiry(ctx context.Context, roomID uuid.UUID) error {
	s.mu.Lock()
	if !s.isCurrentLocked(roomID) {
		s.mu.Unlock()
		return ErrStaleRoom
	}
	if s.state.expiryStarted {
		s.mu.Unlock()
		log.Debug().Str("room_id", roomID.String()).Msg("expiry already handled")
		return nil
	}
	s.state.expiryStarted = true
	s.stopTimerLocked()
	s.state.phase = models.RoomPhaseExpiring
	s.state.room.IsActive = false

	localSuggestions := append([]models.Suggestion{}, s.state.suggestions...)
	localVotes := make([]models.Vote, 0, len(s.state.votes))
	for userID, suggestionID := range s.state.votes {
		localVotes = append(localVotes, models.Vote{
			RoomID:       roomID,
			UserID:       userID,
			SuggestionID: suggestionID,
			Reaction:     s.state.reactions[userID],
		})
	}
	s.touchLocked()
	s.mu.Unlock()
	s.changed()

	log.Info().Str("room_id", roomID.String()).Msg("reconciling expired room")

	degraded := false
	suggestions := localSuggestions
	remoteSuggestions, err := s.data.ListSuggestions(ctx, roomID)
	if err != nil {
		degraded = true
		log.Warn().Err(err).Str("room_id", roomID.String()).Msg("failed to re-fetch suggestions, using local state")
	} else {
		suggestions = MergeSuggestions(localSuggestions, remoteSuggestions)
	}

	votes := localVotes
	remoteVotes, err := s.data.ListVotes(ctx, roomID)
	if err != nil {
		degraded = true
		log.Warn().Err(err).Str("room_id", roomID.String()).Msg("failed to re-fetch votes, using local state")
	} else {
		votes = validVotes(roomID, remoteVotes)
	}

	byUser, reactions := voteMaps(votes)
	result := tally.Tally(suggestions, byUser)
	outcome := tally.NewOutcome(suggestions, result, s.clock.Now())
	outcome.Degraded = degraded

	payload, err := json.Marshal(outcome)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to marshal room outcome")
	} else if err := s.data.CloseRoom(ctx, roomID, payload); err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to persist room close, keeping local result")
	}

	s.mu.Lock()
	if !s.isCurrentLocked(roomID) {
		s.mu.Unlock()
		log.Debug().Str("room_id", roomID.String()).Msg("room changed during reconciliation, discarding result")
		return nil
	}
	st := s.state
	st.suggestions = suggestions
	st.votes = byUser
	st.reactions = reactions
	st.outcome = &outcome
	st.phase = models.RoomPhaseCompleted
	st.viewingCompleted = true
	st.room.IsActive = false
	if st.room.ClosedAt == nil {
		closedAt := s.clock.Now().UTC()
		st.room.ClosedAt = &closedAt
	}
	if payload != nil {
		st.room.Result = payload
	}
	for id, p := range st.pending {
		if p.AuthorID != s.identity.UserID {
			delete(st.pending, id)
		}
	}
	s.touchLocked()
	s.mu.Unlock()
	s.changed()

	log.Info().
		Str("room_id", roomID.String()).
		Str("classification", string(outcome.Classification)).
		Int("total_votes", result.TotalVotes).
		Int("winners", len(result.Winners)).
		Bool("degraded", degraded).
		Msg("room finalised")
	return nil
}
