package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/rs/zerolog/log"
)

// CastVote sets the caller's single vote in the room. The local state changes
// before the remote write; a failed write rolls back to the last confirmed
// vote unless a newer vote has already replaced this one.
func (s *Store) CastVote(ctx context.Context, suggestionID uuid.UUID, reaction models.Reaction) error {
	if _, err := models.ParseReaction(string(reaction)); err != nil {
		return err
	}

	s.mu.Lock()
	roomID, err := s.requireLiveLocked("cast vote")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.state.hasSuggestion(suggestionID) {
		s.mu.Unlock()
		return ErrUnknownSuggestion
	}

	s.state.votes[s.identity.UserID] = suggestionID
	s.state.reactions[s.identity.UserID] = reaction
	s.state.voteSeq++
	s.touchLocked()
	s.mu.Unlock()
	s.changed()

	return s.syncVote(ctx, roomID)
}

// ClearVote removes the caller's vote for suggestionID. Clearing a vote that
// does not exist succeeds without touching the data service.
func (s *Store) ClearVote(ctx context.Context, suggestionID uuid.UUID) error {
	s.mu.Lock()
	roomID, err := s.requireLiveLocked("clear vote")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	current, ok := s.state.votes[s.identity.UserID]
	if !ok || current != suggestionID {
		s.mu.Unlock()
		return nil
	}

	delete(s.state.votes, s.identity.UserID)
	delete(s.state.reactions, s.identity.UserID)
	s.state.voteSeq++
	s.touchLocked()
	s.mu.Unlock()
	s.changed()

	return s.syncVote(ctx, roomID)
}

// syncVote writes the caller's latest local vote intent. Writes are serialised,
// and a write that finds its intent already persisted by a later call returns
// immediately, so the data service always ends on the newest intent no matter
// how the individual calls interleave.
func (s *Store) syncVote(ctx context.Context, roomID uuid.UUID) error {
	s.voteMu.Lock()
	defer s.voteMu.Unlock()

	s.mu.Lock()
	if !s.isCurrentLocked(roomID) {
		s.mu.Unlock()
		return ErrStaleRoom
	}
	seq := s.state.voteSeq
	if s.state.syncedSeq >= seq {
		s.mu.Unlock()
		return nil
	}
	var intent *voteRecord
	if suggestionID, ok := s.state.votes[s.identity.UserID]; ok {
		intent = &voteRecord{SuggestionID: suggestionID, Reaction: s.state.reactions[s.identity.UserID]}
	}
	s.mu.Unlock()

	// the intent replaces whatever the data service holds, so a clear removes
	// the user's row regardless of which suggestion an earlier write left there
	var err error
	if intent != nil {
		err = s.data.UpsertVote(ctx, models.Vote{
			RoomID:       roomID,
			UserID:       s.identity.UserID,
			SuggestionID: intent.SuggestionID,
			Reaction:     intent.Reaction,
			UpdatedAt:    s.clock.Now().UTC(),
		})
	} else {
		err = s.data.DeleteVote(ctx, roomID, s.identity.UserID)
	}

	s.mu.Lock()
	if !s.isCurrentLocked(roomID) {
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to sync vote: %w", err)
		}
		return nil
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("user_id", s.identity.UserID).
			Msg("failed to sync vote")

		rolledBack := false
		if s.state.voteSeq == seq {
			s.restoreConfirmedLocked()
			s.state.syncedSeq = seq
			rolledBack = true
		}
		s.mu.Unlock()
		if rolledBack {
			s.changed()
		}
		return fmt.Errorf("failed to sync vote: %w", err)
	}

	s.state.syncedSeq = seq
	s.state.confirmed = intent
	s.mu.Unlock()
	return nil
}

func (s *Store) restoreConfirmedLocked() {
	userID := s.identity.UserID
	if c := s.state.confirmed; c != nil && s.state.hasSuggestion(c.SuggestionID) {
		s.state.votes[userID] = c.SuggestionID
		s.state.reactions[userID] = c.Reaction
	} else {
		delete(s.state.votes, userID)
		delete(s.state.reactions, userID)
	}
	s.touchLocked()
}
