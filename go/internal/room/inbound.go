package room

import (
	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/rs/zerolog/log"
)

// The Apply methods fold realtime events into the store. Each takes the room
// id the subscription was opened for and does nothing if that room is no
// longer current.

// ApplyMessage adds a stored message and clears the author's pending entries.
func (s *Store) ApplyMessage(roomID uuid.UUID, m models.Message) {
	s.mu.Lock()
	if !s.isCurrentLocked(roomID) || m.RoomID != roomID {
		s.mu.Unlock()
		return
	}
	for id, p := range s.state.pending {
		if p.AuthorID == m.AuthorID && (p.AuthorID != s.identity.UserID || p.Text == m.Text) {
			delete(s.state.pending, id)
		}
	}
	s.state.insertMessage(m)
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
}

// ApplyVote records another participant's vote. The caller's own echoes are
// only applied when no local vote change is waiting to be written.
func (s *Store) ApplyVote(roomID uuid.UUID, v models.Vote) {
	if _, err := models.ParseReaction(string(v.Reaction)); err != nil {
		log.Warn().Err(err).Str("room_id", roomID.String()).Msg("ignoring vote event")
		return
	}

	s.mu.Lock()
	if !s.isCurrentLocked(roomID) || v.RoomID != roomID || s.state.phase == models.RoomPhaseCompleted {
		s.mu.Unlock()
		return
	}
	if v.UserID == s.identity.UserID {
		if s.state.syncedSeq != s.state.voteSeq {
			s.mu.Unlock()
			return
		}
		s.state.confirmed = &voteRecord{SuggestionID: v.SuggestionID, Reaction: v.Reaction}
	}
	s.state.votes[v.UserID] = v.SuggestionID
	s.state.reactions[v.UserID] = v.Reaction
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
}

// ApplyVoteCleared removes a participant's vote if it still points at
// suggestionID.
func (s *Store) ApplyVoteCleared(roomID uuid.UUID, userID string, suggestionID uuid.UUID) {
	s.mu.Lock()
	if !s.isCurrentLocked(roomID) || s.state.phase == models.RoomPhaseCompleted {
		s.mu.Unlock()
		return
	}
	if userID == s.identity.UserID && s.state.syncedSeq != s.state.voteSeq {
		s.mu.Unlock()
		return
	}
	if current, ok := s.state.votes[userID]; !ok || current != suggestionID {
		s.mu.Unlock()
		return
	}
	if userID == s.identity.UserID {
		s.state.confirmed = nil
	}
	delete(s.state.votes, userID)
	delete(s.state.reactions, userID)
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
}

// ApplySuggestion adds a suggestion created by anyone, including the
// durable echo of an optimistic one.
func (s *Store) ApplySuggestion(roomID uuid.UUID, sg models.Suggestion) {
	s.mu.Lock()
	if !s.isCurrentLocked(roomID) || sg.RoomID != roomID || s.state.phase == models.RoomPhaseCompleted {
		s.mu.Unlock()
		return
	}
	for i, existing := range s.state.suggestions {
		if existing.ID == sg.ID {
			s.state.suggestions[i] = sg
			s.touchLocked()
			s.mu.Unlock()
			s.changed()
			return
		}
	}
	s.state.suggestions = append(s.state.suggestions, sg)
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
}

// ApplyParticipant adds a participant to the roster.
func (s *Store) ApplyParticipant(roomID uuid.UUID, p models.Participant) {
	s.mu.Lock()
	if !s.isCurrentLocked(roomID) || p.RoomID != roomID || s.state.hasParticipant(p.UserID) {
		s.mu.Unlock()
		return
	}
	s.state.participants = append(s.state.participants, p)
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
}

// ApplyRoomClosed reacts to the room being closed elsewhere, by the host or
// by the expiry sweeper.
func (s *Store) ApplyRoomClosed(roomID uuid.UUID) {
	if s.CurrentRoomID() != roomID {
		return
	}
	go func() {
		if err := s.HandleExpiry(s.ctx, roomID); err != nil {
			log.Debug().Err(err).Str("room_id", roomID.String()).Msg("room closed event ignored")
		}
	}()
}

// ApplyPending shows another participant's in-flight message.
func (s *Store) ApplyPending(roomID uuid.UUID, p models.PendingMessage) {
	if p.AuthorID == s.identity.UserID {
		return
	}
	s.mu.Lock()
	if !s.isCurrentLocked(roomID) || s.state.phase != models.RoomPhaseLive {
		s.mu.Unlock()
		return
	}
	p.RoomID = roomID
	s.state.pending[p.ID] = p
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
}

// ApplyRetract drops a pending message whose send failed.
func (s *Store) ApplyRetract(roomID uuid.UUID, pendingID uuid.UUID) {
	s.mu.Lock()
	if !s.isCurrentLocked(roomID) {
		s.mu.Unlock()
		return
	}
	p, ok := s.state.pending[pendingID]
	if !ok || p.AuthorID == s.identity.UserID {
		s.mu.Unlock()
		return
	}
	delete(s.state.pending, pendingID)
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
}
