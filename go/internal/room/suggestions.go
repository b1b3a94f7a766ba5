package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/rs/zerolog/log"
)

// AddSuggestion appends a suggestion locally and persists it. The local entry
// is removed again if the data service rejects it.
func (s *Store) AddSuggestion(ctx context.Context, name, emoji, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidSuggestion
	}

	s.mu.Lock()
	roomID, err := s.requireLiveLocked("add suggestion")
	if err != nil {
		s.mu.Unlock()
		return err
	}

	sg := models.Suggestion{
		ID:        uuid.New(),
		RoomID:    roomID,
		Name:      name,
		Emoji:     strings.TrimSpace(emoji),
		CreatedBy: s.identity.UserID,
		CreatedAt: s.clock.Now().UTC(),
	}
	if d := strings.TrimSpace(description); d != "" {
		sg.Description = &d
	}
	s.state.suggestions = append(s.state.suggestions, sg)
	s.touchLocked()
	s.mu.Unlock()
	s.changed()

	if _, err := s.data.CreateSuggestion(ctx, sg); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("suggestion_id", sg.ID.String()).
			Msg("failed to persist suggestion, rolling back")

		s.mu.Lock()
		if s.isCurrentLocked(roomID) {
			s.state.removeSuggestion(sg.ID)
			s.touchLocked()
		}
		s.mu.Unlock()
		s.changed()
		return fmt.Errorf("failed to add suggestion: %w", err)
	}

	log.Debug().
		Str("room_id", roomID.String()).
		Str("suggestion_id", sg.ID.String()).
		Msg("suggestion added")
	return nil
}

func (st *roomState) removeSuggestion(id uuid.UUID) {
	for i, sg := range st.suggestions {
		if sg.ID == id {
			st.suggestions = append(st.suggestions[:i], st.suggestions[i+1:]...)
			return
		}
	}
}
