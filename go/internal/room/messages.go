package room

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/rs/zerolog/log"
)

const broadcastTimeout = 2 * time.Second

// SendMessage posts a chat message. Other clients see it as pending straight
// away; if the data service rejects it the pending entry is retracted.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, s.cfg.MaxMessageLength)
	}

	s.mu.Lock()
	roomID, err := s.requireLiveLocked("send message")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	now := s.clock.Now().UTC()
	pending := models.PendingMessage{
		ID:         uuid.New(),
		RoomID:     roomID,
		AuthorID:   s.identity.UserID,
		AuthorName: s.identity.Name,
		Text:       text,
		SentAt:     now,
	}
	s.state.pending[pending.ID] = pending
	s.touchLocked()
	s.mu.Unlock()
	s.changed()

	s.broadcast(roomID, events.Broadcast{
		Type:       events.BroadcastPending,
		PendingID:  pending.ID,
		AuthorID:   pending.AuthorID,
		AuthorName: pending.AuthorName,
		Text:       pending.Text,
		SentAt:     pending.SentAt,
	})

	msg, err := s.data.CreateMessage(ctx, models.Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		AuthorID:   s.identity.UserID,
		AuthorName: s.identity.Name,
		Text:       text,
		Timestamp:  now,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("pending_id", pending.ID.String()).
			Msg("failed to persist message, retracting")

		s.mu.Lock()
		if s.isCurrentLocked(roomID) {
			delete(s.state.pending, pending.ID)
			s.touchLocked()
		}
		s.mu.Unlock()
		s.changed()

		s.broadcast(roomID, events.Broadcast{
			Type:      events.BroadcastRetract,
			PendingID: pending.ID,
			AuthorID:  pending.AuthorID,
			SentAt:    s.clock.Now().UTC(),
		})
		return fmt.Errorf("failed to send message: %w", err)
	}

	s.mu.Lock()
	if s.isCurrentLocked(roomID) {
		delete(s.state.pending, pending.ID)
		s.state.insertMessage(*msg)
		s.touchLocked()
	}
	s.mu.Unlock()
	s.changed()
	return nil
}

// broadcast is best effort; a lost pending indicator is harmless.
func (s *Store) broadcast(roomID uuid.UUID, b events.Broadcast) {
	if s.broadcaster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, broadcastTimeout)
	defer cancel()
	if err := s.broadcaster.Broadcast(ctx, roomID, b); err != nil {
		log.Warn().
			Err(err).
			Str("room_id", roomID.String()).
			Str("type", b.Type).
			Msg("failed to broadcast")
	}
}
