package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/rs/zerolog/log"
)

const maxCodeAttempts = 5

// CreateRoom creates a room with the caller as host and makes it current.
func (s *Store) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if s.identity.UserID == "" {
		return nil, ErrNoUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidRoomName
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > s.cfg.MaxDurationMinutes {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, req.DurationMinutes)
	}
	foodMode, err := models.ParseFoodMode(req.FoodMode)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	host := models.Participant{
		UserID:    s.identity.UserID,
		Name:      s.identity.Name,
		AvatarURL: s.identity.AvatarURL,
		IsHost:    true,
		JoinedAt:  now,
	}

	var created *models.Room
	for attempt := 1; ; attempt++ {
		code, err := generateCode(s.cfg.CodeLength)
		if err != nil {
			return nil, err
		}
		created, err = s.data.CreateRoom(ctx, CreateRoomParams{
			Code:      code,
			Name:      name,
			FoodMode:  foodMode,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(req.DurationMinutes) * time.Minute),
			Host:      host,
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateCode) && attempt < maxCodeAttempts {
			log.Warn().Str("code", code).Int("attempt", attempt).Msg("room code collision, retrying")
			continue
		}
		log.Error().Err(err).Str("user_id", s.identity.UserID).Msg("failed to create room")
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	host.RoomID = created.ID
	s.adopt(created, []models.Participant{host}, nil, nil, nil)

	log.Info().
		Str("room_id", created.ID.String()).
		Str("code", created.Code).
		Int("duration_minutes", req.DurationMinutes).
		Msg("created room")

	r := created.Clone()
	return &r, nil
}

// JoinRoom resolves a room by code or id, joins it and makes it current.
// Rejoining is a no-op on the participant list. A room that has already
// expired is adopted as inactive and reconciled before JoinRoom returns.
func (s *Store) JoinRoom(ctx context.Context, codeOrID string) error {
	if s.identity.UserID == "" {
		return ErrNoUser
	}

	room, err := s.resolveRoom(ctx, codeOrID)
	if err != nil {
		log.Error().Err(err).Str("room", codeOrID).Msg("failed to resolve room")
		return err
	}

	now := s.clock.Now()
	if room.LiveAt(now) {
		err = s.data.AddParticipant(ctx, models.Participant{
			RoomID:    room.ID,
			UserID:    s.identity.UserID,
			Name:      s.identity.Name,
			AvatarURL: s.identity.AvatarURL,
			JoinedAt:  now.UTC(),
		})
		if err != nil {
			log.Error().Err(err).Str("room_id", room.ID.String()).Msg("failed to add participant")
			return fmt.Errorf("failed to join room: %w", err)
		}
	}

	participants, err := s.data.ListParticipants(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to list participants: %w", err)
	}
	suggestions, err := s.data.ListSuggestions(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to list suggestions: %w", err)
	}
	votes, err := s.data.ListVotes(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to list votes: %w", err)
	}
	messages, err := s.data.ListMessages(ctx, room.ID, s.cfg.MessageHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	s.adopt(room, participants, suggestions, validVotes(room.ID, votes), messages)

	if !room.LiveAt(now) {
		log.Info().
			Str("room_id", room.ID.String()).
			Time("expires_at", room.ExpiresAt).
			Msg("joined room that has already ended")
		if err := s.HandleExpiry(ctx, room.ID); err != nil {
			log.Debug().Err(err).Str("room_id", room.ID.String()).Msg("expiry on join ignored")
		}
	}
	return nil
}

// EndRoom lets the host close the room before its timer runs out.
func (s *Store) EndRoom(ctx context.Context) error {
	s.mu.Lock()
	roomID, err := s.requireLiveLocked("end room")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state.room.HostID != s.identity.UserID {
		s.mu.Unlock()
		return ErrNotHost
	}
	s.mu.Unlock()

	log.Info().Str("room_id", roomID.String()).Msg("host ended room")
	return s.HandleExpiry(ctx, roomID)
}

func (s *Store) resolveRoom(ctx context.Context, codeOrID string) (*models.Room, error) {
	if id, err := uuid.Parse(strings.TrimSpace(codeOrID)); err == nil {
		return s.data.GetRoom(ctx, id)
	}
	code := normalizeCode(codeOrID)
	if len(code) != s.cfg.CodeLength {
		return nil, fmt.Errorf("%w: malformed code %q", ErrRoomNotFound, codeOrID)
	}
	return s.data.GetRoomByCode(ctx, code)
}

// validVotes drops rows with a reaction outside the known set.
func validVotes(roomID uuid.UUID, votes []models.Vote) []models.Vote {
	out := votes[:0:0]
	for _, v := range votes {
		if _, err := models.ParseReaction(string(v.Reaction)); err != nil {
			log.Warn().
				Str("room_id", roomID.String()).
				Str("user_id", v.UserID).
				Str("reaction", string(v.Reaction)).
				Msg("dropping vote with unknown reaction")
			continue
		}
		out = append(out, v)
	}
	return out
}
