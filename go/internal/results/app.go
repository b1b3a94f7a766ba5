// Package results serves the read-only outcome of a room over connect. Share
// links use it without opening a session.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/roomtimer"
	"github.com/mcdev12/tabletalk/go/internal/tally"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingRoomRef = errors.New("room_id or code is required")
	ErrInvalidRoomID  = errors.New("invalid room_id")
)

// ResultsRepository defines what the app layer needs from the data service
type ResultsRepository interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
	ListSuggestions(ctx context.Context, roomID uuid.UUID) ([]models.Suggestion, error)
	ListVotes(ctx context.Context, roomID uuid.UUID) ([]models.Vote, error)
}

// App derives room results from stored state
type App struct {
	repo  ResultsRepository
	clock clockwork.Clock
}

// NewApp creates a new results App
func NewApp(repo ResultsRepository, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:  repo,
		clock: clock,
	}
}

// GetRoomResult returns the live tally of an open room or the outcome of a
// finished one. A room that has expired but was not closed yet gets an
// outcome computed from what is stored now.
func (a *App) GetRoomResult(ctx context.Context, req GetRoomResultRequest) (*GetRoomResultResponse, error) {
	r, err := a.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	suggestions, err := a.repo.ListSuggestions(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	votes, err := a.repo.ListVotes(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	participants, err := a.repo.ListParticipants(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	byUser := make(map[string]uuid.UUID, len(votes))
	for _, v := range votes {
		byUser[v.UserID] = v.SuggestionID
	}
	live := tally.Tally(suggestions, byUser)

	resp := &GetRoomResultResponse{
		Room:             r,
		Suggestions:      suggestions,
		Tally:            live,
		ParticipantCount: len(participants),
	}

	now := a.clock.Now()
	if r.LiveAt(now) {
		resp.Status = StatusLive
		resp.RemainingSeconds = roomtimer.New(a.clock, r.CreatedAt, r.ExpiresAt).RemainingSeconds()
		return resp, nil
	}

	resp.Status = StatusCompleted
	resp.Outcome = storedOutcome(r)
	if resp.Outcome == nil {
		decidedAt := r.ExpiresAt
		if r.ClosedAt != nil {
			decidedAt = *r.ClosedAt
		}
		out := tally.NewOutcome(suggestions, live, decidedAt)
		resp.Outcome = &out
	} else {
		resp.Tally = resp.Outcome.Tally
	}
	return resp, nil
}

// ListRoomParticipants returns the roster of a room
func (a *App) ListRoomParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	if _, err := a.repo.GetRoom(ctx, roomID); err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	participants, err := a.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

func (a *App) resolve(ctx context.Context, req GetRoomResultRequest) (*models.Room, error) {
	if id := strings.TrimSpace(req.RoomID); id != "" {
		roomID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRoomID, err)
		}
		r, err := a.repo.GetRoom(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("failed to get room: %w", err)
		}
		return r, nil
	}
	if code := strings.ToUpper(strings.TrimSpace(req.Code)); code != "" {
		r, err := a.repo.GetRoomByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to get room by code: %w", err)
		}
		return r, nil
	}
	return nil, ErrMissingRoomRef
}

func storedOutcome(r *models.Room) *tally.Outcome {
	if len(r.Result) == 0 {
		return nil
	}
	var out tally.Outcome
	if err := json.Unmarshal(r.Result, &out); err != nil {
		log.Warn().Err(err).Str("room_id", r.ID.String()).Msg("stored room result is unreadable, recomputing")
		return nil
	}
	return &out
}
