package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidFoodMode = errors.New("invalid food mode")
	ErrInvalidTab      = errors.New("invalid tab")
)

// FoodMode is a presentation-only theme tag for a room.
type FoodMode string

const (
	FoodModeNone      FoodMode = ""
	FoodModeCooking   FoodMode = "cooking"
	FoodModeDiningOut FoodMode = "dining-out"
	FoodModeBoth      FoodMode = "both"
)

// ParseFoodMode validates a food mode coming from a client or a database row.
func ParseFoodMode(s string) (FoodMode, error) {
	switch FoodMode(s) {
	case FoodModeNone, FoodModeCooking, FoodModeDiningOut, FoodModeBoth:
		return FoodMode(s), nil
	default:
		return FoodModeNone, fmt.Errorf("%w: %q", ErrInvalidFoodMode, s)
	}
}

// RoomPhase is the derived lifecycle phase of the current room.
type RoomPhase string

const (
	RoomPhaseNone      RoomPhase = "none"
	RoomPhaseLive      RoomPhase = "live"
	RoomPhaseExpiring  RoomPhase = "expiring"
	RoomPhaseCompleted RoomPhase = "completed"
)

// Tab is the section of the room a user is looking at.
type Tab string

const (
	TabSuggestions Tab = "suggestions"
	TabChat        Tab = "chat"
	TabVote        Tab = "vote"
	TabResults     Tab = "results"
)

// ParseTab validates a tab name.
func ParseTab(s string) (Tab, error) {
	switch Tab(s) {
	case TabSuggestions, TabChat, TabVote, TabResults:
		return Tab(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTab, s)
	}
}

// Room represents a time-boxed decision session.
type Room struct {
	ID        uuid.UUID       `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	HostID    string          `json:"host_id"`
	FoodMode  FoodMode        `json:"food_mode,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	IsActive  bool            `json:"is_active"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// LiveAt reports whether the room is still open at the given instant.
func (r Room) LiveAt(now time.Time) bool {
	return r.IsActive && now.Before(r.ExpiresAt)
}

// Clone returns a copy that shares no mutable state with r.
func (r Room) Clone() Room {
	out := r
	if r.ClosedAt != nil {
		t := *r.ClosedAt
		out.ClosedAt = &t
	}
	if r.Result != nil {
		out.Result = append(json.RawMessage(nil), r.Result...)
	}
	return out
}
