package results

import (
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/tally"
)

// Room status values reported to share links.
const (
	StatusLive      = "live"
	StatusCompleted = "completed"
)

// GetRoomResultRequest names a room by id or by join code.
type GetRoomResultRequest struct {
	RoomID string `json:"room_id,omitempty"`
	Code   string `json:"code,omitempty"`
}

// GetRoomResultResponse is the read-only result view of a room.
type GetRoomResultResponse struct {
	Room             *models.Room        `json:"room"`
	Status           string              `json:"status"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Suggestions      []models.Suggestion `json:"suggestions"`
	Tally            tally.Result        `json:"tally"`
	Outcome          *tally.Outcome      `json:"outcome,omitempty"`
	ParticipantCount int                 `json:"participant_count"`
}

type ListRoomParticipantsRequest struct {
	RoomID string `json:"room_id"`
}

type ListRoomParticipantsResponse struct {
	Participants []models.Participant `json:"participants"`
}
