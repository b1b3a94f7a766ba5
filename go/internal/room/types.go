package room

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/tally"
)

// DataService defines what the room store needs from the backing data service.
type DataService interface {
	CreateRoom(ctx context.Context, req CreateRoomParams) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	AddParticipant(ctx context.Context, p models.Participant) error
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
	ListSuggestions(ctx context.Context, roomID uuid.UUID) ([]models.Suggestion, error)
	CreateSuggestion(ctx context.Context, s models.Suggestion) (*models.Suggestion, error)
	ListVotes(ctx context.Context, roomID uuid.UUID) ([]models.Vote, error)
	UpsertVote(ctx context.Context, v models.Vote) error
	DeleteVote(ctx context.Context, roomID uuid.UUID, userID string) error
	ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error)
	CreateMessage(ctx context.Context, m models.Message) (*models.Message, error)
	CloseRoom(ctx context.Context, roomID uuid.UUID, result []byte) error
}

// Broadcaster publishes ephemeral events to the other clients in a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID uuid.UUID, b events.Broadcast) error
}

// RoomWatcher follows the realtime events of the current room.
type RoomWatcher interface {
	Watch(roomID uuid.UUID, since time.Time) error
	Unwatch()
}

// SnapshotStore persists the resumable slice of a session. Load returns nil
// and no error when nothing was saved.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

// Snapshot is the resume hint saved across reloads. It is never trusted
// without re-validating the room.
type Snapshot struct {
	ActiveTab        models.Tab   `json:"active_tab,omitempty"`
	Room             *models.Room `json:"room,omitempty"`
	ViewingCompleted bool         `json:"viewing_completed"`
	SavedAt          time.Time    `json:"saved_at"`
}

// CreateRoomParams is what the data service needs to insert a room and its host.
type CreateRoomParams struct {
	Code      string
	Name      string
	FoodMode  models.FoodMode
	CreatedAt time.Time
	ExpiresAt time.Time
	Host      models.Participant
}

// CreateRoomRequest represents a request to create a new room
type CreateRoomRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	FoodMode        string `json:"food_mode"`
}

// Identity is the authenticated user behind a store.
type Identity struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Config holds the limits a store enforces.
type Config struct {
	CodeLength          int           `yaml:"code_length"`
	MaxDurationMinutes  int           `yaml:"max_duration_minutes"`
	MaxMessageLength    int           `yaml:"message_max_length"`
	MessageHistoryLimit int           `yaml:"message_history_limit"`
	TickInterval        time.Duration `yaml:"tick_interval"`
}

// DefaultConfig returns the default store limits.
func DefaultConfig() Config {
	return Config{
		CodeLength:          6,
		MaxDurationMinutes:  24 * 60,
		MaxMessageLength:    500,
		MessageHistoryLimit: 200,
		TickInterval:        time.Second,
	}
}

// Deps are the collaborators a store is built from.
type Deps struct {
	Data        DataService
	Broadcaster Broadcaster
	Snapshots   SnapshotStore
	Watcher     RoomWatcher
	Clock       clockwork.Clock
	Identity    Identity

	// OnChange receives a fresh view after every state change.
	OnChange func(View)
	// OnTick receives the countdown while the room is live.
	OnTick func(Tick)
}

// Tick is a countdown sample for the current room.
type Tick struct {
	RoomID           uuid.UUID `json:"room_id"`
	RemainingSeconds int       `json:"remaining_seconds"`
	PercentRemaining float64   `json:"percent_remaining"`
}

// View is a consistent copy of the store state for presentation.
type View struct {
	Version          uint64                     `json:"version"`
	UserID           string                     `json:"user_id"`
	Phase            models.RoomPhase           `json:"phase"`
	Room             *models.Room               `json:"room,omitempty"`
	Participants     []models.Participant       `json:"participants"`
	Suggestions      []models.Suggestion        `json:"suggestions"`
	Messages         []models.Message           `json:"messages"`
	Pending          []models.PendingMessage    `json:"pending"`
	Votes            map[string]uuid.UUID       `json:"votes"`
	Reactions        map[string]models.Reaction `json:"reactions"`
	MyVote           *uuid.UUID                 `json:"my_vote,omitempty"`
	Tally            tally.Result               `json:"tally"`
	Outcome          *tally.Outcome             `json:"outcome,omitempty"`
	RemainingSeconds int                        `json:"remaining_seconds"`
	PercentRemaining float64                    `json:"percent_remaining"`
	AllVoted         bool                       `json:"all_voted"`
	ViewingCompleted bool                       `json:"viewing_completed"`
	ActiveTab        models.Tab                 `json:"active_tab,omitempty"`
}
