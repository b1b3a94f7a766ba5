package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/realtime"
	"github.com/mcdev12/tabletalk/go/internal/room"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPayload = errors.New("invalid command payload")
)

// Backend holds the shared services every session is built from.
type Backend struct {
	Data        room.DataService
	Broadcaster room.Broadcaster
	Changes     realtime.ChangeFeed
	Bus         realtime.BroadcastBus
	// Snapshots returns the resume store for a user. Nil disables resume.
	Snapshots func(userID string) room.SnapshotStore
	Clock     clockwork.Clock
	Room      room.Config
}

// Session is one client's view of TableTalk: a room store plus the bridge
// that keeps it in sync with the room it shows.
type Session struct {
	identity room.Identity
	store    *room.Store
	bridge   *realtime.Bridge
}

// NewSession builds a session whose state and tick frames go to push.
func NewSession(backend Backend, identity room.Identity, push func(any)) *Session {
	deps := room.Deps{
		Data:        backend.Data,
		Broadcaster: backend.Broadcaster,
		Clock:       backend.Clock,
		Identity:    identity,
		OnChange: func(v room.View) {
			push(StateFrame{Type: FrameState, State: v})
		},
		OnTick: func(t room.Tick) {
			push(TickFrame{Type: FrameTick, Tick: t})
		},
	}
	if backend.Snapshots != nil {
		deps.Snapshots = backend.Snapshots(identity.UserID)
	}

	store := room.NewStore(backend.Room, deps)
	bridge := realtime.NewBridge(store, identity.UserID, backend.Changes, backend.Bus)
	store.SetWatcher(bridge)

	return &Session{
		identity: identity,
		store:    store,
		bridge:   bridge,
	}
}

// View returns the session's current state.
func (s *Session) View() room.View {
	return s.store.View()
}

// Close stops the timer and every subscription of the session.
func (s *Session) Close() {
	s.store.Close()
	s.bridge.Unwatch()
}

// Handle runs one command and returns the data for its ack.
func (s *Session) Handle(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Type {
	case CommandCreateRoom:
		var req room.CreateRoomRequest
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return s.store.CreateRoom(ctx, req)

	case CommandJoinRoom:
		var req joinRoomData
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		if err := s.store.JoinRoom(ctx, req.Code); err != nil {
			return nil, err
		}
		return s.store.View(), nil

	case CommandResume:
		if err := s.store.Resume(ctx); err != nil {
			return nil, err
		}
		return s.store.View(), nil

	case CommandAddSuggestion:
		var req addSuggestionData
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return nil, s.store.AddSuggestion(ctx, req.Name, req.Emoji, req.Description)

	case CommandCastVote:
		var req voteData
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		id, err := parseSuggestionID(req.SuggestionID)
		if err != nil {
			return nil, err
		}
		reaction, err := models.ParseReaction(req.Reaction)
		if err != nil {
			return nil, err
		}
		return nil, s.store.CastVote(ctx, id, reaction)

	case CommandClearVote:
		var req voteData
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		id, err := parseSuggestionID(req.SuggestionID)
		if err != nil {
			return nil, err
		}
		return nil, s.store.ClearVote(ctx, id)

	case CommandSendMessage:
		var req sendMessageData
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return nil, s.store.SendMessage(ctx, req.Text)

	case CommandEndRoom:
		return nil, s.store.EndRoom(ctx)

	case CommandLeaveRoom:
		s.store.ResetCurrentRoom()
		return nil, nil

	case CommandSetTab:
		var req setTabData
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		tab, err := models.ParseTab(req.Tab)
		if err != nil {
			return nil, err
		}
		return nil, s.store.SetActiveTab(tab)

	case CommandGetState:
		return s.store.View(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func parseSuggestionID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid suggestion_id", ErrInvalidPayload)
	}
	return id, nil
}
