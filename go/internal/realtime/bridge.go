// Package realtime connects a room store to the durable change stream and the
// ephemeral broadcast channel of the room it is showing.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Sink receives decoded room events. *room.Store implements it.
type Sink interface {
	ApplyMessage(roomID uuid.UUID, m models.Message)
	ApplyVote(roomID uuid.UUID, v models.Vote)
	ApplyVoteCleared(roomID uuid.UUID, userID string, suggestionID uuid.UUID)
	ApplySuggestion(roomID uuid.UUID, sg models.Suggestion)
	ApplyParticipant(roomID uuid.UUID, p models.Participant)
	ApplyRoomClosed(roomID uuid.UUID)
	ApplyPending(roomID uuid.UUID, p models.PendingMessage)
	ApplyRetract(roomID uuid.UUID, pendingID uuid.UUID)
}

// Subscription is an open feed that can be stopped.
type Subscription interface {
	Stop()
}

// ChangeFeed delivers the durable change events of one room, replaying from
// since.
type ChangeFeed interface {
	Subscribe(ctx context.Context, roomID uuid.UUID, since time.Time, handle func(events.Envelope)) (Subscription, error)
}

// BroadcastBus delivers the ephemeral broadcasts of one room.
type BroadcastBus interface {
	Subscribe(roomID uuid.UUID, handle func(events.Broadcast)) (Subscription, error)
}

// Bridge follows at most one room at a time on behalf of one user.
type Bridge struct {
	sink    Sink
	userID  string
	changes ChangeFeed
	bus     BroadcastBus

	mu     sync.Mutex
	roomID uuid.UUID
	cancel context.CancelFunc
	subs   []Subscription
}

func NewBridge(sink Sink, userID string, changes ChangeFeed, bus BroadcastBus) *Bridge {
	return &Bridge{
		sink:    sink,
		userID:  userID,
		changes: changes,
		bus:     bus,
	}
}

// Watch subscribes to roomID, dropping any previous subscription first.
func (b *Bridge) Watch(roomID uuid.UUID, since time.Time) error {
	b.Unwatch()

	ctx, cancel := context.WithCancel(context.Background())

	// the feed replays its backlog as soon as it is subscribed, so the room
	// must already be current when the first event lands
	b.mu.Lock()
	b.roomID = roomID
	b.cancel = cancel
	b.mu.Unlock()

	var subs []Subscription
	fail := func(err error) error {
		for _, s := range subs {
			s.Stop()
		}
		b.mu.Lock()
		if b.roomID == roomID {
			b.roomID, b.cancel = uuid.Nil, nil
		}
		b.mu.Unlock()
		cancel()
		return err
	}

	if b.changes != nil {
		sub, err := b.changes.Subscribe(ctx, roomID, since, func(env events.Envelope) {
			b.handleChange(roomID, env)
		})
		if err != nil {
			return fail(fmt.Errorf("failed to subscribe to room changes: %w", err))
		}
		subs = append(subs, sub)
	}

	if b.bus != nil {
		sub, err := b.bus.Subscribe(roomID, func(bc events.Broadcast) {
			b.handleBroadcast(roomID, bc)
		})
		if err != nil {
			return fail(fmt.Errorf("failed to subscribe to room broadcasts: %w", err))
		}
		subs = append(subs, sub)
	}

	b.mu.Lock()
	if b.roomID != roomID {
		// unwatched while subscribing
		b.mu.Unlock()
		for _, s := range subs {
			s.Stop()
		}
		cancel()
		return nil
	}
	b.subs = subs
	b.mu.Unlock()

	log.Debug().
		Str("room_id", roomID.String()).
		Str("user_id", b.userID).
		Time("since", since).
		Msg("watching room")
	return nil
}

// Unwatch stops every subscription of the current room.
func (b *Bridge) Unwatch() {
	b.mu.Lock()
	subs, cancel, roomID := b.subs, b.cancel, b.roomID
	b.subs, b.cancel, b.roomID = nil, nil, uuid.Nil
	b.mu.Unlock()

	for _, s := range subs {
		s.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if roomID != uuid.Nil {
		log.Debug().Str("room_id", roomID.String()).Str("user_id", b.userID).Msg("stopped watching room")
	}
}

// Watching returns the room being followed, or uuid.Nil.
func (b *Bridge) Watching() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roomID
}

func (b *Bridge) current(roomID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roomID == roomID
}

func (b *Bridge) handleChange(roomID uuid.UUID, env events.Envelope) {
	if !b.current(roomID) {
		return
	}
	ev, err := Decode(env)
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_id", roomID.String()).
			Str("event_type", env.EventType).
			Str("event_id", env.EventID).
			Msg("dropping malformed change event")
		return
	}
	if ev.RoomID != roomID {
		return
	}

	switch {
	case ev.Message != nil:
		b.sink.ApplyMessage(roomID, *ev.Message)
	case ev.Vote != nil && env.EventType == events.EventTypeVoteCleared:
		b.sink.ApplyVoteCleared(roomID, ev.Vote.UserID, ev.Vote.SuggestionID)
	case ev.Vote != nil:
		b.sink.ApplyVote(roomID, *ev.Vote)
	case ev.Suggestion != nil:
		b.sink.ApplySuggestion(roomID, *ev.Suggestion)
	case ev.Participant != nil:
		b.sink.ApplyParticipant(roomID, *ev.Participant)
	case ev.RoomClosed:
		b.sink.ApplyRoomClosed(roomID)
	}
}

func (b *Bridge) handleBroadcast(roomID uuid.UUID, bc events.Broadcast) {
	if !b.current(roomID) || bc.AuthorID == b.userID {
		return
	}

	switch bc.Type {
	case events.BroadcastPending:
		b.sink.ApplyPending(roomID, models.PendingMessage{
			ID:         bc.PendingID,
			RoomID:     roomID,
			AuthorID:   bc.AuthorID,
			AuthorName: bc.AuthorName,
			Text:       bc.Text,
			SentAt:     bc.SentAt,
		})
	case events.BroadcastRetract:
		b.sink.ApplyRetract(roomID, bc.PendingID)
	default:
		log.Debug().Str("room_id", roomID.String()).Str("type", bc.Type).Msg("ignoring unknown broadcast")
	}
}
