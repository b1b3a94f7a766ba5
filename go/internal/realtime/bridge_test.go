package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/room"
	"github.com/mcdev12/tabletalk/go/internal/room/roomtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeSub) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeSub) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type feedCall struct {
	roomID uuid.UUID
	since  time.Time
	handle func(events.Envelope)
	sub    *fakeSub
}

type fakeFeed struct {
	mu    sync.Mutex
	calls []*feedCall
	err   error

	// backlog is delivered from inside Subscribe, the way a consumer
	// replays stored events before Subscribe returns
	backlog []events.Envelope
}

func (f *fakeFeed) Subscribe(_ context.Context, roomID uuid.UUID, since time.Time, handle func(events.Envelope)) (Subscription, error) {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	c := &feedCall{roomID: roomID, since: since, handle: handle, sub: &fakeSub{}}
	f.calls = append(f.calls, c)
	backlog := f.backlog
	f.mu.Unlock()

	for _, env := range backlog {
		handle(env)
	}
	return c.sub, nil
}

func (f *fakeFeed) last() *feedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type busCall struct {
	roomID uuid.UUID
	handle func(events.Broadcast)
	sub    *fakeSub
}

type fakeBus struct {
	mu    sync.Mutex
	calls []*busCall
	err   error
}

func (b *fakeBus) Subscribe(roomID uuid.UUID, handle func(events.Broadcast)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	c := &busCall{roomID: roomID, handle: handle, sub: &fakeSub{}}
	b.calls = append(b.calls, c)
	return c.sub, nil
}

func (b *fakeBus) last() *busCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.calls) == 0 {
		return nil
	}
	return b.calls[len(b.calls)-1]
}

// recordingSink keeps the name of every Apply call it receives.
type recordingSink struct {
	mu    sync.Mutex
	calls []string
	votes []models.Vote
}

func (s *recordingSink) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *recordingSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.calls...)
}

func (s *recordingSink) ApplyMessage(uuid.UUID, models.Message) { s.record("message") }
func (s *recordingSink) ApplyVote(_ uuid.UUID, v models.Vote) {
	s.mu.Lock()
	s.votes = append(s.votes, v)
	s.mu.Unlock()
	s.record("vote")
}
func (s *recordingSink) ApplyVoteCleared(uuid.UUID, string, uuid.UUID)     { s.record("vote_cleared") }
func (s *recordingSink) ApplySuggestion(uuid.UUID, models.Suggestion)      { s.record("suggestion") }
func (s *recordingSink) ApplyParticipant(uuid.UUID, models.Participant)    { s.record("participant") }
func (s *recordingSink) ApplyRoomClosed(uuid.UUID)                         { s.record("room_closed") }
func (s *recordingSink) ApplyPending(uuid.UUID, models.PendingMessage)     { s.record("pending") }
func (s *recordingSink) ApplyRetract(uuid.UUID, uuid.UUID)                 { s.record("retract") }

func envelope(t *testing.T, roomID uuid.UUID, eventType string, payload any) events.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		RoomID:    roomID.String(),
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}
}

func TestBridgeRoutesChangeEvents(t *testing.T) {
	sink, feed, bus := &recordingSink{}, &fakeFeed{}, &fakeBus{}
	b := NewBridge(sink, "me", feed, bus)
	roomID := uuid.New()
	since := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	require.NoError(t, b.Watch(roomID, since))
	call := feed.last()
	require.NotNil(t, call)
	assert.Equal(t, roomID, call.roomID)
	assert.Equal(t, since, call.since)

	sgID := uuid.New()
	call.handle(envelope(t, roomID, events.EventTypeMessagePosted, events.MessagePayload{ID: uuid.New(), RoomID: roomID, AuthorID: "u2", Text: "hi"}))
	call.handle(envelope(t, roomID, events.EventTypeVoteCast, events.VotePayload{RoomID: roomID, UserID: "u2", SuggestionID: sgID, Reaction: "love"}))
	call.handle(envelope(t, roomID, events.EventTypeVoteCleared, events.VotePayload{RoomID: roomID, UserID: "u2", SuggestionID: sgID, Reaction: "love"}))
	call.handle(envelope(t, roomID, events.EventTypeSuggestionAdded, events.SuggestionPayload{ID: sgID, RoomID: roomID, Name: "Ramen"}))
	call.handle(envelope(t, roomID, events.EventTypeParticipantJoined, events.ParticipantPayload{RoomID: roomID, UserID: "u2"}))
	call.handle(envelope(t, roomID, events.EventTypeRoomClosed, events.RoomPayload{ID: roomID, FoodMode: "both"}))

	assert.Equal(t, []string{"message", "vote", "vote_cleared", "suggestion", "participant", "room_closed"}, sink.Calls())
	assert.Equal(t, models.ReactionLove, sink.votes[0].Reaction)
}

func TestBridgeDropsInvalidEvents(t *testing.T) {
	sink, feed := &recordingSink{}, &fakeFeed{}
	b := NewBridge(sink, "me", feed, nil)
	roomID := uuid.New()
	require.NoError(t, b.Watch(roomID, time.Time{}))
	handle := feed.last().handle

	tcases := []struct {
		name string
		env  events.Envelope
	}{
		{
			name: "unknown reaction",
			env:  envelope(t, roomID, events.EventTypeVoteCast, events.VotePayload{RoomID: roomID, UserID: "u2", Reaction: "meh"}),
		},
		{
			name: "unknown event type",
			env:  envelope(t, roomID, "DraftStarted", map[string]string{}),
		},
		{
			name: "payload for another room",
			env:  envelope(t, roomID, events.EventTypeMessagePosted, events.MessagePayload{ID: uuid.New(), RoomID: uuid.New(), Text: "x"}),
		},
		{
			name: "envelope for another room",
			env:  envelope(t, uuid.New(), events.EventTypeSuggestionAdded, events.SuggestionPayload{ID: uuid.New(), RoomID: roomID}),
		},
		{
			name: "broken payload",
			env:  events.Envelope{EventType: events.EventTypeMessagePosted, RoomID: roomID.String(), Payload: json.RawMessage(`{`)},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			handle(tc.env)
			assert.Empty(t, sink.Calls())
		})
	}
}

func TestBridgeBroadcasts(t *testing.T) {
	sink, bus := &recordingSink{}, &fakeBus{}
	b := NewBridge(sink, "me", nil, bus)
	roomID := uuid.New()
	require.NoError(t, b.Watch(roomID, time.Time{}))
	handle := bus.last().handle

	handle(events.Broadcast{Type: events.BroadcastPending, PendingID: uuid.New(), AuthorID: "me", Text: "own echo"})
	handle(events.Broadcast{Type: events.BroadcastPending, PendingID: uuid.New(), AuthorID: "u2", Text: "hello"})
	handle(events.Broadcast{Type: events.BroadcastRetract, PendingID: uuid.New(), AuthorID: "u2"})
	handle(events.Broadcast{Type: "typing", AuthorID: "u2"})

	assert.Equal(t, []string{"pending", "retract"}, sink.Calls())
}

func TestBridgeSwitchUnsubscribesFirst(t *testing.T) {
	sink, feed, bus := &recordingSink{}, &fakeFeed{}, &fakeBus{}
	b := NewBridge(sink, "me", feed, bus)
	first, second := uuid.New(), uuid.New()

	require.NoError(t, b.Watch(first, time.Time{}))
	oldFeed, oldBus := feed.last(), bus.last()
	require.NoError(t, b.Watch(second, time.Time{}))

	assert.True(t, oldFeed.sub.Stopped())
	assert.True(t, oldBus.sub.Stopped())
	assert.Equal(t, second, b.Watching())

	// late deliveries on the old subscription are keyed to the old room
	oldFeed.handle(envelope(t, first, events.EventTypeSuggestionAdded, events.SuggestionPayload{ID: uuid.New(), RoomID: first}))
	oldBus.handle(events.Broadcast{Type: events.BroadcastPending, PendingID: uuid.New(), AuthorID: "u2"})
	assert.Empty(t, sink.Calls())

	b.Unwatch()
	assert.True(t, feed.last().sub.Stopped())
	assert.True(t, bus.last().sub.Stopped())
	assert.Equal(t, uuid.Nil, b.Watching())
}

func TestBridgeWatchFailure(t *testing.T) {
	feed, bus := &fakeFeed{}, &fakeBus{err: errors.New("nats: connection closed")}
	b := NewBridge(&recordingSink{}, "me", feed, bus)

	err := b.Watch(uuid.New(), time.Time{})
	require.Error(t, err)
	assert.True(t, feed.last().sub.Stopped(), "expected the change subscription to be released")
	assert.Equal(t, uuid.Nil, b.Watching())
}

func TestBridgeDrivesStore(t *testing.T) {
	data := roomtest.NewFakeDataService()
	feed, bus := &fakeFeed{}, &fakeBus{}
	s := room.NewStore(room.DefaultConfig(), room.Deps{
		Data:        data,
		Broadcaster: &roomtest.Broadcasts{},
		Snapshots:   &roomtest.Snapshots{},
		Clock:       clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)),
		Identity:    room.Identity{UserID: "me", Name: "Me"},
	})
	t.Cleanup(s.Close)
	s.SetWatcher(NewBridge(s, s.UserID(), feed, bus))

	r, err := s.CreateRoom(context.Background(), room.CreateRoomRequest{Name: "Lunch", DurationMinutes: 15})
	require.NoError(t, err)
	call := feed.last()
	require.NotNil(t, call)
	assert.Equal(t, r.ID, call.roomID)

	sg := models.Suggestion{ID: uuid.New(), RoomID: r.ID, Name: "Pho", CreatedBy: "u2"}
	data.SeedSuggestion(sg)
	call.handle(envelope(t, r.ID, events.EventTypeSuggestionAdded, events.SuggestionPayload{ID: sg.ID, RoomID: r.ID, Name: "Pho", CreatedBy: "u2"}))
	call.handle(envelope(t, r.ID, events.EventTypeParticipantJoined, events.ParticipantPayload{RoomID: r.ID, UserID: "u2", Name: "Two"}))
	call.handle(envelope(t, r.ID, events.EventTypeVoteCast, events.VotePayload{RoomID: r.ID, UserID: "u2", SuggestionID: sg.ID, Reaction: "like"}))

	v := s.View()
	require.Len(t, v.Suggestions, 1)
	assert.Equal(t, sg.ID, v.Votes["u2"])
	assert.Equal(t, models.ReactionLike, v.Reactions["u2"])
	assert.Len(t, v.Participants, 2)

	s.ResetCurrentRoom()
	assert.True(t, call.sub.Stopped())
	assert.True(t, bus.last().sub.Stopped())
}

func TestBridgeAppliesBacklogDeliveredDuringSubscribe(t *testing.T) {
	roomID := uuid.New()
	sgID := uuid.New()
	sink := &recordingSink{}
	feed := &fakeFeed{backlog: []events.Envelope{
		envelope(t, roomID, events.EventTypeVoteCast, events.VotePayload{RoomID: roomID, UserID: "u2", SuggestionID: sgID, Reaction: "love"}),
		envelope(t, roomID, events.EventTypeMessagePosted, events.MessagePayload{ID: uuid.New(), RoomID: roomID, AuthorID: "u2", Text: "hi"}),
	}}
	b := NewBridge(sink, "me", feed, &fakeBus{})

	require.NoError(t, b.Watch(roomID, time.Now().Add(-time.Minute)))
	assert.Equal(t, []string{"vote", "message"}, sink.Calls())
	assert.Equal(t, roomID, b.Watching())
}

func TestBridgeChangeFeedFailureClearsRoom(t *testing.T) {
	sink := &recordingSink{}
	feed, bus := &fakeFeed{err: errors.New("jetstream: stream not found")}, &fakeBus{}
	b := NewBridge(sink, "me", feed, bus)

	err := b.Watch(uuid.New(), time.Time{})
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, b.Watching())
	assert.Nil(t, bus.last(), "expected no broadcast subscription after the feed failed")
}
