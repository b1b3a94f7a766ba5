package room_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/room"
	"github.com/mcdev12/tabletalk/go/internal/room/roomtest"
	"github.com/mcdev12/tabletalk/go/internal/tally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

const (
	testWait = 2 * time.Second
	testPoll = 10 * time.Millisecond
)

type harness struct {
	data       *roomtest.FakeDataService
	clock      *clockwork.FakeClock
	broadcasts *roomtest.Broadcasts
	snapshots  *roomtest.Snapshots
	watcher    *roomtest.Watcher
}

func newHarness() *harness {
	return &harness{
		data:       roomtest.NewFakeDataService(),
		clock:      clockwork.NewFakeClockAt(testNow),
		broadcasts: &roomtest.Broadcasts{},
		snapshots:  &roomtest.Snapshots{},
		watcher:    &roomtest.Watcher{},
	}
}

func (h *harness) store(t *testing.T, userID string) *room.Store {
	t.Helper()
	s := room.NewStore(room.DefaultConfig(), room.Deps{
		Data:        h.data,
		Broadcaster: h.broadcasts,
		Snapshots:   h.snapshots,
		Watcher:     h.watcher,
		Clock:       h.clock,
		Identity:    room.Identity{UserID: userID, Name: strings.ToUpper(userID)},
	})
	t.Cleanup(s.Close)
	return s
}

func (h *harness) createRoom(t *testing.T, s *room.Store) *models.Room {
	t.Helper()
	r, err := s.CreateRoom(context.Background(), room.CreateRoomRequest{
		Name:            "Friday dinner",
		DurationMinutes: 30,
		FoodMode:        "dining-out",
	})
	require.NoError(t, err)
	return r
}

func (h *harness) seedSuggestion(roomID uuid.UUID, name string) models.Suggestion {
	sg := models.Suggestion{
		ID:        uuid.New(),
		RoomID:    roomID,
		Name:      name,
		CreatedBy: "someone",
		CreatedAt: testNow,
	}
	h.data.SeedSuggestion(sg)
	return sg
}

func TestCreateRoom(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")

	r := h.createRoom(t, s)

	assert.Len(t, r.Code, 6, "expected a six character code")
	assert.Equal(t, "host", r.HostID)
	assert.Equal(t, models.FoodModeDiningOut, r.FoodMode)
	assert.Equal(t, testNow.Add(30*time.Minute), r.ExpiresAt)

	v := s.View()
	assert.Equal(t, models.RoomPhaseLive, v.Phase)
	require.NotNil(t, v.Room)
	assert.Equal(t, r.ID, v.Room.ID)
	require.Len(t, v.Participants, 1)
	assert.True(t, v.Participants[0].IsHost, "expected creator to be host")
	assert.Equal(t, 1800, v.RemainingSeconds)
	assert.Equal(t, r.ID, h.watcher.Active(), "expected the new room to be watched")

	snap := h.snapshots.Current()
	require.NotNil(t, snap, "expected a session snapshot to be saved")
	assert.Equal(t, r.ID, snap.Room.ID)
}

func TestCreateRoomValidation(t *testing.T) {
	tcases := []struct {
		name string
		user string
		req  room.CreateRoomRequest
		want error
	}{
		{
			name: "no user",
			user: "",
			req:  room.CreateRoomRequest{Name: "x", DurationMinutes: 10},
			want: room.ErrNoUser,
		},
		{
			name: "blank name",
			user: "u1",
			req:  room.CreateRoomRequest{Name: "   ", DurationMinutes: 10},
			want: room.ErrInvalidRoomName,
		},
		{
			name: "zero duration",
			user: "u1",
			req:  room.CreateRoomRequest{Name: "x"},
			want: room.ErrInvalidDuration,
		},
		{
			name: "duration above limit",
			user: "u1",
			req:  room.CreateRoomRequest{Name: "x", DurationMinutes: 24*60 + 1},
			want: room.ErrInvalidDuration,
		},
		{
			name: "unknown food mode",
			user: "u1",
			req:  room.CreateRoomRequest{Name: "x", DurationMinutes: 10, FoodMode: "takeaway"},
			want: models.ErrInvalidFoodMode,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			s := h.store(t, tc.user)

			_, err := s.CreateRoom(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, models.RoomPhaseNone, s.View().Phase)
			assert.Zero(t, h.data.Calls(roomtest.OpCreateRoom), "expected no data service call")
		})
	}
}

func TestCreateRoomDataServiceFailure(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	h.data.Fail(roomtest.OpCreateRoom, errors.New("connection refused"))

	_, err := s.CreateRoom(context.Background(), room.CreateRoomRequest{Name: "x", DurationMinutes: 10})
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, s.CurrentRoomID(), "expected no room to be adopted")
}

func TestJoinRoom(t *testing.T) {
	h := newHarness()
	host := h.store(t, "host")
	guest := h.store(t, "guest")
	r := h.createRoom(t, host)

	// codes are case-insensitive and tolerate surrounding whitespace
	require.NoError(t, guest.JoinRoom(context.Background(), "  "+strings.ToLower(r.Code)+" "))

	v := guest.View()
	assert.Equal(t, models.RoomPhaseLive, v.Phase)
	assert.Len(t, v.Participants, 2)

	// rejoining is idempotent
	require.NoError(t, guest.JoinRoom(context.Background(), r.ID.String()))
	assert.Len(t, guest.View().Participants, 2, "expected rejoin not to duplicate the participant")
}

func TestJoinRoomNotFound(t *testing.T) {
	tcases := []struct {
		name string
		code string
	}{
		{name: "malformed code", code: "AB"},
		{name: "unknown code", code: "ZZZZZZ"},
		{name: "unknown id", code: uuid.NewString()},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			s := h.store(t, "guest")

			err := s.JoinRoom(context.Background(), tc.code)
			assert.ErrorIs(t, err, room.ErrRoomNotFound)
			assert.Equal(t, uuid.Nil, s.CurrentRoomID())
		})
	}
}

func TestJoinExpiredRoomFinalises(t *testing.T) {
	h := newHarness()
	r := h.data.SeedRoom(models.Room{
		Code:      "ABC123",
		Name:      "Lunch",
		HostID:    "host",
		CreatedAt: testNow.Add(-time.Hour),
		ExpiresAt: testNow.Add(-time.Minute),
		IsActive:  true,
	})
	pizza := h.seedSuggestion(r.ID, "Pizza")
	sushi := h.seedSuggestion(r.ID, "Sushi")
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u1", SuggestionID: pizza.ID, Reaction: models.ReactionLove})
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u2", SuggestionID: pizza.ID, Reaction: models.ReactionLike})
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u3", SuggestionID: sushi.ID, Reaction: models.ReactionLike})

	s := h.store(t, "late")
	require.NoError(t, s.JoinRoom(context.Background(), "abc123"))

	v := s.View()
	assert.Equal(t, models.RoomPhaseCompleted, v.Phase)
	assert.True(t, v.ViewingCompleted)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, tally.ClassificationResolved, v.Outcome.Classification)
	require.Len(t, v.Outcome.Tally.Winners, 1)
	assert.Equal(t, pizza.ID, v.Outcome.Tally.Winners[0].Suggestion.ID)
	assert.Equal(t, 2, v.Outcome.Tally.Winners[0].Votes)
	assert.Equal(t, 3, v.Outcome.Tally.TotalVotes)

	assert.Zero(t, h.data.Calls(roomtest.OpAddParticipant), "expected no participant row for an ended room")
	stored, ok := h.data.Room(r.ID)
	require.True(t, ok)
	assert.False(t, stored.IsActive, "expected the room to be closed")
	assert.NotEmpty(t, stored.Result, "expected the outcome to be persisted")
}

func TestJoinDropsUnknownReactions(t *testing.T) {
	h := newHarness()
	host := h.store(t, "host")
	r := h.createRoom(t, host)
	sg := h.seedSuggestion(r.ID, "Tacos")
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u1", SuggestionID: sg.ID, Reaction: "meh"})
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u2", SuggestionID: sg.ID, Reaction: models.ReactionLove})

	s := h.store(t, "guest")
	require.NoError(t, s.JoinRoom(context.Background(), r.Code))

	v := s.View()
	assert.Len(t, v.Votes, 1)
	assert.Equal(t, 1, v.Tally.Counts[sg.ID])
}

func TestResetCurrentRoom(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	r := h.createRoom(t, s)
	require.NoError(t, s.SetActiveTab(models.TabChat))

	s.ResetCurrentRoom()

	v := s.View()
	assert.Equal(t, models.RoomPhaseNone, v.Phase)
	assert.Nil(t, v.Room)
	assert.Empty(t, v.Participants)
	assert.Empty(t, v.Votes)
	assert.Empty(t, v.ActiveTab)
	assert.Equal(t, uuid.Nil, h.watcher.Active(), "expected the watcher to be released")
	assert.Nil(t, h.snapshots.Current(), "expected the snapshot to be cleared")

	err := s.HandleExpiry(context.Background(), r.ID)
	assert.ErrorIs(t, err, room.ErrStaleRoom)
}

func TestSetActiveTab(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")

	assert.ErrorIs(t, s.SetActiveTab("map"), models.ErrInvalidTab)
	require.NoError(t, s.SetActiveTab(models.TabVote))
	assert.Equal(t, models.TabVote, s.View().ActiveTab)
}

func TestOperationsWithoutRoom(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	ctx := context.Background()

	assert.ErrorIs(t, s.AddSuggestion(ctx, "Pizza", "", ""), room.ErrNoRoom)
	assert.ErrorIs(t, s.CastVote(ctx, uuid.New(), models.ReactionLove), room.ErrNoRoom)
	assert.ErrorIs(t, s.ClearVote(ctx, uuid.New()), room.ErrNoRoom)
	assert.ErrorIs(t, s.SendMessage(ctx, "hi"), room.ErrNoRoom)
	assert.ErrorIs(t, s.EndRoom(ctx), room.ErrNoRoom)
}

func TestAddSuggestion(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	h.createRoom(t, s)

	require.NoError(t, s.AddSuggestion(context.Background(), " Ramen ", "🍜", ""))

	v := s.View()
	require.Len(t, v.Suggestions, 1)
	assert.Equal(t, "Ramen", v.Suggestions[0].Name)
	assert.Nil(t, v.Suggestions[0].Description, "expected blank description to be omitted")
	assert.Equal(t, 1, h.data.Calls(roomtest.OpCreateSuggestion))

	assert.ErrorIs(t, s.AddSuggestion(context.Background(), "  ", "", ""), room.ErrInvalidSuggestion)
}

func TestAddSuggestionRollsBack(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	h.createRoom(t, s)
	h.data.Fail(roomtest.OpCreateSuggestion, errors.New("insert failed"))

	err := s.AddSuggestion(context.Background(), "Ramen", "", "")
	require.Error(t, err)
	assert.Empty(t, s.View().Suggestions, "expected the optimistic suggestion to be removed")
}

func TestSendMessage(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	h.createRoom(t, s)

	require.NoError(t, s.SendMessage(context.Background(), "  pizza?  "))

	v := s.View()
	require.Len(t, v.Messages, 1)
	assert.Equal(t, "pizza?", v.Messages[0].Text)
	assert.Equal(t, "HOST", v.Messages[0].AuthorName)
	assert.Empty(t, v.Pending, "expected pending entry to be replaced")

	sent := h.broadcasts.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, events.BroadcastPending, sent[0].Type)
	assert.Equal(t, "pizza?", sent[0].Text)
}

func TestSendMessageFailureRetracts(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	h.createRoom(t, s)
	h.data.Fail(roomtest.OpCreateMessage, errors.New("insert failed"))

	err := s.SendMessage(context.Background(), "anyone?")
	require.Error(t, err)

	v := s.View()
	assert.Empty(t, v.Messages)
	assert.Empty(t, v.Pending, "expected the pending entry to be dropped")

	sent := h.broadcasts.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, events.BroadcastPending, sent[0].Type)
	assert.Equal(t, events.BroadcastRetract, sent[1].Type)
	assert.Equal(t, sent[0].PendingID, sent[1].PendingID)
}

func TestSendMessageValidation(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	h.createRoom(t, s)

	assert.ErrorIs(t, s.SendMessage(context.Background(), " \n "), room.ErrEmptyMessage)
	assert.ErrorIs(t, s.SendMessage(context.Background(), strings.Repeat("é", 501)), room.ErrMessageTooLong)
	assert.NoError(t, s.SendMessage(context.Background(), strings.Repeat("é", 500)))
	assert.Equal(t, 1, h.data.Calls(roomtest.OpCreateMessage))
}

func TestBroadcastFailureDoesNotFailSend(t *testing.T) {
	h := newHarness()
	h.broadcasts.Err = errors.New("nats down")
	s := h.store(t, "host")
	h.createRoom(t, s)

	require.NoError(t, s.SendMessage(context.Background(), "hello"))
	assert.Len(t, s.View().Messages, 1)
}

func TestEndRoom(t *testing.T) {
	h := newHarness()
	host := h.store(t, "host")
	guest := h.store(t, "guest")
	r := h.createRoom(t, host)
	require.NoError(t, guest.JoinRoom(context.Background(), r.Code))

	assert.ErrorIs(t, guest.EndRoom(context.Background()), room.ErrNotHost)

	require.NoError(t, host.EndRoom(context.Background()))
	v := host.View()
	assert.Equal(t, models.RoomPhaseCompleted, v.Phase)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, tally.ClassificationNoSuggestions, v.Outcome.Classification)

	ctx := context.Background()
	assert.ErrorIs(t, host.SendMessage(ctx, "too late"), room.ErrRoomInactive)
	assert.ErrorIs(t, host.AddSuggestion(ctx, "Pizza", "", ""), room.ErrRoomInactive)
	assert.ErrorIs(t, host.EndRoom(ctx), room.ErrRoomInactive)
}

func TestTimerExpiryFinalisesRoom(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")
	r, err := s.CreateRoom(context.Background(), room.CreateRoomRequest{Name: "Quick", DurationMinutes: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	h.clock.Advance(61 * time.Second)

	require.Eventually(t, func() bool {
		return s.View().Phase == models.RoomPhaseCompleted
	}, testWait, testPoll, "expected the timer to finalise the room")

	stored, ok := h.data.Room(r.ID)
	require.True(t, ok)
	assert.False(t, stored.IsActive)
}

func TestAllVotedUsesRoster(t *testing.T) {
	h := newHarness()
	host := h.store(t, "host")
	guest := h.store(t, "guest")
	r := h.createRoom(t, host)
	sg := h.seedSuggestion(r.ID, "Curry")
	require.NoError(t, guest.JoinRoom(context.Background(), r.Code))
	require.NoError(t, host.JoinRoom(context.Background(), r.Code))

	require.NoError(t, host.CastVote(context.Background(), sg.ID, models.ReactionLike))
	assert.False(t, host.View().AllVoted, "expected guest to still be missing")

	host.ApplyVote(r.ID, models.Vote{RoomID: r.ID, UserID: "guest", SuggestionID: sg.ID, Reaction: models.ReactionLove})
	assert.True(t, host.View().AllVoted)
}

func TestResume(t *testing.T) {
	h := newHarness()
	first := h.store(t, "host")
	r := h.createRoom(t, first)
	require.NoError(t, first.SetActiveTab(models.TabVote))
	first.Close()

	second := h.store(t, "host")
	require.NoError(t, second.Resume(context.Background()))

	assert.Equal(t, r.ID, second.CurrentRoomID())
	v := second.View()
	assert.Equal(t, models.TabVote, v.ActiveTab)
	assert.Equal(t, models.RoomPhaseLive, v.Phase)
}

func TestResumeForgetsMissingRoom(t *testing.T) {
	h := newHarness()
	ghost := models.Room{ID: uuid.New(), Code: "GHOST1", IsActive: true, ExpiresAt: testNow.Add(time.Hour)}
	require.NoError(t, h.snapshots.Save(context.Background(), room.Snapshot{ActiveTab: models.TabChat, Room: &ghost}))

	s := h.store(t, "host")
	require.NoError(t, s.Resume(context.Background()))

	assert.Equal(t, uuid.Nil, s.CurrentRoomID())
	assert.Nil(t, h.snapshots.Current(), "expected the stale snapshot to be cleared")
}

func TestResumeWithoutSnapshot(t *testing.T) {
	h := newHarness()
	s := h.store(t, "host")

	require.NoError(t, s.Resume(context.Background()))
	assert.Equal(t, models.RoomPhaseNone, s.View().Phase)
}

func TestOnChangeReceivesViews(t *testing.T) {
	h := newHarness()
	var (
		mu    sync.Mutex
		views []room.View
	)
	s := room.NewStore(room.Config{}, room.Deps{
		Data:     h.data,
		Clock:    h.clock,
		Identity: room.Identity{UserID: "host"},
		OnChange: func(v room.View) {
			mu.Lock()
			views = append(views, v)
			mu.Unlock()
		},
	})
	t.Cleanup(s.Close)

	h.createRoom(t, s)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	last := views[len(views)-1]
	assert.Equal(t, models.RoomPhaseLive, last.Phase)
	for i := 1; i < len(views); i++ {
		assert.GreaterOrEqual(t, views[i].Version, views[i-1].Version, "expected versions to be monotonic")
	}
}
