package room_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/room/roomtest"
	"github.com/mcdev12/tabletalk/go/internal/tally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleExpiryIsIdempotent(t *testing.T) {
	h, s, r, s1, _ := votingRoom(t)
	require.NoError(t, s.CastVote(context.Background(), s1.ID, models.ReactionLove))
	listsBefore := h.data.Calls(roomtest.OpListSuggestions)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.HandleExpiry(context.Background(), r.ID))
		}()
	}
	wg.Wait()
	require.NoError(t, s.HandleExpiry(context.Background(), r.ID))

	assert.Equal(t, 1, h.data.Calls(roomtest.OpListSuggestions)-listsBefore, "expected a single reconciliation")
	assert.Equal(t, 1, h.data.Calls(roomtest.OpCloseRoom))

	v := s.View()
	assert.Equal(t, models.RoomPhaseCompleted, v.Phase)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, tally.ClassificationResolved, v.Outcome.Classification)
	assert.False(t, v.Outcome.Degraded)
	require.Len(t, v.Outcome.Tally.Winners, 1)
	assert.Equal(t, s1.ID, v.Outcome.Tally.Winners[0].Suggestion.ID)
}

func TestHandleExpiryMergesRemoteState(t *testing.T) {
	h, s, r, s1, s2 := votingRoom(t)

	// state written by other clients that never reached this store
	late := h.seedSuggestion(r.ID, "Late entry")
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u2", SuggestionID: late.ID, Reaction: models.ReactionLove})
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u3", SuggestionID: late.ID, Reaction: models.ReactionLike})
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u4", SuggestionID: s2.ID, Reaction: models.ReactionLike})

	require.NoError(t, s.HandleExpiry(context.Background(), r.ID))

	v := s.View()
	ids := make([]string, 0, len(v.Suggestions))
	for _, sg := range v.Suggestions {
		ids = append(ids, sg.ID.String())
	}
	assert.ElementsMatch(t, []string{s1.ID.String(), s2.ID.String(), late.ID.String()}, ids)
	require.NotNil(t, v.Outcome)
	require.Len(t, v.Outcome.Tally.Winners, 1)
	assert.Equal(t, late.ID, v.Outcome.Tally.Winners[0].Suggestion.ID)
	assert.Equal(t, 3, v.Outcome.Tally.TotalVotes)
}

func TestHandleExpiryDegradesToLocalState(t *testing.T) {
	h, s, r, _, s2 := votingRoom(t)
	ctx := context.Background()
	require.NoError(t, s.CastVote(ctx, s2.ID, models.ReactionLove))
	h.data.Fail(roomtest.OpListSuggestions, errors.New("timeout"))
	h.data.Fail(roomtest.OpListVotes, errors.New("timeout"))

	require.NoError(t, s.HandleExpiry(ctx, r.ID))

	v := s.View()
	assert.Equal(t, models.RoomPhaseCompleted, v.Phase)
	require.NotNil(t, v.Outcome)
	assert.True(t, v.Outcome.Degraded, "expected the outcome to be marked degraded")
	assert.Len(t, v.Suggestions, 2)
	require.Len(t, v.Outcome.Tally.Winners, 1)
	assert.Equal(t, s2.ID, v.Outcome.Tally.Winners[0].Suggestion.ID)
}

func TestHandleExpiryPersistsOutcome(t *testing.T) {
	h, s, r, s1, s2 := votingRoom(t)
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u2", SuggestionID: s1.ID, Reaction: models.ReactionLove})
	h.data.SeedVote(models.Vote{RoomID: r.ID, UserID: "u3", SuggestionID: s2.ID, Reaction: models.ReactionLove})

	require.NoError(t, s.HandleExpiry(context.Background(), r.ID))

	stored, ok := h.data.Room(r.ID)
	require.True(t, ok)
	require.NotEmpty(t, stored.Result)

	var outcome tally.Outcome
	require.NoError(t, json.Unmarshal(stored.Result, &outcome))
	assert.Equal(t, tally.ClassificationResolved, outcome.Classification)
	assert.True(t, outcome.Tie, "expected a two-way tie")
	assert.Len(t, outcome.Tally.Winners, 2)
}

func TestHandleExpiryCloseFailureKeepsLocalResult(t *testing.T) {
	h, s, r, _, _ := votingRoom(t)
	h.data.Fail(roomtest.OpCloseRoom, errors.New("write failed"))

	require.NoError(t, s.HandleExpiry(context.Background(), r.ID))

	v := s.View()
	assert.Equal(t, models.RoomPhaseCompleted, v.Phase)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, tally.ClassificationNoVotes, v.Outcome.Classification)
}

func TestHandleExpiryDiscardsResultForStaleRoom(t *testing.T) {
	h, s, r, _, _ := votingRoom(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.data.Before = func(op string) {
		if op == roomtest.OpListSuggestions {
			close(entered)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.HandleExpiry(context.Background(), r.ID) }()
	<-entered
	s.ResetCurrentRoom()
	close(release)
	require.NoError(t, <-done)

	v := s.View()
	assert.Equal(t, models.RoomPhaseNone, v.Phase, "expected the late result not to resurrect the room")
	assert.Nil(t, v.Outcome)
}

func TestHandleExpiryDropsOtherUsersPending(t *testing.T) {
	_, s, r, _, _ := votingRoom(t)
	s.ApplyPending(r.ID, models.PendingMessage{ID: uuid.New(), AuthorID: "u2", Text: "typing"})
	require.Len(t, s.View().Pending, 1)

	require.NoError(t, s.HandleExpiry(context.Background(), r.ID))
	assert.Empty(t, s.View().Pending)
}

func TestApplyRoomClosedTriggersExpiry(t *testing.T) {
	_, s, r, _, _ := votingRoom(t)

	s.ApplyRoomClosed(r.ID)

	require.Eventually(t, func() bool {
		return s.View().Phase == models.RoomPhaseCompleted
	}, testWait, testPoll)
}
