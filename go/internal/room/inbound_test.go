package room_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/room/roomtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEventsForStaleRoomAreIgnored(t *testing.T) {
	_, s, r, s1, _ := votingRoom(t)
	other := uuid.New()
	before := s.View()

	s.ApplyVote(other, models.Vote{RoomID: other, UserID: "u2", SuggestionID: s1.ID, Reaction: models.ReactionLove})
	s.ApplySuggestion(other, models.Suggestion{ID: uuid.New(), RoomID: other, Name: "Elsewhere"})
	s.ApplyMessage(other, models.Message{ID: uuid.New(), RoomID: other, AuthorID: "u2", Text: "hi"})
	s.ApplyParticipant(other, models.Participant{RoomID: other, UserID: "u9"})
	s.ApplyPending(other, models.PendingMessage{ID: uuid.New(), AuthorID: "u2", Text: "typing"})

	// an event stamped with the current room but carrying another room's row
	s.ApplyVote(r.ID, models.Vote{RoomID: other, UserID: "u2", SuggestionID: s1.ID, Reaction: models.ReactionLove})

	after := s.View()
	assert.Equal(t, before.Version, after.Version, "expected no state change")
	assert.Empty(t, after.Votes)
	assert.Len(t, after.Suggestions, 2)
	assert.Empty(t, after.Messages)
	assert.Empty(t, after.Pending)
}

func TestApplyVoteFromOthers(t *testing.T) {
	_, s, r, s1, s2 := votingRoom(t)

	s.ApplyVote(r.ID, models.Vote{RoomID: r.ID, UserID: "u2", SuggestionID: s1.ID, Reaction: models.ReactionLove})
	s.ApplyVote(r.ID, models.Vote{RoomID: r.ID, UserID: "u2", SuggestionID: s2.ID, Reaction: models.ReactionLike})
	s.ApplyVote(r.ID, models.Vote{RoomID: r.ID, UserID: "u3", SuggestionID: s2.ID, Reaction: "meh"})

	v := s.View()
	assert.Equal(t, map[string]uuid.UUID{"u2": s2.ID}, v.Votes)
	assert.Equal(t, 1, v.Tally.Counts[s2.ID])
	assert.Nil(t, v.MyVote)

	s.ApplyVoteCleared(r.ID, "u2", s1.ID)
	assert.Len(t, s.View().Votes, 1, "expected a stale clear to be ignored")

	s.ApplyVoteCleared(r.ID, "u2", s2.ID)
	assert.Empty(t, s.View().Votes)
}

func TestApplySuggestionIsIdempotent(t *testing.T) {
	_, s, r, _, _ := votingRoom(t)
	sg := models.Suggestion{ID: uuid.New(), RoomID: r.ID, Name: "Tapas", CreatedBy: "u2"}

	s.ApplySuggestion(r.ID, sg)
	s.ApplySuggestion(r.ID, sg)

	assert.Len(t, s.View().Suggestions, 3)
}

func TestApplyParticipant(t *testing.T) {
	_, s, r, _, _ := votingRoom(t)
	p := models.Participant{RoomID: r.ID, UserID: "u2", Name: "Sam"}

	s.ApplyParticipant(r.ID, p)
	s.ApplyParticipant(r.ID, p)

	assert.Len(t, s.View().Participants, 2)
}

func TestPendingLifecycle(t *testing.T) {
	_, s, r, _, _ := votingRoom(t)
	pendingID := uuid.New()
	sentAt := testNow.Add(time.Second)

	s.ApplyPending(r.ID, models.PendingMessage{ID: pendingID, AuthorID: "u2", AuthorName: "Sam", Text: "tacos?", SentAt: sentAt})
	require.Len(t, s.View().Pending, 1)

	// own pending broadcasts come back from the bus and are ignored
	s.ApplyPending(r.ID, models.PendingMessage{ID: uuid.New(), AuthorID: "u1", Text: "echo"})
	assert.Len(t, s.View().Pending, 1)

	s.ApplyRetract(r.ID, pendingID)
	assert.Empty(t, s.View().Pending)

	s.ApplyPending(r.ID, models.PendingMessage{ID: pendingID, AuthorID: "u2", Text: "tacos?", SentAt: sentAt})
	s.ApplyMessage(r.ID, models.Message{ID: uuid.New(), RoomID: r.ID, AuthorID: "u2", AuthorName: "Sam", Text: "tacos?", Timestamp: sentAt})

	v := s.View()
	assert.Empty(t, v.Pending, "expected the stored message to replace the pending one")
	require.Len(t, v.Messages, 1)
	assert.Equal(t, "tacos?", v.Messages[0].Text)
}

func TestApplyMessageOrdersByTimestamp(t *testing.T) {
	_, s, r, _, _ := votingRoom(t)
	late := models.Message{ID: uuid.New(), RoomID: r.ID, AuthorID: "u2", Text: "second", Timestamp: testNow.Add(2 * time.Second)}
	early := models.Message{ID: uuid.New(), RoomID: r.ID, AuthorID: "u3", Text: "first", Timestamp: testNow.Add(time.Second)}

	s.ApplyMessage(r.ID, late)
	s.ApplyMessage(r.ID, early)
	s.ApplyMessage(r.ID, late)

	v := s.View()
	require.Len(t, v.Messages, 2)
	assert.Equal(t, "first", v.Messages[0].Text)
	assert.Equal(t, "second", v.Messages[1].Text)
}

func TestLateOwnClearEchoKeepsConfirmedVote(t *testing.T) {
	h, s, r, s1, s2 := votingRoom(t)
	ctx := context.Background()
	require.NoError(t, s.CastVote(ctx, s1.ID, models.ReactionLove))
	require.NoError(t, s.CastVote(ctx, s2.ID, models.ReactionLike))

	// echo of a clear for a vote the user has since replaced
	s.ApplyVoteCleared(r.ID, "u1", s1.ID)
	require.NotNil(t, s.View().MyVote)
	assert.Equal(t, s2.ID, *s.View().MyVote)

	h.data.Fail(roomtest.OpUpsertVote, errors.New("write failed"))
	require.Error(t, s.CastVote(ctx, s1.ID, models.ReactionNeutral))

	v := s.View()
	require.NotNil(t, v.MyVote, "expected the rollback to restore the confirmed vote")
	assert.Equal(t, s2.ID, *v.MyVote)
	assert.Equal(t, models.ReactionLike, v.Reactions["u1"])
}
