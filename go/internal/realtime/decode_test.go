package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	roomID := uuid.New()
	at := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	avatar := "https://example.test/a.png"

	t.Run("participant keeps avatar", func(t *testing.T) {
		ev, err := Decode(envelope(t, roomID, events.EventTypeParticipantJoined, events.ParticipantPayload{
			RoomID: roomID, UserID: "u2", Name: "Two", AvatarURL: &avatar, JoinedAt: at,
		}))
		require.NoError(t, err)
		require.NotNil(t, ev.Participant)
		assert.Equal(t, avatar, ev.Participant.AvatarURL)
		assert.Equal(t, at, ev.Participant.JoinedAt)
	})

	t.Run("room created carries the room", func(t *testing.T) {
		ev, err := Decode(envelope(t, roomID, events.EventTypeRoomCreated, events.RoomPayload{
			ID: roomID, Code: "ABC123", FoodMode: "cooking", ExpiresAt: at, IsActive: true,
		}))
		require.NoError(t, err)
		require.NotNil(t, ev.Room)
		assert.False(t, ev.RoomClosed)
		assert.Equal(t, models.FoodModeCooking, ev.Room.FoodMode)
		assert.Equal(t, at, ev.Room.ExpiresAt)
	})

	t.Run("bad room id", func(t *testing.T) {
		env := envelope(t, roomID, events.EventTypeRoomClosed, events.RoomPayload{})
		env.RoomID = "nope"
		_, err := Decode(env)
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Decode(envelope(t, roomID, "Bogus", struct{}{}))
		assert.ErrorIs(t, err, ErrUnknownEventType)
	})

	t.Run("invalid reaction", func(t *testing.T) {
		_, err := Decode(envelope(t, roomID, events.EventTypeVoteCast, events.VotePayload{Reaction: "meh"}))
		assert.ErrorIs(t, err, models.ErrInvalidReaction)
	})
}

func TestDecodeRejectsForeignPayload(t *testing.T) {
	roomID := uuid.New()
	_, err := Decode(envelope(t, roomID, events.EventTypeMessagePosted, events.MessagePayload{ID: uuid.New(), RoomID: uuid.New(), Text: "x"}))
	assert.ErrorIs(t, err, ErrRoomMismatch)
}
