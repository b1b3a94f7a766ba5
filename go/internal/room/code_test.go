package room

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDataService struct {
	mock.Mock
}

func (m *MockDataService) CreateRoom(ctx context.Context, req CreateRoomParams) (*models.Room, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*models.Room); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataService) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	args := m.Called(ctx, id)
	if r, ok := args.Get(0).(*models.Room); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataService) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	args := m.Called(ctx, code)
	if r, ok := args.Get(0).(*models.Room); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataService) AddParticipant(ctx context.Context, p models.Participant) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockDataService) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	args := m.Called(ctx, roomID)
	out, _ := args.Get(0).([]models.Participant)
	return out, args.Error(1)
}

func (m *MockDataService) ListSuggestions(ctx context.Context, roomID uuid.UUID) ([]models.Suggestion, error) {
	args := m.Called(ctx, roomID)
	out, _ := args.Get(0).([]models.Suggestion)
	return out, args.Error(1)
}

func (m *MockDataService) CreateSuggestion(ctx context.Context, s models.Suggestion) (*models.Suggestion, error) {
	args := m.Called(ctx, s)
	out, _ := args.Get(0).(*models.Suggestion)
	return out, args.Error(1)
}

func (m *MockDataService) ListVotes(ctx context.Context, roomID uuid.UUID) ([]models.Vote, error) {
	args := m.Called(ctx, roomID)
	out, _ := args.Get(0).([]models.Vote)
	return out, args.Error(1)
}

func (m *MockDataService) UpsertVote(ctx context.Context, v models.Vote) error {
	return m.Called(ctx, v).Error(0)
}

func (m *MockDataService) DeleteVote(ctx context.Context, roomID uuid.UUID, userID string) error {
	return m.Called(ctx, roomID, userID).Error(0)
}

func (m *MockDataService) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	out, _ := args.Get(0).([]models.Message)
	return out, args.Error(1)
}

func (m *MockDataService) CreateMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).(*models.Message)
	return out, args.Error(1)
}

func (m *MockDataService) CloseRoom(ctx context.Context, roomID uuid.UUID, result []byte) error {
	return m.Called(ctx, roomID, result).Error(0)
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := generateCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, c), "expected %q to be in the code alphabet", c)
		}
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 190, "expected codes to be effectively unique")
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "AB12CD", normalizeCode("  ab12cd\t"))
}

func TestCreateRoomRetriesCodeCollision(t *testing.T) {
	data := &MockDataService{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	s := NewStore(Config{}, Deps{Data: data, Clock: clock, Identity: Identity{UserID: "host", Name: "Host"}})
	t.Cleanup(s.Close)

	created := &models.Room{
		ID:        uuid.New(),
		Code:      "QWERTY",
		Name:      "Dinner",
		HostID:    "host",
		CreatedAt: clock.Now(),
		ExpiresAt: clock.Now().Add(20 * time.Minute),
		IsActive:  true,
	}
	data.On("CreateRoom", mock.Anything, mock.AnythingOfType("room.CreateRoomParams")).Return(nil, ErrDuplicateCode).Twice()
	data.On("CreateRoom", mock.Anything, mock.MatchedBy(func(p CreateRoomParams) bool {
		return p.Name == "Dinner" && p.Host.IsHost && p.ExpiresAt.Sub(p.CreatedAt) == 20*time.Minute
	})).Return(created, nil).Once()

	r, err := s.CreateRoom(context.Background(), CreateRoomRequest{Name: " Dinner ", DurationMinutes: 20})
	require.NoError(t, err)
	assert.Equal(t, created.ID, r.ID)
	data.AssertNumberOfCalls(t, "CreateRoom", 3)
}

func TestCreateRoomGivesUpAfterRepeatedCollisions(t *testing.T) {
	data := &MockDataService{}
	s := NewStore(Config{}, Deps{Data: data, Clock: clockwork.NewFakeClock(), Identity: Identity{UserID: "host"}})
	t.Cleanup(s.Close)
	data.On("CreateRoom", mock.Anything, mock.Anything).Return(nil, ErrDuplicateCode)

	_, err := s.CreateRoom(context.Background(), CreateRoomRequest{Name: "Dinner", DurationMinutes: 20})
	assert.ErrorIs(t, err, ErrDuplicateCode)
	data.AssertNumberOfCalls(t, "CreateRoom", maxCodeAttempts)
}

func TestJoinExpiredRoomUsesLocalStateWhenRefetchFails(t *testing.T) {
	data := &MockDataService{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	s := NewStore(Config{}, Deps{Data: data, Clock: clock, Identity: Identity{UserID: "guest"}})
	t.Cleanup(s.Close)

	r := &models.Room{
		ID:        uuid.New(),
		Code:      "ENDED1",
		HostID:    "host",
		CreatedAt: clock.Now().Add(-time.Hour),
		ExpiresAt: clock.Now().Add(-time.Minute),
		IsActive:  true,
	}
	sg := models.Suggestion{ID: uuid.New(), RoomID: r.ID, Name: "Dumplings"}
	votes := []models.Vote{{RoomID: r.ID, UserID: "host", SuggestionID: sg.ID, Reaction: models.ReactionLove}}

	data.On("GetRoomByCode", mock.Anything, "ENDED1").Return(r, nil)
	data.On("ListParticipants", mock.Anything, r.ID).Return([]models.Participant{{RoomID: r.ID, UserID: "host", IsHost: true}}, nil)
	data.On("ListSuggestions", mock.Anything, r.ID).Return([]models.Suggestion{sg}, nil).Once()
	data.On("ListSuggestions", mock.Anything, r.ID).Return(nil, assert.AnError)
	data.On("ListVotes", mock.Anything, r.ID).Return(votes, nil).Once()
	data.On("ListVotes", mock.Anything, r.ID).Return(nil, assert.AnError)
	data.On("ListMessages", mock.Anything, r.ID, 200).Return([]models.Message(nil), nil)
	data.On("CloseRoom", mock.Anything, r.ID, mock.Anything).Return(nil)

	require.NoError(t, s.JoinRoom(context.Background(), "ended1"))

	v := s.View()
	assert.Equal(t, models.RoomPhaseCompleted, v.Phase)
	require.NotNil(t, v.Outcome)
	assert.True(t, v.Outcome.Degraded)
	assert.Equal(t, []uuid.UUID{sg.ID}, v.Outcome.Tally.WinnerIDs())
	data.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything)
	data.AssertExpectations(t)
}
