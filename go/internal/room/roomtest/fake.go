// Package roomtest provides an in-memory data service for tests.
package roomtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/room"
)

// Operation names accepted by Fail and Before.
const (
	OpCreateRoom       = "CreateRoom"
	OpGetRoom          = "GetRoom"
	OpAddParticipant   = "AddParticipant"
	OpListParticipants = "ListParticipants"
	OpListSuggestions  = "ListSuggestions"
	OpCreateSuggestion = "CreateSuggestion"
	OpListVotes        = "ListVotes"
	OpUpsertVote       = "UpsertVote"
	OpDeleteVote       = "DeleteVote"
	OpListMessages     = "ListMessages"
	OpCreateMessage    = "CreateMessage"
	OpCloseRoom        = "CloseRoom"
)

// FakeDataService is a thread-safe in-memory room.DataService.
type FakeDataService struct {
	mu           sync.Mutex
	rooms        map[uuid.UUID]*models.Room
	participants map[uuid.UUID][]models.Participant
	suggestions  map[uuid.UUID][]models.Suggestion
	votes        map[uuid.UUID]map[string]models.Vote
	messages     map[uuid.UUID][]models.Message
	profiles     map[string]models.Profile
	calls        map[string]int
	failures     map[string]error

	// Before, if set, runs at the start of every operation without the lock
	// held. Tests use it to block or reorder calls.
	Before func(op string)
}

// NewFakeDataService returns an empty fake.
func NewFakeDataService() *FakeDataService {
	return &FakeDataService{
		rooms:        make(map[uuid.UUID]*models.Room),
		participants: make(map[uuid.UUID][]models.Participant),
		suggestions:  make(map[uuid.UUID][]models.Suggestion),
		votes:        make(map[uuid.UUID]map[string]models.Vote),
		messages:     make(map[uuid.UUID][]models.Message),
		profiles:     make(map[string]models.Profile),
		calls:        make(map[string]int),
		failures:     make(map[string]error),
	}
}

// Fail makes every later call to op return err. A nil err clears it.
func (f *FakeDataService) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns how many times op was invoked.
func (f *FakeDataService) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeDataService) enter(op string) error {
	if f.Before != nil {
		f.Before(op)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.failures[op]
}

// SeedRoom stores a room directly and returns it.
func (f *FakeDataService) SeedRoom(r models.Room) *models.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	stored := r.Clone()
	f.rooms[r.ID] = &stored
	return &r
}

// SeedSuggestion stores a suggestion as if another client had created it.
func (f *FakeDataService) SeedSuggestion(s models.Suggestion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions[s.RoomID] = append(f.suggestions[s.RoomID], s)
}

// SeedVote stores a vote as if another client had cast it.
func (f *FakeDataService) SeedVote(v models.Vote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.votes[v.RoomID] == nil {
		f.votes[v.RoomID] = make(map[string]models.Vote)
	}
	f.votes[v.RoomID][v.UserID] = v
}

// SeedParticipant stores a participant directly.
func (f *FakeDataService) SeedParticipant(p models.Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants[p.RoomID] = append(f.participants[p.RoomID], p)
}

// SeedProfile stores a profile directly.
func (f *FakeDataService) SeedProfile(p models.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UserID] = p
}

// Vote returns the stored vote of a user, if any.
func (f *FakeDataService) Vote(roomID uuid.UUID, userID string) (models.Vote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.votes[roomID][userID]
	return v, ok
}

// Room returns the stored copy of a room.
func (f *FakeDataService) Room(id uuid.UUID) (models.Room, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return models.Room{}, false
	}
	return r.Clone(), true
}

func (f *FakeDataService) CreateRoom(ctx context.Context, req room.CreateRoomParams) (*models.Room, error) {
	if err := f.enter(OpCreateRoom); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Code == req.Code {
			return nil, room.ErrDuplicateCode
		}
	}
	r := models.Room{
		ID:        uuid.New(),
		Code:      req.Code,
		Name:      req.Name,
		HostID:    req.Host.UserID,
		FoodMode:  req.FoodMode,
		CreatedAt: req.CreatedAt,
		ExpiresAt: req.ExpiresAt,
		IsActive:  true,
	}
	f.rooms[r.ID] = &r
	host := req.Host
	host.RoomID = r.ID
	f.participants[r.ID] = append(f.participants[r.ID], host)
	out := r.Clone()
	return &out, nil
}

func (f *FakeDataService) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	if err := f.enter(OpGetRoom); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", room.ErrRoomNotFound, id)
	}
	out := r.Clone()
	return &out, nil
}

func (f *FakeDataService) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	if err := f.enter(OpGetRoom); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Code == code {
			out := r.Clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", room.ErrRoomNotFound, code)
}

func (f *FakeDataService) AddParticipant(ctx context.Context, p models.Participant) error {
	if err := f.enter(OpAddParticipant); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants[p.RoomID] {
		if existing.UserID == p.UserID {
			return nil
		}
	}
	f.participants[p.RoomID] = append(f.participants[p.RoomID], p)
	return nil
}

func (f *FakeDataService) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	if err := f.enter(OpListParticipants); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Participant{}, f.participants[roomID]...), nil
}

func (f *FakeDataService) ListSuggestions(ctx context.Context, roomID uuid.UUID) ([]models.Suggestion, error) {
	if err := f.enter(OpListSuggestions); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Suggestion{}, f.suggestions[roomID]...), nil
}

func (f *FakeDataService) CreateSuggestion(ctx context.Context, s models.Suggestion) (*models.Suggestion, error) {
	if err := f.enter(OpCreateSuggestion); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.suggestions[s.RoomID] {
		if existing.ID == s.ID {
			return nil, fmt.Errorf("duplicate suggestion %s", s.ID)
		}
	}
	f.suggestions[s.RoomID] = append(f.suggestions[s.RoomID], s)
	return &s, nil
}

func (f *FakeDataService) ListVotes(ctx context.Context, roomID uuid.UUID) ([]models.Vote, error) {
	if err := f.enter(OpListVotes); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Vote, 0, len(f.votes[roomID]))
	for _, v := range f.votes[roomID] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *FakeDataService) UpsertVote(ctx context.Context, v models.Vote) error {
	if err := f.enter(OpUpsertVote); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.votes[v.RoomID] == nil {
		f.votes[v.RoomID] = make(map[string]models.Vote)
	}
	f.votes[v.RoomID][v.UserID] = v
	return nil
}

func (f *FakeDataService) DeleteVote(ctx context.Context, roomID uuid.UUID, userID string) error {
	if err := f.enter(OpDeleteVote); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.votes[roomID], userID)
	return nil
}

func (f *FakeDataService) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error) {
	if err := f.enter(OpListMessages); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message{}, msgs...), nil
}

func (f *FakeDataService) CreateMessage(ctx context.Context, m models.Message) (*models.Message, error) {
	if err := f.enter(OpCreateMessage); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.RoomID] = append(f.messages[m.RoomID], m)
	return &m, nil
}

func (f *FakeDataService) CloseRoom(ctx context.Context, roomID uuid.UUID, result []byte) error {
	if err := f.enter(OpCloseRoom); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", room.ErrRoomNotFound, roomID)
	}
	if !r.IsActive {
		return nil
	}
	now := time.Now().UTC()
	r.IsActive = false
	r.ClosedAt = &now
	r.Result = json.RawMessage(append([]byte(nil), result...))
	return nil
}

// GetProfile returns a seeded profile.
func (f *FakeDataService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s not found", userID)
	}
	return &p, nil
}

// FetchNextExpiry returns the earliest deadline among active rooms.
func (f *FakeDataService) FetchNextExpiry(ctx context.Context) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next *time.Time
	for _, r := range f.rooms {
		if !r.IsActive {
			continue
		}
		if next == nil || r.ExpiresAt.Before(*next) {
			t := r.ExpiresAt
			next = &t
		}
	}
	return next, nil
}

// FetchRoomsDueForClose returns active rooms whose deadline has passed.
func (f *FakeDataService) FetchRoomsDueForClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.Room
	for _, r := range f.rooms {
		if r.IsActive && !r.ExpiresAt.After(now) {
			due = append(due, *r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	ids := make([]uuid.UUID, 0, len(due))
	for i, r := range due {
		if limit > 0 && i >= limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}
