package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/roomtimer"
	"github.com/mcdev12/tabletalk/go/internal/tally"
	"github.com/rs/zerolog/log"
)

// Store is the single state container for one user's current room. All
// mutations go through its mutex; remote calls are made without holding it
// and their results are dropped if the room changed in the meantime.
type Store struct {
	cfg         Config
	data        DataService
	broadcaster Broadcaster
	snapshots   SnapshotStore
	clock       clockwork.Clock
	identity    Identity
	onChange    func(View)
	onTick      func(Tick)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   *roomState
	version uint64

	// voteMu serialises remote vote writes for this user.
	voteMu sync.Mutex

	watchMu  sync.Mutex
	watcher  RoomWatcher
	watching uuid.UUID

	snapMu       sync.Mutex
	lastSnapshot *Snapshot
}

type voteRecord struct {
	SuggestionID uuid.UUID
	Reaction     models.Reaction
}

// roomState is everything owned by the current room. It is replaced wholesale
// on adopt and reset so nothing leaks from one room into the next.
type roomState struct {
	room             *models.Room
	phase            models.RoomPhase
	adoptedAt        time.Time
	participants     []models.Participant
	suggestions      []models.Suggestion
	messages         []models.Message
	pending          map[uuid.UUID]models.PendingMessage
	votes            map[string]uuid.UUID
	reactions        map[string]models.Reaction
	outcome          *tally.Outcome
	viewingCompleted bool
	activeTab        models.Tab

	timer       *roomtimer.Timer
	timerCancel context.CancelFunc

	expiryStarted bool

	voteSeq   uint64
	syncedSeq uint64
	confirmed *voteRecord
}

func newRoomState(tab models.Tab) *roomState {
	return &roomState{
		phase:     models.RoomPhaseNone,
		pending:   make(map[uuid.UUID]models.PendingMessage),
		votes:     make(map[string]uuid.UUID),
		reactions: make(map[string]models.Reaction),
		activeTab: tab,
	}
}

// NewStore creates a store for one authenticated user.
func NewStore(cfg Config, deps Deps) *Store {
	defaults := DefaultConfig()
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaults.CodeLength
	}
	if cfg.MaxDurationMinutes <= 0 {
		cfg.MaxDurationMinutes = defaults.MaxDurationMinutes
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaults.MaxMessageLength
	}
	if cfg.MessageHistoryLimit <= 0 {
		cfg.MessageHistoryLimit = defaults.MessageHistoryLimit
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cfg:         cfg,
		data:        deps.Data,
		broadcaster: deps.Broadcaster,
		snapshots:   deps.Snapshots,
		clock:       clock,
		identity:    deps.Identity,
		onChange:    deps.OnChange,
		onTick:      deps.OnTick,
		ctx:         ctx,
		cancel:      cancel,
		state:       newRoomState(""),
		watcher:     deps.Watcher,
	}
}

// SetWatcher attaches the realtime watcher. It exists because the watcher is
// usually built from the store itself.
func (s *Store) SetWatcher(w RoomWatcher) {
	s.watchMu.Lock()
	s.watcher = w
	s.watchMu.Unlock()
	s.syncWatcher()
}

// UserID returns the id of the user behind this store.
func (s *Store) UserID() string {
	return s.identity.UserID
}

// CurrentRoomID returns the id of the current room, or uuid.Nil.
func (s *Store) CurrentRoomID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.room == nil {
		return uuid.Nil
	}
	return s.state.room.ID
}

// View returns a consistent copy of the current state.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Store) viewLocked() View {
	st := s.state
	v := View{
		Version:          s.version,
		UserID:           s.identity.UserID,
		Phase:            st.phase,
		Participants:     append([]models.Participant{}, st.participants...),
		Suggestions:      append([]models.Suggestion{}, st.suggestions...),
		Messages:         append([]models.Message{}, st.messages...),
		Pending:          make([]models.PendingMessage, 0, len(st.pending)),
		Votes:            make(map[string]uuid.UUID, len(st.votes)),
		Reactions:        make(map[string]models.Reaction, len(st.reactions)),
		ViewingCompleted: st.viewingCompleted,
		ActiveTab:        st.activeTab,
	}
	if st.room != nil {
		r := st.room.Clone()
		v.Room = &r
	}
	for _, p := range st.pending {
		v.Pending = append(v.Pending, p)
	}
	sort.Slice(v.Pending, func(i, j int) bool {
		return v.Pending[i].SentAt.Before(v.Pending[j].SentAt)
	})
	for k, val := range st.votes {
		v.Votes[k] = val
	}
	for k, val := range st.reactions {
		v.Reactions[k] = val
	}
	if mine, ok := st.votes[s.identity.UserID]; ok {
		v.MyVote = &mine
	}
	v.Tally = tally.Tally(st.suggestions, st.votes)
	v.AllVoted = tally.AllVoted(st.participants, st.votes)
	if st.outcome != nil {
		out := *st.outcome
		v.Outcome = &out
	}
	if st.timer != nil && st.phase == models.RoomPhaseLive {
		v.RemainingSeconds = st.timer.RemainingSeconds()
		v.PercentRemaining = st.timer.PercentRemaining()
	}
	return v
}

// SetActiveTab records which section of the room the user is on.
func (s *Store) SetActiveTab(tab models.Tab) error {
	if _, err := models.ParseTab(string(tab)); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.activeTab = tab
	s.touchLocked()
	s.mu.Unlock()

	s.changed()
	return nil
}

// ResetCurrentRoom drops every piece of current-room state.
func (s *Store) ResetCurrentRoom() {
	s.mu.Lock()
	prev := s.state
	s.stopTimerLocked()
	s.state = newRoomState("")
	s.touchLocked()
	s.mu.Unlock()

	if prev.room != nil {
		log.Info().
			Str("room_id", prev.room.ID.String()).
			Str("user_id", s.identity.UserID).
			Msg("left room")
	}

	s.syncWatcher()
	s.changed()
}

// Close releases the store's background work.
func (s *Store) Close() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()

	s.watchMu.Lock()
	if s.watcher != nil && s.watching != uuid.Nil {
		s.watcher.Unwatch()
		s.watching = uuid.Nil
	}
	s.watchMu.Unlock()

	s.cancel()
}

// adopt makes room the current room. It replaces all room state and starts the
// countdown when the room is still live.
func (s *Store) adopt(room *models.Room, participants []models.Participant, suggestions []models.Suggestion, votes []models.Vote, messages []models.Message) {
	now := s.clock.Now()

	s.mu.Lock()
	s.stopTimerLocked()

	st := newRoomState(s.state.activeTab)
	st.adoptedAt = now
	r := room.Clone()
	st.room = &r
	st.participants = append(st.participants, participants...)
	st.suggestions = append(st.suggestions, suggestions...)
	for _, m := range messages {
		st.insertMessage(m)
	}
	for _, v := range votes {
		st.votes[v.UserID] = v.SuggestionID
		st.reactions[v.UserID] = v.Reaction
		if v.UserID == s.identity.UserID {
			st.confirmed = &voteRecord{SuggestionID: v.SuggestionID, Reaction: v.Reaction}
		}
	}

	if r.LiveAt(now) {
		st.phase = models.RoomPhaseLive
		st.timer = roomtimer.New(s.clock, r.CreatedAt, r.ExpiresAt)
	} else {
		st.phase = models.RoomPhaseExpiring
		st.room.IsActive = false
	}
	s.state = st
	if st.timer != nil {
		s.startTimerLocked(r.ID, st.timer)
	}
	s.touchLocked()
	s.mu.Unlock()

	log.Info().
		Str("room_id", r.ID.String()).
		Str("code", r.Code).
		Str("user_id", s.identity.UserID).
		Str("phase", string(st.phase)).
		Msg("adopted room")

	s.syncWatcher()
	s.changed()
}

func (s *Store) startTimerLocked(roomID uuid.UUID, t *roomtimer.Timer) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.state.timerCancel = cancel

	go t.Watch(ctx, s.cfg.TickInterval,
		func(remaining int) {
			if s.onTick != nil && remaining > 0 {
				s.onTick(Tick{
					RoomID:           roomID,
					RemainingSeconds: remaining,
					PercentRemaining: t.PercentRemaining(),
				})
			}
		},
		func() {
			log.Info().Str("room_id", roomID.String()).Msg("room timer expired")
			if err := s.HandleExpiry(s.ctx, roomID); err != nil {
				log.Debug().Err(err).Str("room_id", roomID.String()).Msg("expiry trigger ignored")
			}
		},
	)
}

func (s *Store) stopTimerLocked() {
	if s.state.timerCancel != nil {
		s.state.timerCancel()
		s.state.timerCancel = nil
	}
}

// syncWatcher points the realtime watcher at whatever room is current.
func (s *Store) syncWatcher() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return
	}

	s.mu.Lock()
	current := uuid.Nil
	if s.state.room != nil {
		current = s.state.room.ID
	}
	since := s.state.adoptedAt
	s.mu.Unlock()

	if current == s.watching {
		return
	}
	if s.watching != uuid.Nil {
		s.watcher.Unwatch()
		s.watching = uuid.Nil
	}
	if current == uuid.Nil {
		return
	}
	if err := s.watcher.Watch(current, since); err != nil {
		log.Error().Err(err).Str("room_id", current.String()).Msg("failed to watch room")
		return
	}
	s.watching = current
}

// isCurrentLocked reports whether roomID is still the current room.
func (s *Store) isCurrentLocked(roomID uuid.UUID) bool {
	return s.state.room != nil && s.state.room.ID == roomID
}

// requireRoomLocked checks the identity and the current room.
func (s *Store) requireRoomLocked() (uuid.UUID, error) {
	if s.identity.UserID == "" {
		return uuid.Nil, ErrNoUser
	}
	if s.state.room == nil {
		return uuid.Nil, ErrNoRoom
	}
	return s.state.room.ID, nil
}

// requireLiveLocked additionally rejects rooms that are no longer active.
func (s *Store) requireLiveLocked(op string) (uuid.UUID, error) {
	roomID, err := s.requireRoomLocked()
	if err != nil {
		return uuid.Nil, err
	}
	if s.state.phase != models.RoomPhaseLive || !s.state.room.LiveAt(s.clock.Now()) {
		log.Warn().
			Str("room_id", roomID.String()).
			Str("user_id", s.identity.UserID).
			Str("op", op).
			Msg("rejected operation on inactive room")
		return uuid.Nil, ErrRoomInactive
	}
	return roomID, nil
}

func (s *Store) touchLocked() {
	s.version++
}

// changed publishes a fresh view and saves the resume snapshot.
func (s *Store) changed() {
	s.mu.Lock()
	view := s.viewLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(view)
	}
	s.saveSnapshot(snap)
}

func (st *roomState) insertMessage(m models.Message) bool {
	for _, existing := range st.messages {
		if existing.ID == m.ID {
			return false
		}
	}
	i := sort.Search(len(st.messages), func(i int) bool {
		return st.messages[i].Timestamp.After(m.Timestamp)
	})
	st.messages = append(st.messages, models.Message{})
	copy(st.messages[i+1:], st.messages[i:])
	st.messages[i] = m
	return true
}

func (st *roomState) hasSuggestion(id uuid.UUID) bool {
	for _, sg := range st.suggestions {
		if sg.ID == id {
			return true
		}
	}
	return false
}

func (st *roomState) hasParticipant(userID string) bool {
	for _, p := range st.participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
