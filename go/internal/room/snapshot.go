package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const snapshotTimeout = 5 * time.Second

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		ActiveTab:        s.state.activeTab,
		ViewingCompleted: s.state.viewingCompleted,
	}
	if s.state.room != nil {
		r := s.state.room.Clone()
		r.Result = nil
		snap.Room = &r
	}
	return snap
}

func sameSnapshot(a, b *Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ActiveTab != b.ActiveTab || a.ViewingCompleted != b.ViewingCompleted {
		return false
	}
	if a.Room == nil || b.Room == nil {
		return a.Room == b.Room
	}
	return a.Room.ID == b.Room.ID && a.Room.IsActive == b.Room.IsActive
}

// saveSnapshot persists the resume hint when it differs from the last save.
// Failures are logged; the snapshot is only ever a hint.
func (s *Store) saveSnapshot(snap Snapshot) {
	if s.snapshots == nil {
		return
	}

	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if sameSnapshot(s.lastSnapshot, &snap) {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, snapshotTimeout)
	defer cancel()

	var err error
	if snap.Room == nil && snap.ActiveTab == "" {
		err = s.snapshots.Clear(ctx)
	} else {
		snap.SavedAt = s.clock.Now().UTC()
		err = s.snapshots.Save(ctx, snap)
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", s.identity.UserID).Msg("failed to persist session snapshot")
		return
	}
	s.lastSnapshot = &snap
}

// Resume restores a saved session. The saved room is re-joined through the
// data service, so an expired room comes back as a completed one and a room
// that no longer exists is forgotten.
func (s *Store) Resume(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}

	s.snapMu.Lock()
	s.lastSnapshot = snap
	s.snapMu.Unlock()

	s.mu.Lock()
	s.state.activeTab = snap.ActiveTab
	s.touchLocked()
	s.mu.Unlock()

	if snap.Room == nil {
		s.changed()
		return nil
	}

	err = s.JoinRoom(ctx, snap.Room.ID.String())
	if errors.Is(err, ErrRoomNotFound) {
		log.Warn().
			Str("room_id", snap.Room.ID.String()).
			Str("user_id", s.identity.UserID).
			Msg("saved room no longer exists, discarding snapshot")
		s.ResetCurrentRoom()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resume room: %w", err)
	}
	return nil
}
