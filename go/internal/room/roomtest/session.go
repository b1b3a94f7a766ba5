package roomtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/room"
)

// Broadcasts records everything a store broadcasts.
type Broadcasts struct {
	mu   sync.Mutex
	sent []events.Broadcast
	Err  error
}

func (b *Broadcasts) Broadcast(ctx context.Context, roomID uuid.UUID, msg events.Broadcast) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
	return b.Err
}

// Sent returns a copy of the recorded broadcasts.
func (b *Broadcasts) Sent() []events.Broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Broadcast{}, b.sent...)
}

// Snapshots is an in-memory room.SnapshotStore.
type Snapshots struct {
	mu    sync.Mutex
	snap  *room.Snapshot
	saves int
}

func (s *Snapshots) Load(ctx context.Context) (*room.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, nil
	}
	out := *s.snap
	return &out, nil
}

func (s *Snapshots) Save(ctx context.Context, snap room.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snap
	s.saves++
	return nil
}

func (s *Snapshots) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}

// Current returns the stored snapshot, or nil.
func (s *Snapshots) Current() *room.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil
	}
	out := *s.snap
	return &out
}

// Watcher records Watch and Unwatch calls.
type Watcher struct {
	mu      sync.Mutex
	watched []uuid.UUID
	active  uuid.UUID
}

func (w *Watcher) Watch(roomID uuid.UUID, since time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, roomID)
	w.active = roomID
	return nil
}

func (w *Watcher) Unwatch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = uuid.Nil
}

// Active returns the room currently watched, or uuid.Nil.
func (w *Watcher) Active() uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Watched returns every room Watch was called for, in order.
func (w *Watcher) Watched() []uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uuid.UUID{}, w.watched...)
}
