// Package orchestrator closes rooms whose timer ran out, whether or not any
// client is still connected to them.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/rs/zerolog/log"
)

// RoomRepository defines what the orchestrator needs from the data layer.
type RoomRepository interface {
	FetchNextExpiry(ctx context.Context) (*time.Time, error)
	FetchRoomsDueForClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListSuggestions(ctx context.Context, roomID uuid.UUID) ([]models.Suggestion, error)
	ListVotes(ctx context.Context, roomID uuid.UUID) ([]models.Vote, error)
	CloseRoom(ctx context.Context, roomID uuid.UUID, result []byte) error
}

type Config struct {
	BatchSize   int           // how many due rooms to claim at once
	NumWorkers  int
	IdlePoll    time.Duration // how long to sleep when no room is open
	SettleDelay time.Duration // pause after dispatching a batch
	MaxRetries  int           // consecutive FetchNextExpiry failures tolerated
}

func DefaultConfig() Config {
	return Config{
		BatchSize:   100,
		NumWorkers:  4,
		IdlePoll:    30 * time.Second,
		SettleDelay: time.Second,
		MaxRetries:  3,
	}
}

type Orchestrator struct {
	repo       RoomRepository
	cfg        Config
	clock      clockwork.Clock
	wakeCh     chan struct{}
	instanceID string // unique ID for this scheduler instance

	workCh chan uuid.UUID

	// Track in-flight work to prevent duplicate processing
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

func NewOrchestrator(repo RoomRepository, cfg Config, clock clockwork.Clock) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	return &Orchestrator{
		repo:       repo,
		cfg:        cfg,
		clock:      clock,
		wakeCh:     make(chan struct{}, 1),
		instanceID: uuid.New().String()[:8], // short ID for logging
		workCh:     make(chan uuid.UUID, cfg.NumWorkers*2),
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Wake makes the scheduler re-read the next deadline, for example after a
// room with a sooner deadline was created.
func (o *Orchestrator) Wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// RunScheduler loops until ctx is done, sleeping until the next room deadline
// and handing due rooms to the worker pool.
func (o *Orchestrator) RunScheduler(ctx context.Context) error {
	log.Info().Str("instance", o.instanceID).Int("workers", o.cfg.NumWorkers).Msg("scheduler started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.cfg.NumWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
		cancelWorkers()
		wg.Wait()
		log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	}()

	retryCount := 0
	for {
		select {
		case <-o.wakeCh:
		default:
		}

		next, err := o.repo.FetchNextExpiry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			retryCount++
			if retryCount > o.cfg.MaxRetries {
				log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching next expiry after retries")
				return err
			}
			log.Error().
				Err(err).
				Int("retry", retryCount).
				Str("instance", o.instanceID).
				Msg("error fetching next expiry, retrying")
			if !o.sleep(ctx, time.Second*time.Duration(retryCount), false) {
				return nil
			}
			continue
		}
		retryCount = 0

		if next == nil {
			log.Debug().Str("instance", o.instanceID).Dur("poll", o.cfg.IdlePoll).Msg("no open rooms")
			if !o.sleep(ctx, o.cfg.IdlePoll, true) {
				log.Info().Str("instance", o.instanceID).Msg("shutdown during idle")
				return nil
			}
			continue
		}

		if wait := next.Sub(o.clock.Now()); wait > 0 {
			log.Debug().Str("instance", o.instanceID).Time("deadline", *next).Dur("wait", wait).Msg("sleeping until next expiry")
			if !o.sleep(ctx, wait, true) {
				log.Info().Str("instance", o.instanceID).Msg("shutdown during wait")
				return nil
			}
			continue
		}

		if !o.dispatchDue(ctx) {
			return nil
		}
		if !o.sleep(ctx, o.cfg.SettleDelay, true) {
			return nil
		}
	}
}

// dispatchDue queues every due room that is not already being closed. It
// returns false when ctx ended.
func (o *Orchestrator) dispatchDue(ctx context.Context) bool {
	due, err := o.repo.FetchRoomsDueForClose(ctx, o.clock.Now(), o.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching due rooms")
		return ctx.Err() == nil
	}
	if len(due) == 0 {
		return true
	}

	log.Info().
		Int("count_due", len(due)).
		Int("batch_size", o.cfg.BatchSize).
		Str("instance", o.instanceID).
		Msg("processing due rooms")

	for _, roomID := range due {
		o.inFlightMu.Lock()
		if o.inFlight[roomID] {
			log.Debug().Str("room_id", roomID.String()).Str("instance", o.instanceID).Msg("skipping room already in flight")
			o.inFlightMu.Unlock()
			continue
		}
		o.inFlight[roomID] = true
		o.inFlightMu.Unlock()

		select {
		case <-ctx.Done():
			o.release(roomID)
			log.Info().Str("instance", o.instanceID).Msg("shutdown while queueing rooms")
			return false
		case o.workCh <- roomID:
			log.Debug().Str("room_id", roomID.String()).Str("instance", o.instanceID).Msg("queued room for worker")
		}
	}
	return true
}

// sleep waits for d on the orchestrator clock. A wake cuts it short when
// wakeable is set. It returns false when ctx ended.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration, wakeable bool) bool {
	timer := o.clock.NewTimer(d)
	defer timer.Stop()

	wake := o.wakeCh
	if !wakeable {
		wake = nil
	}
	select {
	case <-timer.Chan():
		return true
	case <-wake:
		log.Debug().Str("instance", o.instanceID).Msg("scheduler woken")
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) release(roomID uuid.UUID) {
	o.inFlightMu.Lock()
	delete(o.inFlight, roomID)
	o.inFlightMu.Unlock()
}

func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case roomID := <-o.workCh:
			err := o.closeRoom(ctx, roomID)
			o.release(roomID)
			if err != nil {
				// left for the next sweep
				log.Error().
					Err(err).
					Str("room_id", roomID.String()).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("failed to close expired room")
				continue
			}
			o.Wake()
		}
	}
}
