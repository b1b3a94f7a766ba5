package roomtimer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultTickInterval is how often Watch recomputes the countdown.
	DefaultTickInterval = time.Second

	// FallbackDuration replaces a room duration too short to be real input.
	FallbackDuration = 30 * time.Minute

	minDuration = 60 * time.Second
)

// Timer derives a room's countdown from its absolute timestamps.
type Timer struct {
	clock     clockwork.Clock
	createdAt time.Time
	expiresAt time.Time
	total     time.Duration

	mu      sync.Mutex
	expired bool
}

// New builds a timer for a room. The total duration used for percentages is
// fixed here.
func New(clock clockwork.Clock, createdAt, expiresAt time.Time) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	total := expiresAt.Sub(createdAt)
	if total <= minDuration {
		total = FallbackDuration
	}
	return &Timer{
		clock:     clock,
		createdAt: createdAt,
		expiresAt: expiresAt,
		total:     total,
	}
}

// ExpiresAt returns the deadline the timer counts down to.
func (t *Timer) ExpiresAt() time.Time {
	return t.expiresAt
}

// RemainingSeconds is the whole number of seconds left, rounded up, and never
// negative.
func (t *Timer) RemainingSeconds() int {
	left := t.expiresAt.Sub(t.clock.Now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// IsExpired reports whether the countdown has reached zero.
func (t *Timer) IsExpired() bool {
	return t.RemainingSeconds() <= 0
}

// PercentRemaining returns the remaining share of the room duration in [0,100].
func (t *Timer) PercentRemaining() float64 {
	left := t.expiresAt.Sub(t.clock.Now())
	pct := float64(left) / float64(t.total) * 100
	return math.Max(0, math.Min(100, pct))
}

// Tick samples the countdown. justExpired is true exactly once, on the first
// sample that observes the room as expired.
func (t *Timer) Tick() (remaining int, justExpired bool) {
	remaining = t.RemainingSeconds()

	t.mu.Lock()
	defer t.mu.Unlock()
	if remaining <= 0 && !t.expired {
		t.expired = true
		return remaining, true
	}
	return remaining, false
}

// Watch ticks every interval until the room expires or ctx is done. onTick
// receives each sample and onExpire runs once on the expiry edge, after which
// Watch returns.
func (t *Timer) Watch(ctx context.Context, interval time.Duration, onTick func(remaining int), onExpire func()) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	if t.sample(onTick, onExpire) {
		return
	}

	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if t.sample(onTick, onExpire) {
				return
			}
		}
	}
}

func (t *Timer) sample(onTick func(int), onExpire func()) bool {
	remaining, justExpired := t.Tick()
	if onTick != nil {
		onTick(remaining)
	}
	if justExpired {
		if onExpire != nil {
			onExpire()
		}
		return true
	}
	return remaining <= 0
}
