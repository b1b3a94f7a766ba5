package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/natsutil"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type FeedConfig struct {
	StreamName    string        `yaml:"stream_name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	ReplayWindow  time.Duration `yaml:"replay_window"` // how far before the snapshot to start replaying
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		StreamName:    natsutil.DefaultChangeStream,
		SubjectPrefix: natsutil.DefaultChangePrefix,
		ReplayWindow:  5 * time.Second,
	}
}

// JetStreamFeed reads a room's change events with an ephemeral ordered
// consumer. Ordered consumers recreate themselves on gaps, so a reconnect
// never skips events.
type JetStreamFeed struct {
	js  jetstream.JetStream
	cfg FeedConfig
}

func NewJetStreamFeed(js jetstream.JetStream, cfg FeedConfig) *JetStreamFeed {
	return &JetStreamFeed{js: js, cfg: cfg}
}

func (f *JetStreamFeed) Subscribe(ctx context.Context, roomID uuid.UUID, since time.Time, handle func(events.Envelope)) (Subscription, error) {
	cc := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{natsutil.RoomChangesFilter(f.cfg.SubjectPrefix, roomID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if !since.IsZero() {
		start := since.Add(-f.cfg.ReplayWindow)
		cc.DeliverPolicy = jetstream.DeliverByStartTimePolicy
		cc.OptStartTime = &start
	}

	cons, err := f.js.OrderedConsumer(ctx, f.cfg.StreamName, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create ordered consumer: %w", err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		var env events.Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			log.Warn().
				Err(err).
				Str("subject", msg.Subject()).
				Str("room_id", roomID.String()).
				Msg("failed to unmarshal change envelope")
			return
		}
		handle(env)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming room changes: %w", err)
	}
	return consumeSubscription{consumeCtx}, nil
}

type consumeSubscription struct {
	cc jetstream.ConsumeContext
}

func (s consumeSubscription) Stop() {
	s.cc.Stop()
}
