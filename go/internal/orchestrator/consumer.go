package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/natsutil"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	SubjectPrefix string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		StreamName:    natsutil.DefaultChangeStream,
		ConsumerName:  "tabletalk-expiry-sweeper",
		SubjectPrefix: natsutil.DefaultChangePrefix,
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// WakeConsumer wakes the scheduler whenever a room is created, so a room
// shorter than the current sleep still closes on time.
type WakeConsumer struct {
	orch     *Orchestrator
	consumer jetstream.Consumer
	cfg      ConsumerConfig
}

func NewWakeConsumer(ctx context.Context, js jetstream.JetStream, orch *Orchestrator, cfg ConsumerConfig) (*WakeConsumer, error) {
	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	consumer, err := stream.Consumer(ctx, cfg.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
			Name:          cfg.ConsumerName,
			Durable:       cfg.ConsumerName,
			Description:   "Wakes the expiry sweeper on new rooms",
			FilterSubject: natsutil.EventTypeFilter(cfg.SubjectPrefix, events.EventTypeRoomCreated),
			DeliverPolicy: jetstream.DeliverNewPolicy, // older rooms are found by the scheduler itself
			AckPolicy:     jetstream.AckExplicitPolicy,
			MaxDeliver:    cfg.MaxDeliver,
			AckWait:       cfg.AckWait,
			MaxAckPending: cfg.MaxAckPending,
			ReplayPolicy:  jetstream.ReplayInstantPolicy,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
		log.Info().Str("consumer", cfg.ConsumerName).Msg("created JetStream consumer for sweeper")
	} else {
		log.Info().Str("consumer", cfg.ConsumerName).Msg("using existing JetStream consumer for sweeper")
	}

	return &WakeConsumer{orch: orch, consumer: consumer, cfg: cfg}, nil
}

func (c *WakeConsumer) Start(ctx context.Context) error {
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		if err := c.handle(msg.Data()); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process sweeper event")
			// redelivery will not fix a malformed message
			if termErr := msg.Term(); termErr != nil {
				log.Error().Err(termErr).Msg("failed to terminate message")
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Str("consumer", c.cfg.ConsumerName).Msg("sweeper consumer shutting down")
	return nil
}

func (c *WakeConsumer) handle(data []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	log.Debug().
		Str("room_id", env.RoomID).
		Str("event_type", env.EventType).
		Msg("processing sweeper event")

	if env.EventType == events.EventTypeRoomCreated {
		c.orch.Wake()
	}
	return nil
}
