package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/natsutil"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// msgPublisher is the part of jetstream.JetStream the publisher uses.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type JetStreamPublisher struct {
	js     msgPublisher
	stream natsutil.StreamConfig
}

// NewJetStreamPublisher makes sure the change stream exists and returns a
// publisher writing to it.
func NewJetStreamPublisher(ctx context.Context, js jetstream.JetStream, stream natsutil.StreamConfig) (*JetStreamPublisher, error) {
	if err := natsutil.EnsureStream(ctx, js, stream); err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}
	return &JetStreamPublisher{js: js, stream: stream}, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	msg, err := buildMessage(p.stream.SubjectPrefix, event)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.stream.Name),
	)
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", event.ID.String()).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Str("stream", ack.Stream).
		Msg("published to JetStream")
	return nil
}

func buildMessage(prefix string, event OutboxEvent) (*nats.Msg, error) {
	env := events.Envelope{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		RoomID:    event.RoomID.String(),
		Timestamp: event.CreatedAt.UTC(),
		Payload:   event.Payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &nats.Msg{
		Subject: natsutil.ChangeSubject(prefix, event.RoomID, event.EventType),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{event.EventType},
			"Room-ID":    []string{event.RoomID.String()},
			"Event-ID":   []string{event.ID.String()},
		},
	}, nil
}
