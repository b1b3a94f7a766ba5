package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/events"
	"github.com/mcdev12/tabletalk/go/internal/natsutil"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSBus carries ephemeral room broadcasts over core NATS. Nothing is
// persisted, so subscribers only see what is sent while they listen.
type NATSBus struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSBus(nc *nats.Conn, prefix string) *NATSBus {
	if prefix == "" {
		prefix = natsutil.DefaultBroadcastPrefix
	}
	return &NATSBus{nc: nc, prefix: prefix}
}

// Broadcast implements room.Broadcaster.
func (b *NATSBus) Broadcast(ctx context.Context, roomID uuid.UUID, msg events.Broadcast) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}
	if err := b.nc.Publish(natsutil.BroadcastSubject(b.prefix, roomID), data); err != nil {
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}
	return nil
}

func (b *NATSBus) Subscribe(roomID uuid.UUID, handle func(events.Broadcast)) (Subscription, error) {
	sub, err := b.nc.Subscribe(natsutil.BroadcastSubject(b.prefix, roomID), func(m *nats.Msg) {
		var msg events.Broadcast
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("failed to unmarshal broadcast")
			return
		}
		handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to broadcasts: %w", err)
	}
	return natsSubscription{sub}, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Stop() {
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		log.Warn().Err(err).Str("subject", s.sub.Subject).Msg("failed to unsubscribe")
	}
}
