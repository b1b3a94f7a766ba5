// Package natsutil holds the NATS connection and JetStream stream setup shared
// by the TableTalk services.
package natsutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	DefaultChangeStream    = "TABLETALK_CHANGES"
	DefaultChangePrefix    = "tabletalk.changes"
	DefaultBroadcastPrefix = "tabletalk.broadcast"
)

type Config struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "tabletalk",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect dials NATS with reconnect handling that logs through zerolog.
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Error().Err(err).Str("name", cfg.Name).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Str("name", cfg.Name).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Str("name", cfg.Name).Msg("connected to NATS")
	return nc, nil
}

// StreamConfig describes the durable change stream.
type StreamConfig struct {
	Name            string        `yaml:"name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	MaxAge          time.Duration `yaml:"max_age"`
	MaxMsgs         int64         `yaml:"max_msgs"`
	Replicas        int           `yaml:"replicas"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            DefaultChangeStream,
		SubjectPrefix:   DefaultChangePrefix,
		MaxAge:          48 * time.Hour, // rooms last at most a day
		MaxMsgs:         -1,             // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

func (c StreamConfig) jetStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        c.Name,
		Description: "TableTalk room change events",
		Subjects:    []string{c.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      c.MaxAge,
		MaxMsgs:     c.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    c.Replicas,
		Duplicates:  c.DuplicateWindow,
	}
}

// EnsureStream creates the change stream or updates it when its limits drifted.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) error {
	sc := cfg.jetStreamConfig()

	stream, err := js.Stream(ctx, cfg.Name)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream: %w", err)
		}
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		log.Info().Str("stream", cfg.Name).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
		log.Info().Str("stream", cfg.Name).Msg("updated JetStream stream")
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}

// ChangeSubject is the subject a change event for a room is published on.
func ChangeSubject(prefix string, roomID uuid.UUID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, roomID, eventType)
}

// RoomChangesFilter matches every change event of one room.
func RoomChangesFilter(prefix string, roomID uuid.UUID) string {
	return fmt.Sprintf("%s.%s.>", prefix, roomID)
}

// EventTypeFilter matches one event type across all rooms.
func EventTypeFilter(prefix, eventType string) string {
	return fmt.Sprintf("%s.*.%s", prefix, eventType)
}

// BroadcastSubject is the core NATS subject for a room's ephemeral events.
func BroadcastSubject(prefix string, roomID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", prefix, roomID)
}
