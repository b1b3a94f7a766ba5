// Package snapshot stores the resumable slice of a client session in a
// JetStream key-value bucket.
package snapshot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mcdev12/tabletalk/go/internal/room"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// StorageKey prefixes every session key in the bucket.
const StorageKey = "tabletalk-room-storage"

type Config struct {
	Bucket   string        `yaml:"bucket"`
	TTL      time.Duration `yaml:"ttl"`
	Replicas int           `yaml:"replicas"`
}

func DefaultConfig() Config {
	return Config{
		Bucket:   "TABLETALK_SESSIONS",
		TTL:      48 * time.Hour,
		Replicas: 1,
	}
}

// EnsureBucket creates the session bucket, or binds to it when it exists.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, cfg Config) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "TableTalk resumable client sessions",
		TTL:         cfg.TTL,
		History:     1,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure key-value bucket: %w", err)
	}
	log.Info().Str("bucket", cfg.Bucket).Dur("ttl", cfg.TTL).Msg("session bucket ready")
	return kv, nil
}

// bucket is the part of jetstream.KeyValue a Store uses.
type bucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// Store is a room.SnapshotStore for one user.
type Store struct {
	kv  bucket
	key string
}

func NewStore(kv jetstream.KeyValue, userID string) *Store {
	return &Store{kv: kv, key: Key(userID)}
}

var validKeyPart = regexp.MustCompile(`^[-_=a-zA-Z0-9]+$`)

// Key returns the bucket key for a user. User ids that are not valid key
// tokens are base64url encoded.
func Key(userID string) string {
	if validKeyPart.MatchString(userID) {
		return StorageKey + "." + userID
	}
	return StorageKey + ".b64-" + base64.RawURLEncoding.EncodeToString([]byte(userID))
}

func (s *Store) Load(ctx context.Context) (*room.Snapshot, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap room.Snapshot
	if err := json.Unmarshal(entry.Value(), &snap); err != nil {
		// a corrupt hint is as good as none
		log.Warn().Err(err).Str("key", s.key).Msg("discarding unreadable snapshot")
		return nil, nil
	}
	return &snap, nil
}

func (s *Store) Save(ctx context.Context, snap room.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if _, err := s.kv.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}
