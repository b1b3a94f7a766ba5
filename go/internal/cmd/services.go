package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mcdev12/tabletalk/go/internal/datastore"
	"github.com/mcdev12/tabletalk/go/internal/gateway"
	"github.com/mcdev12/tabletalk/go/internal/realtime"
	"github.com/mcdev12/tabletalk/go/internal/results"
	"github.com/mcdev12/tabletalk/go/internal/room"
	"github.com/mcdev12/tabletalk/go/internal/snapshot"
)

type Services struct {
	Connections *gateway.ConnectionManager
	Gateway     *gateway.WebSocketHandler
	Results     *results.Service
}

func setupServices(ctx context.Context, cfg *Config, database *sql.DB, nc *nats.Conn, js jetstream.JetStream) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → Session/App layer → Transport layer
	clock := clockwork.NewRealClock()
	repo := datastore.NewRepository(database)

	// Realtime
	bus := realtime.NewNATSBus(nc, cfg.NATS.BroadcastPrefix)
	backend := gateway.Backend{
		Data:        repo,
		Broadcaster: bus,
		Changes:     realtime.NewJetStreamFeed(js, cfg.feedConfig()),
		Bus:         bus,
		Clock:       clock,
		Room:        cfg.Room,
	}

	// Session snapshots
	if cfg.Snapshots.Enabled {
		kv, err := snapshot.EnsureBucket(ctx, js, cfg.Snapshots.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure snapshot bucket: %w", err)
		}
		backend.Snapshots = func(userID string) room.SnapshotStore {
			return snapshot.NewStore(kv, userID)
		}
	}

	// Gateway
	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CommandTimeout = cfg.Server.CommandTimeout
	connCfg.CheckOrigin = originChecker(cfg.Server.AllowedOrigins)
	connections := gateway.NewConnectionManager(connCfg, backend)

	// Results
	resultsApp := results.NewApp(repo, clock)
	resultsService := results.NewService(resultsApp)

	return &Services{
		Connections: connections,
		Gateway:     gateway.NewWebSocketHandler(connections),
		Results:     resultsService,
	}, nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 || slices.Contains(allowed, "*") {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
