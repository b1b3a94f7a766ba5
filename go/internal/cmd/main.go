package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tabletalk/go/internal/natsutil"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := loadConfig(getEnv("TABLETALK_CONFIG", defaultConfigPath))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer database.Close()

	nc, err := natsutil.Connect(cfg.NATS.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream context")
	}
	if err := natsutil.EnsureStream(ctx, js, cfg.NATS.Stream); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure change stream")
	}

	services, err := setupServices(ctx, cfg, database, nc, js)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}

	server := setupServer(cfg, services, func() error {
		if !nc.IsConnected() {
			return errors.New("nats disconnected")
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(pingCtx); err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("nats_url", cfg.NATS.URL).
			Bool("snapshots", cfg.Snapshots.Enabled).
			Msg("tabletalk server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().
		Interface("connections", services.Connections.GetConnectionStats()["total_connections"]).
		Msg("tabletalk server shutdown complete")
}
