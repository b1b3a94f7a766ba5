package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tabletalk/go/internal/datastore"
	"github.com/mcdev12/tabletalk/go/internal/dbconfig"
	"github.com/mcdev12/tabletalk/go/internal/natsutil"
	"github.com/mcdev12/tabletalk/go/internal/orchestrator"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	conn, err := dbconfig.Open(ctx, "postgres", dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	natsCfg := natsutil.DefaultConfig()
	natsCfg.Name = "tabletalk-orchestrator"
	if url := os.Getenv("NATS_URL"); url != "" {
		natsCfg.URL = url
	}
	nc, err := natsutil.Connect(natsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream context")
	}
	if err := natsutil.EnsureStream(ctx, js, natsutil.DefaultStreamConfig()); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure change stream")
	}

	cfg := orchestrator.DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("SWEEPER_WORKERS")); err == nil && v > 0 {
		cfg.NumWorkers = v
	}
	if iv := os.Getenv("SWEEPER_IDLE_POLL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			cfg.IdlePoll = d
		}
	}

	orch := orchestrator.NewOrchestrator(datastore.NewRepository(conn), cfg, clockwork.NewRealClock())

	wake, err := orchestrator.NewWakeConsumer(ctx, js, orch, orchestrator.DefaultConsumerConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup wake consumer")
	}

	log.Info().
		Str("database", dbCfg.Database).
		Str("nats_url", natsCfg.URL).
		Int("workers", cfg.NumWorkers).
		Msg("starting expiry sweeper")

	errCh := make(chan error, 2)
	go func() {
		errCh <- orch.RunScheduler(ctx)
	}()
	go func() {
		errCh <- wake.Start(ctx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.PingContext(r.Context()); err != nil || !nc.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         ":8082",
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if port := os.Getenv("HEALTH_PORT"); port != "" {
		server.Addr = ":" + port
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("sweeper exited unexpectedly")
		}
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}

	log.Info().Msg("expiry sweeper shutdown complete")
}
