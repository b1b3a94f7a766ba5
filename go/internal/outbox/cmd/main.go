package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tabletalk/go/internal/datastore/db"
	"github.com/mcdev12/tabletalk/go/internal/dbconfig"
	"github.com/mcdev12/tabletalk/go/internal/natsutil"
	"github.com/mcdev12/tabletalk/go/internal/outbox"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	// DB config
	cfg := dbconfig.NewConfigFromEnv()
	dsn := cfg.DSN()
	conn, err := dbconfig.Open(context.Background(), "postgres", cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer conn.Close()

	// NATS + JetStream publisher
	natsCfg := natsutil.DefaultConfig()
	natsCfg.Name = "tabletalk-outbox"
	if url := os.Getenv("NATS_URL"); url != "" {
		natsCfg.URL = url
	}
	nc, err := natsutil.Connect(natsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to NATS")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream context")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	publisher, err := outbox.NewJetStreamPublisher(startCtx, js, natsutil.DefaultStreamConfig())
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}

	// Listener config
	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	if iv := os.Getenv("FALLBACK_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			ltCfg.FallbackInterval = d
		}
	}

	repo := outbox.NewRepository(db.New(conn))
	listener, err := outbox.NewListener(repo, publisher, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	healthAddr := ":8081"
	if port := os.Getenv("HEALTH_PORT"); port != "" {
		healthAddr = ":" + port
	}
	mux := http.NewServeMux()
	mux.Handle("/health", outbox.NewHealthChecker(listener, conn, repo, nc, 2*time.Minute))
	healthSrv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", healthAddr).Msg("health endpoint listening")
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox listener")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		<-errCh
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
