package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/tabletalk/go/internal/natsutil"
	"github.com/mcdev12/tabletalk/go/internal/realtime"
	"github.com/mcdev12/tabletalk/go/internal/room"
	"github.com/mcdev12/tabletalk/go/internal/snapshot"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "tabletalk.yaml"

type Config struct {
	Server struct {
		Port           string        `yaml:"port"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		CommandTimeout time.Duration `yaml:"command_timeout"`
	} `yaml:"server"`
	Room      room.Config `yaml:"room"`
	NATS      NATSConfig  `yaml:"nats"`
	Snapshots struct {
		Enabled         bool `yaml:"enabled"`
		snapshot.Config `yaml:",inline"`
	} `yaml:"snapshots"`
}

type NATSConfig struct {
	natsutil.Config `yaml:",inline"`
	Stream          natsutil.StreamConfig `yaml:"stream"`
	BroadcastPrefix string                `yaml:"broadcast_prefix"`
	ReplayWindow    time.Duration         `yaml:"replay_window"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Room: room.DefaultConfig(),
		NATS: NATSConfig{
			Config:          natsutil.DefaultConfig(),
			Stream:          natsutil.DefaultStreamConfig(),
			BroadcastPrefix: natsutil.DefaultBroadcastPrefix,
			ReplayWindow:    realtime.DefaultFeedConfig().ReplayWindow,
		},
	}
	cfg.Server.Port = "8080"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.CommandTimeout = 15 * time.Second
	cfg.NATS.Name = "tabletalk-server"
	cfg.Snapshots.Enabled = true
	cfg.Snapshots.Config = snapshot.DefaultConfig()
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads the YAML file at path over the defaults. A missing file
// is not an error. PORT and NATS_URL override whatever the file says.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	return config, nil
}

func (c *Config) feedConfig() realtime.FeedConfig {
	return realtime.FeedConfig{
		StreamName:    c.NATS.Stream.Name,
		SubjectPrefix: c.NATS.Stream.SubjectPrefix,
		ReplayWindow:  c.NATS.ReplayWindow,
	}
}
