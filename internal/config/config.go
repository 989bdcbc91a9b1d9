package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	Channel        string `env:"TWITCH_CHANNEL"`
	ChannelID      string `env:"TWITCH_CHANNEL_ID"`
	UserID         string `env:"TWITCH_USER_ID"`
	Nickname       string `env:"TWITCH_NICKNAME"`
	TwitchClientID string `env:"TWITCH_CLIENT_ID"`
	AccessToken    string `env:"TWITCH_ACCESS_TOKEN"`

	ChatURL     string `env:"TWITCH_CHAT_URL" default:"wss://irc-ws.chat.twitch.tv"`
	EventSubURL string `env:"TWITCH_EVENTSUB_URL" default:"wss://eventsub.wss.twitch.tv/ws"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Anonymous reports whether chat runs read-only without credentials.
func (c *Config) Anonymous() bool {
	return c.AccessToken == ""
}

// EventSubEnabled reports whether EventSub can run; it needs an
// authenticated user, unlike anonymous chat.
func (c *Config) EventSubEnabled() bool {
	return !c.Anonymous() && c.UserID != "" && c.TwitchClientID != ""
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"TWITCH_CHANNEL":    cfg.Channel,
		"TWITCH_CHANNEL_ID": cfg.ChannelID,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	cfg.Channel = strings.ToLower(strings.TrimPrefix(cfg.Channel, "#"))

	if cfg.AccessToken != "" {
		if cfg.Nickname == "" {
			return fmt.Errorf("TWITCH_NICKNAME is required when TWITCH_ACCESS_TOKEN is set")
		}
		if cfg.TwitchClientID == "" {
			return fmt.Errorf("TWITCH_CLIENT_ID is required when TWITCH_ACCESS_TOKEN is set")
		}
	}

	return nil
}
