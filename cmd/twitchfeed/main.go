package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AndrewBeshay/moblin/internal/chat"
	"github.com/AndrewBeshay/moblin/internal/config"
	"github.com/AndrewBeshay/moblin/internal/eventsub"
	"github.com/AndrewBeshay/moblin/internal/helix"
	"github.com/AndrewBeshay/moblin/internal/logging"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupHelix(cfg *config.Config) *helix.Client {
	client, err := helix.NewClient(cfg.TwitchClientID, helix.StaticToken(cfg.AccessToken))
	if err != nil {
		slog.Error("Failed to create helix client", "error", err)
		os.Exit(1)
	}
	return client
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Metrics server listening", "addr", addr)
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting twitchfeed", "channel", cfg.Channel, "anonymous", cfg.Anonymous())

	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr)
	}

	renderer := newRenderer(os.Stdout)

	var assets *chat.AssetStore
	var helixClient *helix.Client
	if !cfg.Anonymous() {
		helixClient = setupHelix(cfg)
		assets = chat.NewAssetStore(helixClient, clock)
	}

	chatClient := chat.NewClient(chat.Config{
		Channel:     cfg.Channel,
		ChannelID:   cfg.ChannelID,
		Nickname:    cfg.Nickname,
		AccessToken: cfg.AccessToken,
		URL:         cfg.ChatURL,
	}, renderer, assets, clock)
	chatClient.Start()
	defer chatClient.Stop()

	if cfg.EventSubEnabled() {
		session := eventsub.NewSession(eventsub.Config{
			URL:      cfg.EventSubURL,
			Identity: eventsub.Identity{BroadcasterID: cfg.ChannelID, UserID: cfg.UserID},
		}, renderer, helixClient, clock)
		session.Start()
		defer session.Stop()
	} else {
		slog.Info("EventSub disabled, chat only")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
}
