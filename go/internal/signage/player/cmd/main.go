package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/signage/player"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	displayID := os.Getenv("DISPLAY_ID")
	if displayID == "" {
		log.Fatal().Msg("DISPLAY_ID is required")
	}

	clock := clockwork.NewRealClock()

	var renderer player.SlideRenderer = player.LogRenderer{DisplayID: displayID}
	if getEnv("PLAYER_RENDERER", "log") == "term" {
		renderer = player.NewTermRenderer(os.Stdout, displayID)
	}

	p := player.New(displayID, clock, renderer,
		player.WithAnimationLead(getEnvAsDuration("ANIMATION_LEAD", 2*time.Second)),
	)
	defer p.Close()

	config := player.DefaultClientConfig()
	config.GatewayURL = getEnv("GATEWAY_URL", "http://localhost:8081")
	config.MinBackoff = getEnvAsDuration("RECONNECT_MIN_BACKOFF", config.MinBackoff)
	config.MaxBackoff = getEnvAsDuration("RECONNECT_MAX_BACKOFF", config.MaxBackoff)
	client := player.NewClient(config, p, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down display player")
		cancel()
	}()

	log.Info().
		Str("display_id", displayID).
		Str("gateway", config.GatewayURL).
		Msg("starting display player")

	if err := client.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("display player failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
