package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/mcdev12/signage/go/internal/dbconfig"
	"github.com/mcdev12/signage/go/internal/displays"
	"github.com/mcdev12/signage/go/internal/signage/commands"
	"github.com/mcdev12/signage/go/internal/signage/control"
	"github.com/mcdev12/signage/go/internal/signage/gateway"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
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

	port := getEnv("GATEWAY_PORT", "8081")

	cfg, err := gateway.LoadConfig(os.Getenv("GATEWAY_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load gateway config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	repo, memRepo, closeRepo := setupRepository()
	defer closeRepo()
	app := displays.NewApp(repo)

	gatewayService, err := gateway.NewService(cfg, app, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	// Content edits in the displays file go straight to the screens
	if memRepo != nil {
		go func() {
			err := displays.WatchFile(ctx, os.Getenv("DISPLAYS_FILE"), memRepo, func(ctx context.Context) {
				if err := gatewayService.Coordinator().PushContent(ctx, gateway.AllDisplays()); err != nil {
					log.Error().Err(err).Msg("failed to push reloaded content")
				}
			})
			if err != nil {
				log.Error().Err(err).Msg("displays file watcher stopped")
			}
		}()
	}

	dispatcher, closeDispatcher := setupDispatcher(cfg, gatewayService)
	defer closeDispatcher()
	controlService := control.NewService(dispatcher, clock, cfg.ResumeLead)

	server := setupServer(port, gatewayService, controlService)

	log.Info().
		Str("port", port).
		Bool("jetstream", cfg.NATSEnabled).
		Dur("resume_lead", cfg.ResumeLead).
		Msg("starting display gateway")

	// Start gateway service (connection manager and command consumer)
	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	log.Info().Msg("display gateway shutdown complete")
}

// setupRepository uses the YAML displays file when DISPLAYS_FILE is set and
// Postgres otherwise.
func setupRepository() (displays.DisplaysRepository, *displays.MemoryRepository, func()) {
	if path := os.Getenv("DISPLAYS_FILE"); path != "" {
		repo, err := displays.LoadMemoryRepository(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load displays file")
		}
		log.Info().Str("path", path).Int("displays", repo.Len()).Msg("using displays file")
		return repo, repo, func() {}
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := dbCfg.Open("postgres")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")

	return displays.NewRepository(db), nil, func() { db.Close() }
}

// setupDispatcher publishes commands to JetStream when NATS is enabled so
// that every gateway instance applies them; otherwise commands go straight
// to this instance's coordinator.
func setupDispatcher(cfg gateway.Config, svc *gateway.Service) (control.Dispatcher, func()) {
	if !cfg.NATSEnabled {
		return control.NewLocalDispatcher(svc.Coordinator()), func() {}
	}

	publisher, err := commands.NewPublisher(cfg.JetStream.Stream)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream publisher")
	}
	return control.NewStreamDispatcher(publisher), func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close publisher")
		}
	}
}

func setupServer(port string, gatewayService *gateway.Service, controlService *control.Service) *http.Server {
	router := mux.NewRouter()

	gatewayService.RegisterRoutes(router)

	controlPath, controlHandler := control.NewHandler(controlService)
	router.PathPrefix(controlPath).Handler(controlHandler)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:        fmt.Sprintf(":%s", port),
		Handler:     h2c.NewHandler(c.Handler(router), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
