package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service is the display gateway: it accepts display sockets, registers
// them and relays operator commands to them
type Service struct {
	registry          *Registry
	connectionManager *ConnectionManager
	coordinator       *Coordinator
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	eventConsumer     *EventConsumer
}

// NewService wires the gateway. The JetStream consumer is only created when
// config.NATSEnabled is set; otherwise commands reach the coordinator
// in-process.
func NewService(config Config, loader ContentLoader, clock clockwork.Clock) (*Service, error) {
	registry := NewRegistry()
	connectionManager := NewConnectionManager(config.Connection, registry, clock)
	coordinator := NewCoordinator(clock, loader, registry, connectionManager, WithDefaultAnchor(config.Anchor))
	connectionManager.SetClientHandler(coordinator)

	s := &Service{
		registry:          registry,
		connectionManager: connectionManager,
		coordinator:       coordinator,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(coordinator, registry),
	}

	if config.NATSEnabled {
		eventConsumer, err := NewEventConsumer(coordinator, config.JetStream)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = eventConsumer

		// Restore before the consumer starts so that queued commands apply
		// on top of the saved state.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := NewKVStateStore(ctx, eventConsumer.js, config.StateBucket)
		if err != nil {
			eventConsumer.Stop()
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		coordinator.store = store
		if err := coordinator.Restore(ctx); err != nil {
			log.Warn().Err(err).Msg("starting from default playback state")
		}
	}

	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting display gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("display gateway service shutting down")
	return s.Stop()
}

// Stop shuts down the event consumer
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}

	log.Info().Msg("display gateway service stopped")
	return nil
}

// Coordinator returns the pause/resume coordinator
func (s *Service) Coordinator() *Coordinator {
	return s.coordinator
}

// RegisterRoutes registers the gateway HTTP routes
func (s *Service) RegisterRoutes(router *mux.Router) {
	s.wsHandler.RegisterRoutes(router)
	s.stateHandler.RegisterStateRoutes(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	router.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.GetStats())
	})

	log.Info().Msg("display gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.registry.Stats()
	return map[string]interface{}{
		"service":             "display-gateway",
		"status":              "running",
		"jetstream":           s.eventConsumer != nil,
		"total_connections":   stats.TotalConnections,
		"registered_displays": stats.RegisteredDisplays,
		"display_connections": stats.DisplayConnections,
	}
}
