package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/signage/go/internal/displays"
	"github.com/mcdev12/signage/go/internal/signage/commands"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// CommandApplier executes operator commands against local sockets
type CommandApplier interface {
	Apply(ctx context.Context, cmd commands.Command) error
}

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	Stream            commands.JetStreamConfig `yaml:"stream"`
	ConsumerName      string                   `yaml:"consumer_name"`      // must be unique per gateway instance
	MaxDeliver        int                      `yaml:"max_deliver"`        // Max delivery attempts
	AckWait           time.Duration            `yaml:"ack_wait"`           // How long to wait for ack
	MaxAckPending     int                      `yaml:"max_ack_pending"`    // Max messages pending ack
	InactiveThreshold time.Duration            `yaml:"inactive_threshold"` // consumer is removed after this long without a gateway
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return JetStreamConsumerConfig{
		Stream:            commands.DefaultJetStreamConfig(),
		ConsumerName:      "signage-gateway-" + host,
		MaxDeliver:        5,
		AckWait:           10 * time.Second,
		MaxAckPending:     100,
		InactiveThreshold: time.Hour,
	}
}

// EventConsumer consumes operator commands from JetStream and applies them
// to the displays connected to this gateway
type EventConsumer struct {
	applier  CommandApplier
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConsumerConfig
}

// NewEventConsumer creates a new JetStream command consumer
func NewEventConsumer(applier CommandApplier, config JetStreamConsumerConfig) (*EventConsumer, error) {
	nc, js, err := commands.Connect(config.Stream)
	if err != nil {
		return nil, err
	}

	ec := &EventConsumer{
		applier: applier,
		nc:      nc,
		js:      js,
		config:  config,
	}

	if err := ec.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

// ensureConsumer makes sure the stream exists and creates or gets this
// instance's durable consumer
func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	if err := commands.EnsureStream(ctx, ec.js, ec.config.Stream); err != nil {
		return err
	}

	stream, err := ec.js.Stream(ctx, ec.config.Stream.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:              ec.config.ConsumerName,
		Durable:           ec.config.ConsumerName,
		Description:       "Signage gateway command consumer",
		FilterSubject:     fmt.Sprintf("%s.>", ec.config.Stream.SubjectPrefix),
		DeliverPolicy:     jetstream.DeliverNewPolicy, // old commands are meaningless after a restart
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        ec.config.MaxDeliver,
		AckWait:           ec.config.AckWait,
		MaxAckPending:     ec.config.MaxAckPending,
		InactiveThreshold: ec.config.InactiveThreshold,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ec.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.Stream.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.Stream.StreamName).
			Msg("using existing JetStream consumer")
	}

	ec.consumer = consumer
	return nil
}

// Start begins consuming commands from JetStream
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.Stream.StreamName).
		Msg("starting JetStream command consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("command consumer shutting down")
			return nil
		case msg := <-messageCh:
			ec.handle(ctx, msg)
		}
	}
}

func (ec *EventConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	err := ec.processMessage(ctx, msg.Data())
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	case errors.Is(err, commands.ErrInvalidCommand), errors.Is(err, displays.ErrDisplayNotFound):
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping command that cannot succeed")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
	default:
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process command")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
	}
}

// processMessage decodes and applies a single command
func (ec *EventConsumer) processMessage(ctx context.Context, data []byte) error {
	cmd, err := commands.Decode(data)
	if err != nil {
		return err
	}

	log.Debug().
		Str("command_id", cmd.ID).
		Str("type", string(cmd.Type)).
		Strs("display_ids", cmd.DisplayIDs).
		Msg("processing command")

	if err := ec.applier.Apply(ctx, cmd); err != nil {
		return fmt.Errorf("apply %s: %w", cmd.Type, err)
	}
	return nil
}

// Stop closes the NATS connection
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping command consumer")

	if ec.nc != nil {
		ec.nc.Close()
	}

	return nil
}

// GetConsumerInfo returns information about the consumer
func (ec *EventConsumer) GetConsumerInfo(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	return ec.consumer.Info(ctx)
}
