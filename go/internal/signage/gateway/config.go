package gateway

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultResumeLead is how far in the future a resume target is placed.
const DefaultResumeLead = 3 * time.Second

// DefaultAnchor is the reference start every gateway instance uses until an
// operator issues a resume. It must not depend on when a process started.
var DefaultAnchor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultStateBucket is the JetStream key-value bucket holding fleet
// playback state.
const DefaultStateBucket = "SIGNAGE_PLAYBACK"

// Config holds configuration for the display gateway
type Config struct {
	Connection  ConnectionConfig        `yaml:"connection"`
	JetStream   JetStreamConsumerConfig `yaml:"jetstream"`
	NATSEnabled bool                    `yaml:"nats_enabled"`
	ResumeLead  time.Duration           `yaml:"resume_lead"`
	Anchor      time.Time               `yaml:"anchor"`
	StateBucket string                  `yaml:"state_bucket"`
}

// DefaultConfig returns default configuration for the display gateway
func DefaultConfig() Config {
	return Config{
		Connection:  DefaultConnectionConfig(),
		JetStream:   DefaultJetStreamConsumerConfig(),
		ResumeLead:  DefaultResumeLead,
		Anchor:      DefaultAnchor,
		StateBucket: DefaultStateBucket,
	}
}

// LoadConfig starts from the defaults, applies the YAML file at path when
// one is given, then applies environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.ResumeLead <= 0 {
		cfg.ResumeLead = DefaultResumeLead
	}
	if cfg.Anchor.IsZero() {
		cfg.Anchor = DefaultAnchor
	}
	if cfg.StateBucket == "" {
		cfg.StateBucket = DefaultStateBucket
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.JetStream.Stream.URL = getEnv("NATS_URL", c.JetStream.Stream.URL)
	c.JetStream.ConsumerName = getEnv("GATEWAY_CONSUMER_NAME", c.JetStream.ConsumerName)
	c.NATSEnabled = getEnvAsBool("NATS_ENABLED", c.NATSEnabled)
	c.ResumeLead = getEnvAsDuration("RESUME_LEAD", c.ResumeLead)
	c.Anchor = getEnvAsTime("PLAYBACK_ANCHOR", c.Anchor)
	c.StateBucket = getEnv("STATE_BUCKET", c.StateBucket)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsTime(key string, defaultValue time.Time) time.Time {
	if value := os.Getenv(key); value != "" {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t
		}
	}
	return defaultValue
}
