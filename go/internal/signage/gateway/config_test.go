package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultResumeLead, cfg.ResumeLead)
	assert.False(t, cfg.NATSEnabled)
	assert.Equal(t, 30*time.Second, cfg.Connection.PingInterval)
	assert.Equal(t, "SIGNAGE_COMMANDS", cfg.JetStream.Stream.StreamName)
	assert.True(t, DefaultAnchor.Equal(cfg.Anchor))
	assert.Equal(t, DefaultStateBucket, cfg.StateBucket)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	body := `
resume_lead: 5s
nats_enabled: false
connection:
  ping_interval: 15s
  send_buffer_size: 16
jetstream:
  consumer_name: gw-a
  stream:
    subject_prefix: screens.commands
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("PLAYBACK_ANCHOR", "2025-06-01T12:00:00Z")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ResumeLead)
	assert.True(t, cfg.NATSEnabled, "environment wins over the file")
	assert.Equal(t, 15*time.Second, cfg.Connection.PingInterval)
	assert.Equal(t, 16, cfg.Connection.SendBufferSize)
	assert.Equal(t, 10*time.Second, cfg.Connection.WriteTimeout, "unset fields keep defaults")
	assert.Equal(t, "gw-a", cfg.JetStream.ConsumerName)
	assert.Equal(t, "screens.commands", cfg.JetStream.Stream.SubjectPrefix)
	assert.Equal(t, "SIGNAGE_COMMANDS", cfg.JetStream.Stream.StreamName)
	assert.Equal(t, "nats://nats:4222", cfg.JetStream.Stream.URL)
	assert.True(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Equal(cfg.Anchor))
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resume_lead: [oops"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestConnectionConfig_WithDefaults(t *testing.T) {
	cfg := ConnectionConfig{SendBufferSize: 3}.withDefaults()

	assert.Equal(t, 3, cfg.SendBufferSize)
	assert.Equal(t, DefaultConnectionConfig().PingInterval, cfg.PingInterval)
	assert.Equal(t, DefaultConnectionConfig().RegisterTimeout, cfg.RegisterTimeout)
	assert.NotNil(t, cfg.CheckOrigin)
}
