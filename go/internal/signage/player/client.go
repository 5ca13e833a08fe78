package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/signage/events"
	"github.com/rs/zerolog/log"
)

// ClientConfig holds configuration for the display socket
type ClientConfig struct {
	GatewayURL       string        `yaml:"gateway_url"`
	MinBackoff       time.Duration `yaml:"min_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PongWait         time.Duration `yaml:"pong_wait"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		GatewayURL:       "ws://localhost:8081/ws/display",
		MinBackoff:       time.Second,
		MaxBackoff:       30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongWait:         90 * time.Second,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.GatewayURL == "" {
		c.GatewayURL = d.GatewayURL
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = d.MinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = c.MinBackoff
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	return c
}

// SocketURL turns an http(s) or ws(s) base into the display socket URL.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid gateway url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid gateway url %q: unsupported scheme", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws/display"
	}
	return u.String(), nil
}

// Client keeps a display socket open to the gateway and feeds what it
// receives into a Player. The scheduler keeps running on whatever state it
// had while the socket is down.
type Client struct {
	config    ClientConfig
	player    *Player
	clock     clockwork.Clock
	dialer    *websocket.Dialer
	reconnect chan struct{}
}

// NewClient creates a client for player
func NewClient(config ClientConfig, player *Player, clock clockwork.Clock) *Client {
	config = config.withDefaults()
	c := &Client{
		config: config,
		player: player,
		clock:  clock,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
		reconnect: make(chan struct{}, 1),
	}
	player.SetReload(c.Reload)
	return c
}

// Reload drops the current socket so that the next one re-registers and
// receives fresh content.
func (c *Client) Reload() {
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

// Run connects, registers and pumps events until ctx is cancelled,
// reconnecting with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	socketURL, err := SocketURL(c.config.GatewayURL)
	if err != nil {
		return err
	}

	backoff := c.config.MinBackoff
	for {
		registered, err := c.session(ctx, socketURL)
		if ctx.Err() != nil {
			return nil
		}
		if registered {
			backoff = c.config.MinBackoff
		}

		if errors.Is(err, errReload) {
			log.Info().Str("display_id", c.player.DisplayID()).Msg("reconnecting for full resync")
			continue
		}

		log.Warn().
			Err(err).
			Str("display_id", c.player.DisplayID()).
			Dur("backoff", backoff).
			Msg("display socket closed, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(backoff):
		}

		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}
}

var errReload = errors.New("reload requested")

// session runs one socket from dial to close. It reports whether the
// gateway accepted the registration.
func (c *Client) session(ctx context.Context, socketURL string) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial %s: %w", socketURL, err)
	}
	defer conn.Close()

	log.Info().Str("url", socketURL).Str("display_id", c.player.DisplayID()).Msg("connected to gateway")

	// Drain a reload queued before this socket existed.
	select {
	case <-c.reconnect:
	default:
	}

	if err := c.register(conn); err != nil {
		return false, err
	}

	conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.config.WriteTimeout))
	})

	done := make(chan struct{})
	defer close(done)

	reloaded := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.config.WriteTimeout))
			conn.Close()
		case <-c.reconnect:
			close(reloaded)
			conn.Close()
		case <-done:
		}
	}()

	registered := false
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-reloaded:
				return registered, errReload
			default:
			}
			return registered, fmt.Errorf("read: %w", err)
		}

		var env events.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn().Err(err).Msg("failed to parse gateway event")
			continue
		}

		if err := c.player.HandleEvent(ctx, &env); err != nil {
			log.Warn().
				Err(err).
				Str("type", string(env.Type)).
				Str("event_id", env.ID).
				Msg("failed to apply gateway event")
			continue
		}
		switch env.Type {
		case events.EventTypeRegistered:
			registered = true
		case events.EventTypeRegistrationFailed:
			// Retry on the backoff schedule; the display may be created later.
			return false, fmt.Errorf("registration rejected: %s", c.player.Failure())
		case events.EventTypeUpdateFailed:
			// The gateway could not load content for our register. The
			// player keeps its schedule while we retry.
			if !registered {
				return false, fmt.Errorf("registration deferred: %s", c.player.Failure())
			}
		}
	}
}

func (c *Client) register(conn *websocket.Conn) error {
	displayID := c.player.DisplayID()
	env, err := events.New(events.EventTypeRegister, displayID, c.clock.Now(), events.RegisterPayload{DisplayID: displayID})
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send register: %w", err)
	}
	return nil
}
