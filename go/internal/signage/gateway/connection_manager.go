package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/signage/events"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ClientHandler reacts to messages sent by display sockets
type ClientHandler interface {
	HandleRegister(ctx context.Context, conn *Connection, publicID string)
}

// ConnectionManager owns the display sockets: it upgrades them, pumps
// their reads and writes, and fans events out to registry groups.
type ConnectionManager struct {
	registry *Registry
	clock    clockwork.Clock
	handler  ClientHandler

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Event broadcasting
	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a display
type Connection struct {
	ID         string
	RemoteAddr string
	Conn       *websocket.Conn
	Send       chan []byte
	Manager    *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time

	// Displays only ever need to register; anything faster is a misbehaving client
	limiter *rate.Limiter

	mu       sync.Mutex
	lastPing time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	RegisterTimeout time.Duration `yaml:"register_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	SendBufferSize  int           `yaml:"send_buffer_size"`
	BroadcastBuffer int           `yaml:"broadcast_buffer"`
	MessageRate     float64       `yaml:"message_rate"` // client messages per second
	MessageBurst    int           `yaml:"message_burst"`

	CheckOrigin func(r *http.Request) bool `yaml:"-"`
}

// BroadcastMessage represents an event to deliver to a set of displays
type BroadcastMessage struct {
	Target Target
	Event  *events.Envelope
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		RegisterTimeout: 5 * time.Second,
		MaxMessageSize:  1024, // register is the only client message
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBufferSize:  64,
		BroadcastBuffer: 1000,
		MessageRate:     1,
		MessageBurst:    5,
		CheckOrigin: func(r *http.Request) bool {
			// Displays run on kiosk origins we do not control
			return true
		},
	}
}

// withDefaults fills zero values from DefaultConnectionConfig
func (c ConnectionConfig) withDefaults() ConnectionConfig {
	d := DefaultConnectionConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.RegisterTimeout <= 0 {
		c.RegisterTimeout = d.RegisterTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.BroadcastBuffer <= 0 {
		c.BroadcastBuffer = d.BroadcastBuffer
	}
	if c.MessageRate <= 0 {
		c.MessageRate = d.MessageRate
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = d.MessageBurst
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	return c
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, registry *Registry, clock clockwork.Clock) *ConnectionManager {
	config = config.withDefaults()

	return &ConnectionManager{
		registry: registry,
		clock:    clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// SetClientHandler installs the handler for client messages
func (cm *ConnectionManager) SetClientHandler(h ClientHandler) {
	cm.handler = h
}

// Registry returns the session registry the manager enrols sockets in
func (cm *ConnectionManager) Registry() *Registry {
	return cm.registry
}

// Start processes broadcast messages until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := cm.newConnection(ws, r.RemoteAddr)
	cm.registry.Connect(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", connection.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) newConnection(ws *websocket.Conn, remoteAddr string) *Connection {
	now := cm.clock.Now()
	return &Connection{
		ID:          uuid.New().String(),
		RemoteAddr:  remoteAddr,
		Conn:        ws,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		limiter:     rate.NewLimiter(rate.Limit(cm.config.MessageRate), cm.config.MessageBurst),
		lastPing:    now,
		done:        make(chan struct{}),
	}
}

// unregisterConnection removes a connection from the registry and closes it
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	conn.close()
	if cm.registry.Unregister(conn) {
		log.Info().
			Str("connection_id", conn.ID).
			Msg("connection unregistered")
	}
}

// Broadcast queues event for every socket addressed by target. It never
// blocks; when the queue is full the event is dropped.
func (cm *ConnectionManager) Broadcast(target Target, event *events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Target: target, Event: event}:
	default:
		log.Warn().
			Str("target", target.String()).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// SendTo delivers event to a single socket.
func (cm *ConnectionManager) SendTo(conn *Connection, event *events.Envelope) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event")
		return
	}
	cm.deliver([]*Connection{conn}, data)
}

// handleBroadcast resolves the target against the registry and sends
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	var targets []*Connection
	if message.Target.IsAll() {
		targets = cm.registry.All()
	} else {
		for _, id := range message.Target.DisplayIDs {
			targets = append(targets, cm.registry.Members(id)...)
		}
	}
	if len(targets) == 0 {
		return
	}

	// Marshal the event once
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	cm.deliver(targets, eventData)

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("target", message.Target.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) deliver(targets []*Connection, data []byte) {
	for _, conn := range targets {
		if conn.enqueue(data) {
			continue
		}
		if conn.closed() {
			continue
		}
		// Connection is slow or dead, close it
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() RegistryStats {
	return cm.registry.Stats()
}

func (c *Connection) enqueue(data []byte) bool {
	if c.closed() {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) closed() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		if c.done != nil {
			close(c.done)
		}
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// LastPing returns when the display last answered a ping
func (c *Connection) LastPing() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPing
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastPing = c.Manager.clock.Now()
	c.mu.Unlock()
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer c.Manager.unregisterConnection(c)

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		if c.limiter.Allow() {
			c.handleClientMessage(message)
		} else {
			log.Warn().
				Str("connection_id", c.ID).
				Msg("client message rate exceeded, dropping message")
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes messages received from the display
func (c *Connection) handleClientMessage(message []byte) {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Msg("ignoring unreadable client message")
		return
	}

	switch env.Type {
	case events.EventTypeRegister:
		payload, err := events.ParsePayload(&env)
		publicID := env.DisplayID
		if err == nil {
			if p := payload.(events.RegisterPayload); p.DisplayID != "" {
				publicID = p.DisplayID
			}
		}
		if publicID == "" {
			c.rejectRegistration("register message has no display id")
			return
		}
		if c.Manager.handler == nil {
			c.rejectRegistration("gateway is not accepting registrations")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.RegisterTimeout)
		defer cancel()
		c.Manager.handler.HandleRegister(ctx, c, publicID)

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", string(env.Type)).
			Msg("ignoring client message")
	}
}

func (c *Connection) rejectRegistration(reason string) {
	log.Warn().
		Str("connection_id", c.ID).
		Str("reason", reason).
		Msg("rejecting registration")

	env, err := events.New(events.EventTypeRegistrationFailed, "", c.Manager.clock.Now(),
		events.FailurePayload{Reason: reason})
	if err != nil {
		return
	}
	c.Manager.SendTo(c, env)
}
