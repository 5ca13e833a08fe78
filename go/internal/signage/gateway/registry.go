package gateway

import (
	"sort"
	"sync"

	"github.com/mcdev12/signage/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionState is where a connection is in its lifecycle
type SessionState int

const (
	StateUnknown SessionState = iota
	StateConnected
	StateRegistered
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type session struct {
	state   SessionState
	display models.Display
}

// Registry tracks connected display sockets and the identity each one
// registered as. Sockets are grouped by display public ID so commands can
// address one display, a subset, or all of them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Connection]*session
	groups   map[string]map[*Connection]bool
}

// RegistryStats summarises the registry for the stats endpoints
type RegistryStats struct {
	TotalConnections   int            `json:"total_connections"`
	RegisteredSockets  int            `json:"registered_sockets"`
	RegisteredDisplays int            `json:"registered_displays"`
	DisplayConnections map[string]int `json:"display_connections"`
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Connection]*session),
		groups:   make(map[string]map[*Connection]bool),
	}
}

// Connect records a new socket that has not registered yet.
func (r *Registry) Connect(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[conn]; exists {
		return
	}
	r.sessions[conn] = &session{state: StateConnected}
}

// Register binds conn to display and enrols it in that display's group.
// Registering again moves the socket to the new display's group. It returns
// false if the socket is not connected.
func (r *Registry) Register(conn *Connection, display models.Display) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[conn]
	if !exists {
		return false
	}

	if s.state == StateRegistered {
		r.leaveGroupLocked(conn, s.display.PublicID)
	}

	s.state = StateRegistered
	s.display = display

	if r.groups[display.PublicID] == nil {
		r.groups[display.PublicID] = make(map[*Connection]bool)
	}
	r.groups[display.PublicID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("display_id", display.PublicID).
		Int("display_connections", len(r.groups[display.PublicID])).
		Msg("connection registered")

	return true
}

// Lookup returns the display conn registered as.
func (r *Registry) Lookup(conn *Connection) (models.Display, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[conn]
	if !exists || s.state != StateRegistered {
		return models.Display{}, false
	}
	return s.display, true
}

// State reports the lifecycle state of conn.
func (r *Registry) State(conn *Connection) SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[conn]
	if !exists {
		if conn.closed() {
			return StateDisconnected
		}
		return StateUnknown
	}
	return s.state
}

// Unregister forgets conn entirely. It reports whether conn was known.
func (r *Registry) Unregister(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[conn]
	if !exists {
		return false
	}
	if s.state == StateRegistered {
		r.leaveGroupLocked(conn, s.display.PublicID)
	}
	s.state = StateDisconnected
	delete(r.sessions, conn)
	return true
}

func (r *Registry) leaveGroupLocked(conn *Connection, publicID string) {
	group, exists := r.groups[publicID]
	if !exists {
		return
	}
	delete(group, conn)
	if len(group) == 0 {
		delete(r.groups, publicID)
	}
}

// Members returns the sockets registered as publicID.
func (r *Registry) Members(publicID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := r.groups[publicID]
	conns := make([]*Connection, 0, len(group))
	for conn := range group {
		conns = append(conns, conn)
	}
	return conns
}

// All returns every registered socket.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Connection
	for _, group := range r.groups {
		for conn := range group {
			conns = append(conns, conn)
		}
	}
	return conns
}

// DisplayIDs returns the public IDs with at least one registered socket.
func (r *Registry) DisplayIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns connection counts
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		TotalConnections:   len(r.sessions),
		RegisteredDisplays: len(r.groups),
		DisplayConnections: make(map[string]int, len(r.groups)),
	}
	for id, group := range r.groups {
		stats.DisplayConnections[id] = len(group)
		stats.RegisteredSockets += len(group)
	}
	return stats
}
