package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// DisplayStateResponse is the gateway's view of one display
type DisplayStateResponse struct {
	DisplayID   string    `json:"display_id"`
	Anchor      time.Time `json:"anchor"`
	Paused      bool      `json:"paused"`
	Connections int       `json:"connections"`
	ServerTime  time.Time `json:"server_time"`
}

// StateHandler handles HTTP requests for display playback state
type StateHandler struct {
	coordinator *Coordinator
	registry    *Registry
}

// NewStateHandler creates a new state handler
func NewStateHandler(coordinator *Coordinator, registry *Registry) *StateHandler {
	return &StateHandler{
		coordinator: coordinator,
		registry:    registry,
	}
}

// HandleGetDisplayState handles GET /api/displays/{id}/state
func (h *StateHandler) HandleGetDisplayState(w http.ResponseWriter, r *http.Request) {
	displayID := mux.Vars(r)["id"]
	if displayID == "" {
		http.Error(w, "display id is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, h.state(displayID))
}

// HandleListDisplays handles GET /api/displays
func (h *StateHandler) HandleListDisplays(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.DisplayIDs()
	states := make([]DisplayStateResponse, 0, len(ids))
	for _, id := range ids {
		states = append(states, h.state(id))
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *StateHandler) state(displayID string) DisplayStateResponse {
	anchor, paused := h.coordinator.State(displayID)
	return DisplayStateResponse{
		DisplayID:   displayID,
		Anchor:      anchor,
		Paused:      paused,
		Connections: len(h.registry.Members(displayID)),
		ServerTime:  h.coordinator.clock.Now(),
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(router *mux.Router) {
	router.HandleFunc("/api/displays", h.HandleListDisplays).Methods(http.MethodGet)
	router.HandleFunc("/api/displays/{id}/state", h.HandleGetDisplayState).Methods(http.MethodGet)
}
