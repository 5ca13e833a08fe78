package events

import (
	"time"

	"github.com/mcdev12/signage/go/internal/models"
)

// RegisterPayload is sent by a display right after connecting
type RegisterPayload struct {
	DisplayID string `json:"display_id"`
}

// ContentGroup is one menu resolved for the wire
type ContentGroup struct {
	MenuID string            `json:"menu_id"`
	Kind   models.MenuKind   `json:"kind"`
	Images []models.ImageRef `json:"images,omitempty"`
}

// ContentPayload is the payload for a contentUpdate event
type ContentPayload struct {
	DisplayID      string                `json:"display_id"`
	Groups         []ContentGroup        `json:"groups"`
	IntervalMs     int                   `json:"interval_ms"`
	TransitionMode models.TransitionMode `json:"transition_mode"`
}

// RegisteredPayload is the payload for a successful registration
type RegisteredPayload struct {
	Display models.Display `json:"display"`
	Content ContentPayload `json:"content"`
	// Anchor is the fleet's current reference start time, zero if unknown.
	Anchor time.Time `json:"anchor,omitempty"`
	Paused bool      `json:"paused"`
}

// FailurePayload carries a human readable reason for a failed registration or update
type FailurePayload struct {
	DisplayID string `json:"display_id,omitempty"`
	Reason    string `json:"reason"`
}

// PausePayload is the payload for a pause event
type PausePayload struct {
	PausedAt time.Time `json:"paused_at,omitempty"`
}

// SyncPayload is the payload for resume and fullResync events
type SyncPayload struct {
	ServerTime time.Time `json:"server_time"`
	TargetTime time.Time `json:"target_time"`
}
