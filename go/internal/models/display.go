package models

import (
	"time"

	"github.com/google/uuid"
)

// TransitionMode defines how a display animates between steps.
type TransitionMode string

const (
	TransitionModeNormal TransitionMode = "normal"
	TransitionModePush   TransitionMode = "push"
)

// Valid reports whether the mode is one the players understand.
func (m TransitionMode) Valid() bool {
	return m == TransitionModeNormal || m == TransitionModePush
}

// Display represents a physical signage screen.
type Display struct {
	ID             uuid.UUID      `json:"id"`
	PublicID       string         `json:"public_id"`
	Name           string         `json:"name"`
	IntervalMs     int            `json:"interval_ms"`
	TransitionMode TransitionMode `json:"transition_mode"`
	MenuIDs        []uuid.UUID    `json:"menu_ids"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
