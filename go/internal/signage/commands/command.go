package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCommand is returned for commands that cannot be applied.
var ErrInvalidCommand = errors.New("invalid command")

// Type is the kind of operator command fanned out to gateways
type Type string

const (
	TypePause       Type = "pause"
	TypeResume      Type = "resume"
	TypePushContent Type = "pushContent"
	TypeFullResync  Type = "fullResync"
)

// Valid reports whether t is a known command type.
func (t Type) Valid() bool {
	switch t {
	case TypePause, TypeResume, TypePushContent, TypeFullResync:
		return true
	}
	return false
}

// Command is an operator request addressed to a set of displays. An empty
// DisplayIDs list addresses every display.
type Command struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	DisplayIDs []string  `json:"display_ids,omitempty"`
	TargetTime time.Time `json:"target_time,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// New creates a command with a fresh ID.
func New(t Type, displayIDs []string, issuedAt time.Time) Command {
	return Command{
		ID:         uuid.New().String(),
		Type:       t,
		DisplayIDs: displayIDs,
		IssuedAt:   issuedAt,
	}
}

// Validate checks that the command carries what its type needs.
func (c Command) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Type)
	}
	if (c.Type == TypeResume || c.Type == TypeFullResync) && c.TargetTime.IsZero() {
		return fmt.Errorf("%w: %s requires a target time", ErrInvalidCommand, c.Type)
	}
	return nil
}

// Subject returns the NATS subject the command is published on.
func Subject(prefix string, t Type) string {
	return fmt.Sprintf("%s.%s", prefix, t)
}

// Encode marshals the command for the wire.
func Encode(c Command) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	return data, nil
}

// Decode unmarshals and validates a command.
func Decode(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// ParseDisplayIDs splits a comma separated list of public identifiers.
// Blank entries and repeats are dropped; an empty result means all displays.
func ParseDisplayIDs(s string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
