package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedPayload is returned when an event's data does not decode.
var ErrMalformedPayload = errors.New("malformed event payload")

// EventType represents the type of a display event
type EventType string

const (
	// Client -> server
	EventTypeRegister EventType = "register"

	// Server -> client
	EventTypeRegistered         EventType = "registered"
	EventTypeRegistrationFailed EventType = "registrationFailed"
	EventTypeContentUpdated     EventType = "contentUpdate"
	EventTypeUpdateFailed       EventType = "updateFailed"
	EventTypePaused             EventType = "pause"
	EventTypeResumed            EventType = "resume"
	EventTypeFullResync         EventType = "fullResync"
)

// Envelope is the base structure for every message on the display socket
type Envelope struct {
	ID        string          `json:"id"`                   // Event UUID
	DisplayID string          `json:"display_id,omitempty"` // Display public identifier, empty for fleet-wide events
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope around payload.
func New(eventType EventType, displayID string, at time.Time, payload interface{}) (*Envelope, error) {
	env := &Envelope{
		ID:        uuid.New().String(),
		DisplayID: displayID,
		Type:      eventType,
		Timestamp: at,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		env.Data = data
	}
	return env, nil
}

// Decode unmarshals the envelope data into dst.
func (e *Envelope) Decode(dst interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedPayload, e.Type)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, e.Type, err)
	}
	return nil
}

// ParsePayload parses event data into the payload struct for its type
func ParsePayload(e *Envelope) (interface{}, error) {
	switch e.Type {
	case EventTypeRegister:
		var p RegisterPayload
		if err := e.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil

	case EventTypeRegistered:
		var p RegisteredPayload
		if err := e.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil

	case EventTypeRegistrationFailed, EventTypeUpdateFailed:
		var p FailurePayload
		if err := e.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil

	case EventTypeContentUpdated:
		var p ContentPayload
		if err := e.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil

	case EventTypePaused:
		// Pause carries nothing beyond targeting.
		var p PausePayload
		if len(e.Data) > 0 {
			if err := e.Decode(&p); err != nil {
				return nil, err
			}
		}
		return p, nil

	case EventTypeResumed, EventTypeFullResync:
		var p SyncPayload
		if err := e.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, nil // Unknown event type
	}
}
