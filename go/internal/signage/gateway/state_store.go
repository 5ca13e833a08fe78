package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// PlaybackState is the anchor and pause flag handed to registering displays.
type PlaybackState struct {
	Anchor   time.Time `json:"anchor"`
	Paused   bool      `json:"paused"`
	PausedAt time.Time `json:"paused_at,omitempty"`
}

// FleetState is everything a coordinator needs to rebuild its playback
// state after a restart.
type FleetState struct {
	Fleet     PlaybackState            `json:"fleet"`
	Overrides map[string]PlaybackState `json:"overrides,omitempty"`
}

// StateStore persists FleetState outside the gateway process so that
// restarted or newly started instances agree with the rest of the fleet.
type StateStore interface {
	// Load returns nil and no error when nothing has been saved yet.
	Load(ctx context.Context) (*FleetState, error)
	Save(ctx context.Context, state FleetState) error
}

// MemoryStateStore keeps the state in memory. Coordinators sharing one
// instance behave like gateways sharing a bucket.
type MemoryStateStore struct {
	mu    sync.Mutex
	state *FleetState
}

// NewMemoryStateStore creates an empty store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (s *MemoryStateStore) Load(context.Context) (*FleetState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, nil
	}
	st := cloneFleetState(*s.state)
	return &st, nil
}

func (s *MemoryStateStore) Save(_ context.Context, state FleetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := cloneFleetState(state)
	s.state = &st
	return nil
}

const fleetStateKey = "fleet"

// KVStateStore keeps the state in a JetStream key-value bucket.
type KVStateStore struct {
	kv jetstream.KeyValue
}

// NewKVStateStore creates or opens bucket.
func NewKVStateStore(ctx context.Context, js jetstream.JetStream, bucket string) (*KVStateStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Signage fleet playback state",
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("open state bucket %s: %w", bucket, err)
	}
	return &KVStateStore{kv: kv}, nil
}

func (s *KVStateStore) Load(ctx context.Context) (*FleetState, error) {
	entry, err := s.kv.Get(ctx, fleetStateKey)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fleet state: %w", err)
	}

	var st FleetState
	if err := json.Unmarshal(entry.Value(), &st); err != nil {
		return nil, fmt.Errorf("decode fleet state: %w", err)
	}
	return &st, nil
}

func (s *KVStateStore) Save(ctx context.Context, state FleetState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode fleet state: %w", err)
	}
	if _, err := s.kv.Put(ctx, fleetStateKey, data); err != nil {
		return fmt.Errorf("save fleet state: %w", err)
	}
	return nil
}

func cloneFleetState(st FleetState) FleetState {
	out := FleetState{Fleet: st.Fleet}
	if len(st.Overrides) > 0 {
		out.Overrides = make(map[string]PlaybackState, len(st.Overrides))
		for id, o := range st.Overrides {
			out.Overrides[id] = o
		}
	}
	return out
}
