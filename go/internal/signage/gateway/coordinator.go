package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/displays"
	"github.com/mcdev12/signage/go/internal/playback"
	"github.com/mcdev12/signage/go/internal/signage/commands"
	"github.com/mcdev12/signage/go/internal/signage/events"
	"github.com/rs/zerolog/log"
)

const stateSaveTimeout = 5 * time.Second

// ErrConnectionClosed is returned when registering a socket that already went away.
var ErrConnectionClosed = errors.New("connection closed")

// ContentLoader resolves a display and the menus it rotates through
type ContentLoader interface {
	LoadContent(ctx context.Context, publicID string) (*displays.Content, error)
}

// Broadcaster delivers events to display sockets without waiting on them
type Broadcaster interface {
	Broadcast(target Target, event *events.Envelope)
	SendTo(conn *Connection, event *events.Envelope)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithDefaultAnchor sets the anchor used before any resume has been issued.
// Every gateway instance must use the same value.
func WithDefaultAnchor(anchor time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if !anchor.IsZero() {
			c.fleet.Anchor = anchor
		}
	}
}

// WithStateStore persists the playback state after every pause or resume.
// Call Restore to read it back.
func WithStateStore(store StateStore) CoordinatorOption {
	return func(c *Coordinator) {
		c.store = store
	}
}

// Coordinator turns operator commands into display events. It remembers the
// anchor and pause flag it last sent so that displays registering later
// start in phase with the rest of the fleet.
type Coordinator struct {
	clock    clockwork.Clock
	loader   ContentLoader
	registry *Registry
	out      Broadcaster
	store    StateStore

	mu        sync.Mutex
	fleet     PlaybackState
	overrides map[string]PlaybackState
}

// NewCoordinator creates a coordinator anchored at DefaultAnchor unless an
// option says otherwise.
func NewCoordinator(clock clockwork.Clock, loader ContentLoader, registry *Registry, out Broadcaster, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		clock:     clock,
		loader:    loader,
		registry:  registry,
		out:       out,
		fleet:     PlaybackState{Anchor: DefaultAnchor},
		overrides: make(map[string]PlaybackState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore replaces the in-memory playback state with the last one saved to
// the store. An empty store keeps the defaults.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	st, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore playback state: %w", err)
	}
	if st == nil {
		log.Info().Time("anchor", c.fleet.Anchor).Msg("no saved playback state, using default anchor")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !st.Fleet.Anchor.IsZero() {
		c.fleet = st.Fleet
	} else {
		c.fleet.Paused = st.Fleet.Paused
		c.fleet.PausedAt = st.Fleet.PausedAt
	}
	c.overrides = make(map[string]PlaybackState, len(st.Overrides))
	for id, o := range st.Overrides {
		c.overrides[id] = o
	}

	log.Info().
		Time("anchor", c.fleet.Anchor).
		Bool("paused", c.fleet.Paused).
		Int("overrides", len(c.overrides)).
		Msg("playback state restored")
	return nil
}

// HandleRegister implements ClientHandler
func (c *Coordinator) HandleRegister(ctx context.Context, conn *Connection, publicID string) {
	if err := c.Register(ctx, conn, publicID); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Str("display_id", publicID).
			Msg("display registration failed")
	}
}

// Register resolves publicID and enrols conn in that display's group. An
// unknown display receives registrationFailed. Any other load error is
// reported as updateFailed so the display keeps its current schedule and
// retries; the socket stays unregistered in both cases.
func (c *Coordinator) Register(ctx context.Context, conn *Connection, publicID string) error {
	content, err := c.loader.LoadContent(ctx, publicID)
	if err != nil {
		if errors.Is(err, displays.ErrDisplayNotFound) {
			c.sendFailure(conn, events.EventTypeRegistrationFailed, publicID,
				fmt.Sprintf("display %q not found", publicID))
		} else {
			c.sendFailure(conn, events.EventTypeUpdateFailed, publicID, "failed to load display content")
		}
		return fmt.Errorf("register %s: %w", publicID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.Register(conn, content.Display) {
		return fmt.Errorf("register %s: %w", publicID, ErrConnectionClosed)
	}

	st := c.stateLocked(publicID)
	env, err := events.New(events.EventTypeRegistered, publicID, c.clock.Now(), events.RegisteredPayload{
		Display: content.Display,
		Content: contentPayload(content),
		Anchor:  st.Anchor,
		Paused:  st.Paused,
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", publicID, err)
	}
	c.out.SendTo(conn, env)

	log.Info().
		Str("connection_id", conn.ID).
		Str("display_id", publicID).
		Int("menus", len(content.Menus)).
		Bool("paused", st.Paused).
		Time("anchor", st.Anchor).
		Msg("display registered")

	return nil
}

// Pause stops the addressed displays immediately.
func (c *Coordinator) Pause(target Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.applyLocked(target, func(s *PlaybackState) {
		s.Paused = true
		s.PausedAt = now
	})

	env, err := events.New(events.EventTypePaused, singleDisplay(target), now, events.PausePayload{PausedAt: now})
	if err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	c.out.Broadcast(target, env)

	log.Info().Str("target", target.String()).Msg("pause broadcast")
	return nil
}

// Resume tells the addressed displays to restart from the first step at
// targetTime, which becomes their new anchor.
func (c *Coordinator) Resume(target Target, targetTime time.Time) error {
	return c.sync(events.EventTypeResumed, target, targetTime)
}

// FullResync asks the addressed displays to reload at targetTime.
func (c *Coordinator) FullResync(target Target, targetTime time.Time) error {
	return c.sync(events.EventTypeFullResync, target, targetTime)
}

func (c *Coordinator) sync(eventType events.EventType, target Target, targetTime time.Time) error {
	if targetTime.IsZero() {
		return fmt.Errorf("%s: %w", eventType, playback.ErrNoTargetTime)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.applyLocked(target, func(s *PlaybackState) {
		s.Anchor = targetTime
		s.Paused = false
		s.PausedAt = time.Time{}
	})

	// serverTime is stamped as late as possible so displays can estimate transit.
	now := c.clock.Now()
	env, err := events.New(eventType, singleDisplay(target), now, events.SyncPayload{
		ServerTime: now,
		TargetTime: targetTime,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", eventType, err)
	}
	c.out.Broadcast(target, env)

	log.Info().
		Str("event_type", string(eventType)).
		Str("target", target.String()).
		Time("target_time", targetTime).
		Dur("lead", targetTime.Sub(now)).
		Msg("sync broadcast")
	return nil
}

// PushContent reloads content for the addressed displays and sends it to
// their sockets. Displays whose content cannot be resolved receive
// updateFailed and keep playing what they have.
func (c *Coordinator) PushContent(ctx context.Context, target Target) error {
	ids := target.DisplayIDs
	if target.IsAll() {
		ids = c.registry.DisplayIDs()
	}

	var errs []error
	for _, id := range ids {
		if err := c.pushContent(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) pushContent(ctx context.Context, publicID string) error {
	content, err := c.loader.LoadContent(ctx, publicID)
	if err != nil {
		reason := "failed to load display content"
		if errors.Is(err, displays.ErrDisplayNotFound) {
			reason = fmt.Sprintf("display %q not found", publicID)
		}
		env, envErr := events.New(events.EventTypeUpdateFailed, publicID, c.clock.Now(),
			events.FailurePayload{DisplayID: publicID, Reason: reason})
		if envErr == nil {
			c.out.Broadcast(Displays(publicID), env)
		}
		return fmt.Errorf("push content to %s: %w", publicID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	members := c.registry.Members(publicID)
	for _, conn := range members {
		c.registry.Register(conn, content.Display)
	}

	env, err := events.New(events.EventTypeContentUpdated, publicID, c.clock.Now(), contentPayload(content))
	if err != nil {
		return fmt.Errorf("push content to %s: %w", publicID, err)
	}
	c.out.Broadcast(Displays(publicID), env)

	log.Info().
		Str("display_id", publicID).
		Int("menus", len(content.Menus)).
		Int("connections", len(members)).
		Msg("content pushed")
	return nil
}

// Apply executes a command received from the control surface.
func (c *Coordinator) Apply(ctx context.Context, cmd commands.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	target := Target{DisplayIDs: cmd.DisplayIDs}
	switch cmd.Type {
	case commands.TypePause:
		return c.Pause(target)
	case commands.TypeResume:
		return c.Resume(target, cmd.TargetTime)
	case commands.TypeFullResync:
		return c.FullResync(target, cmd.TargetTime)
	case commands.TypePushContent:
		return c.PushContent(ctx, target)
	}
	return fmt.Errorf("%w: %s", commands.ErrInvalidCommand, cmd.Type)
}

// State returns the anchor and pause flag a display registering now would get.
func (c *Coordinator) State(publicID string) (anchor time.Time, paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stateLocked(publicID)
	return st.Anchor, st.Paused
}

func (c *Coordinator) stateLocked(publicID string) PlaybackState {
	if st, ok := c.overrides[publicID]; ok {
		return st
	}
	return c.fleet
}

// applyLocked mutates the state of every display addressed by target. A
// fleet wide change discards per display overrides. The result is saved to
// the state store when one is configured.
func (c *Coordinator) applyLocked(target Target, fn func(*PlaybackState)) {
	if target.IsAll() {
		fn(&c.fleet)
		c.overrides = make(map[string]PlaybackState)
	} else {
		for _, id := range target.DisplayIDs {
			st := c.stateLocked(id)
			fn(&st)
			c.overrides[id] = st
		}
	}
	c.saveLocked()
}

func (c *Coordinator) saveLocked() {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stateSaveTimeout)
	defer cancel()

	st := cloneFleetState(FleetState{Fleet: c.fleet, Overrides: c.overrides})
	if err := c.store.Save(ctx, st); err != nil {
		log.Error().Err(err).Msg("failed to save playback state")
	}
}

func (c *Coordinator) sendFailure(conn *Connection, eventType events.EventType, publicID, reason string) {
	env, err := events.New(eventType, publicID, c.clock.Now(), events.FailurePayload{
		DisplayID: publicID,
		Reason:    reason,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build failure event")
		return
	}
	c.out.SendTo(conn, env)
}

func singleDisplay(target Target) string {
	if len(target.DisplayIDs) == 1 {
		return target.DisplayIDs[0]
	}
	return ""
}

func contentPayload(content *displays.Content) events.ContentPayload {
	groups := make([]events.ContentGroup, 0, len(content.Menus))
	for _, m := range content.Menus {
		groups = append(groups, events.ContentGroup{
			MenuID: m.ID.String(),
			Kind:   m.Kind,
			Images: m.Images,
		})
	}
	return events.ContentPayload{
		DisplayID:      content.Display.PublicID,
		Groups:         groups,
		IntervalMs:     content.Display.IntervalMs,
		TransitionMode: content.Display.TransitionMode,
	}
}
