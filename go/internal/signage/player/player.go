package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/mcdev12/signage/go/internal/playback"
	"github.com/mcdev12/signage/go/internal/signage/events"
	"github.com/rs/zerolog/log"
)

// Option configures a Player.
type Option func(*Player)

// WithFrameFunc replaces the frame source used while waiting for a resume
// deadline.
func WithFrameFunc(frame playback.FrameFunc) Option {
	return func(p *Player) {
		if frame != nil {
			p.frame = frame
		}
	}
}

// WithReload sets the hook run when a fullResync reaches its deadline.
func WithReload(reload func()) Option {
	return func(p *Player) {
		p.reload = reload
	}
}

// WithAnimationLead forwards the push-mode staging lead to the scheduler.
func WithAnimationLead(d time.Duration) Option {
	return func(p *Player) {
		p.schedulerOpts = append(p.schedulerOpts, playback.WithAnimationLead(d))
	}
}

// Player is the display-side state machine. It applies gateway events to a
// local schedule and drives a playback.Scheduler from it.
type Player struct {
	displayID     string
	clock         clockwork.Clock
	frame         playback.FrameFunc
	reload        func()
	slides        *slideAdapter
	scheduler     *playback.Scheduler
	schedulerOpts []playback.Option

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	registered    bool
	failure       string
	display       models.Display
	state         playback.ScheduleState
	seq           []playback.Step
	pendingGen    uint64
	pendingCancel context.CancelFunc
}

// New creates a player for displayID that paints through renderer.
func New(displayID string, clock clockwork.Clock, renderer SlideRenderer, opts ...Option) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		displayID: displayID,
		clock:     clock,
		frame:     playback.FrameTicker(clock, playback.DefaultFramePeriod),
		slides:    &slideAdapter{out: renderer},
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.scheduler = playback.NewScheduler(clock, p.slides, p.schedulerOpts...)
	return p
}

// DisplayID is the identity this player registers with.
func (p *Player) DisplayID() string {
	return p.displayID
}

// HandleEvent applies one gateway event. Malformed payloads are returned as
// errors and leave the player untouched.
func (p *Player) HandleEvent(ctx context.Context, env *events.Envelope) error {
	switch env.Type {
	case events.EventTypeRegistered:
		var payload events.RegisteredPayload
		if err := env.Decode(&payload); err != nil {
			return err
		}
		p.handleRegistered(payload)

	case events.EventTypeRegistrationFailed:
		var payload events.FailurePayload
		if err := env.Decode(&payload); err != nil {
			return err
		}
		p.handleRegistrationFailed(payload)

	case events.EventTypeContentUpdated:
		var payload events.ContentPayload
		if err := env.Decode(&payload); err != nil {
			return err
		}
		p.handleContentUpdate(payload)

	case events.EventTypeUpdateFailed:
		var payload events.FailurePayload
		if err := env.Decode(&payload); err != nil {
			return err
		}
		p.handleUpdateFailed(payload)

	case events.EventTypePaused:
		p.handlePause()

	case events.EventTypeResumed, events.EventTypeFullResync:
		var payload events.SyncPayload
		if err := env.Decode(&payload); err != nil {
			return err
		}
		return p.handleSync(env.Type, payload)

	default:
		log.Debug().Str("type", string(env.Type)).Msg("ignoring unknown event")
	}
	return nil
}

func (p *Player) handleRegistered(payload events.RegisteredPayload) {
	if payload.Display.PublicID != "" && payload.Display.PublicID != p.displayID {
		log.Warn().
			Str("display_id", p.displayID).
			Str("registered_as", payload.Display.PublicID).
			Msg("ignoring registration for another display")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelPendingLocked()

	anchor := payload.Anchor
	if anchor.IsZero() {
		anchor = p.clock.Now()
	}

	p.registered = true
	p.failure = ""
	p.display = payload.Display
	p.state = playback.ScheduleState{
		ReferenceStart: anchor,
		Paused:         payload.Paused,
	}
	p.applyContentLocked(payload.Content)

	log.Info().
		Str("display_id", p.displayID).
		Time("anchor", anchor).
		Bool("paused", payload.Paused).
		Int("steps", len(p.seq)).
		Msg("display registered")

	p.restartLocked()
}

func (p *Player) handleRegistrationFailed(payload events.FailurePayload) {
	p.mu.Lock()
	p.cancelPendingLocked()
	p.registered = false
	p.failure = payload.Reason
	p.seq = nil
	p.mu.Unlock()

	p.scheduler.Stop()
	p.slides.fail(payload.Reason)

	log.Error().
		Str("display_id", p.displayID).
		Str("reason", payload.Reason).
		Msg("display registration rejected")
}

func (p *Player) handleContentUpdate(payload events.ContentPayload) {
	if payload.DisplayID != p.displayID {
		log.Debug().
			Str("display_id", p.displayID).
			Str("update_for", payload.DisplayID).
			Msg("ignoring content update for another display")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.registered {
		return
	}
	p.applyContentLocked(payload)

	log.Info().
		Str("display_id", p.displayID).
		Int("steps", len(p.seq)).
		Dur("interval", p.state.Interval).
		Msg("content updated")

	p.restartLocked()
}

func (p *Player) handleUpdateFailed(payload events.FailurePayload) {
	if payload.DisplayID != "" && payload.DisplayID != p.displayID {
		return
	}

	p.mu.Lock()
	p.failure = payload.Reason
	p.mu.Unlock()

	log.Warn().
		Str("display_id", p.displayID).
		Str("reason", payload.Reason).
		Msg("content update failed, keeping current content")
}

func (p *Player) handlePause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.registered {
		return
	}
	p.cancelPendingLocked()
	p.state.Paused = true
	p.restartLocked()

	log.Info().Str("display_id", p.displayID).Msg("playback paused")
}

// handleSync waits, frame by frame, until the latency-adjusted deadline and
// then restarts the rotation from the first step at the target time.
func (p *Player) handleSync(kind events.EventType, payload events.SyncPayload) error {
	deadline, err := playback.ResumeDeadline(payload.ServerTime, payload.TargetTime, p.clock.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.registered {
		return nil
	}

	log.Info().
		Str("display_id", p.displayID).
		Str("type", string(kind)).
		Time("target_time", payload.TargetTime).
		Time("deadline", deadline).
		Msg("waiting for synchronized resume")

	target := payload.TargetTime
	p.awaitLocked(deadline, func() {
		p.state.ReferenceStart = target
		p.state.Paused = false
		p.restartLocked()

		log.Info().
			Str("display_id", p.displayID).
			Time("reference_start", target).
			Msg("playback resumed")

		if kind == events.EventTypeFullResync && p.reload != nil {
			go p.reload()
		}
	})
	return nil
}

// awaitLocked replaces any pending resume with one that runs action at
// deadline. action runs with p.mu held.
func (p *Player) awaitLocked(deadline time.Time, action func()) {
	p.cancelPendingLocked()

	ctx, cancel := context.WithCancel(p.ctx)
	gen := p.pendingGen
	p.pendingCancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		if err := playback.PollUntil(ctx, p.clock, deadline, p.frame); err != nil {
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if gen != p.pendingGen {
			return
		}
		p.pendingCancel = nil
		action()
	}()
}

func (p *Player) cancelPendingLocked() {
	p.pendingGen++
	if p.pendingCancel != nil {
		p.pendingCancel()
		p.pendingCancel = nil
	}
}

func (p *Player) applyContentLocked(content events.ContentPayload) {
	groups := make([]playback.ContentGroup, 0, len(content.Groups))
	for _, g := range content.Groups {
		groups = append(groups, playback.ContentGroup{Kind: g.Kind, Images: g.Images})
	}

	mode := content.TransitionMode
	if !mode.Valid() {
		mode = models.TransitionModeNormal
	}

	p.state.Interval = playback.IntervalFromMillis(content.IntervalMs)
	p.state.Mode = mode
	p.seq = playback.BuildStepSequence(groups)
	p.slides.setContent(content.Groups)
}

func (p *Player) restartLocked() {
	p.scheduler.Start(p.state, p.seq)
}

// SetReload replaces the fullResync hook.
func (p *Player) SetReload(reload func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reload = reload
}

// Registered reports whether the last registration attempt succeeded.
func (p *Player) Registered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered
}

// Display returns the record received with the last registration.
func (p *Player) Display() models.Display {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.display
}

// Failure returns the last failure reason reported by the gateway.
func (p *Player) Failure() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure
}

// State returns the schedule the player is currently running.
func (p *Player) State() playback.ScheduleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Steps returns the length of the current step sequence.
func (p *Player) Steps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seq)
}

// Current returns the committed step index and whether the scheduler runs.
func (p *Player) Current() (int, bool) {
	idx, shown := p.scheduler.Current()
	return idx, shown && p.scheduler.Phase() == playback.PhaseRunning
}

// ResumePending reports whether a resume is waiting for its deadline.
func (p *Player) ResumePending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingCancel != nil
}

// Close cancels any pending resume and stops the scheduler.
func (p *Player) Close() {
	p.mu.Lock()
	p.cancelPendingLocked()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.scheduler.Stop()
}
