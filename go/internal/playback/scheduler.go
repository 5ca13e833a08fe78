package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultAnimationLead is how far ahead of a boundary push mode stages the
// next step.
const DefaultAnimationLead = 2 * time.Second

// Phase is the scheduler's run state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	default:
		return "idle"
	}
}

// Renderer receives step changes from the Scheduler.
//
// Both methods are called with the scheduler's lock held so that calls are
// delivered in order and never from a cancelled timer. Implementations must
// return quickly and must not call back into the Scheduler.
type Renderer interface {
	// ShowStep commits index as the current step.
	ShowStep(index int, step Step)
	// StageStep exposes the upcoming step so an outgoing/incoming animation
	// can start before the boundary commits it.
	StageStep(index int, step Step)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAnimationLead overrides DefaultAnimationLead.
func WithAnimationLead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.lead = d
		}
	}
}

// Scheduler switches steps on absolute boundaries derived from a
// ScheduleState. At most one boundary timer and one pre-stage timer are
// armed at any time.
type Scheduler struct {
	clock    clockwork.Clock
	renderer Renderer
	lead     time.Duration

	mu      sync.Mutex
	phase   Phase
	gen     uint64 // bumped whenever timers are replaced; stale callbacks compare against it
	state   ScheduleState
	seq     []Step
	current int
	shown   bool

	boundary clockwork.Timer
	prestage clockwork.Timer
}

// NewScheduler creates an idle scheduler.
func NewScheduler(clock clockwork.Clock, renderer Renderer, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    clock,
		renderer: renderer,
		lead:     DefaultAnimationLead,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replaces the running schedule. Pending timers from the previous
// schedule are cancelled before anything new is armed. A paused state, an
// empty sequence or a missing reference time leaves the scheduler idle.
func (s *Scheduler) Start(state ScheduleState, seq []Step) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimersLocked()

	state.Interval = ClampInterval(state.Interval)
	s.state = state
	s.seq = append([]Step(nil), seq...)

	if state.Paused || len(s.seq) == 0 || state.ReferenceStart.IsZero() {
		s.phase = PhaseIdle
		log.Debug().
			Bool("paused", state.Paused).
			Int("steps", len(s.seq)).
			Bool("has_reference", !state.ReferenceStart.IsZero()).
			Msg("scheduler idle")
		return
	}

	s.phase = PhaseRunning
	log.Debug().
		Time("reference_start", state.ReferenceStart).
		Dur("interval", state.Interval).
		Str("mode", string(state.Mode)).
		Int("steps", len(s.seq)).
		Msg("scheduler started")

	s.tickLocked()
}

// Stop cancels all pending timers. It is safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimersLocked()
	s.phase = PhaseIdle
	s.seq = nil
}

// Phase reports whether the scheduler has timers armed.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Current returns the last committed step index.
func (s *Scheduler) Current() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.shown
}

// tickLocked derives the current step from the clock, arms the timers for
// the next boundary and then commits the step.
func (s *Scheduler) tickLocked() {
	now := s.clock.Now()
	length := len(s.seq)

	idx, _ := CurrentStep(now, s.state.ReferenceStart, s.state.Interval, length)
	next := NextBoundary(now, s.state.ReferenceStart, s.state.Interval)
	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}

	s.cancelTimersLocked()
	gen := s.gen

	s.boundary = s.clock.AfterFunc(delay, func() {
		s.onBoundary(gen)
	})

	s.current = idx
	s.shown = true
	s.renderer.ShowStep(idx, s.seq[idx])

	if s.state.Mode == models.TransitionModePush {
		s.armPrestageLocked(gen, delay, (idx+1)%length)
	}

	log.Debug().
		Int("index", idx).
		Time("next_boundary", next).
		Dur("delay", delay).
		Msg("scheduled next boundary")
}

// armPrestageLocked schedules the reveal of nextIdx ahead of the boundary.
// When the boundary is closer than the lead the reveal happens right away.
func (s *Scheduler) armPrestageLocked(gen uint64, boundaryDelay time.Duration, nextIdx int) {
	stageDelay := boundaryDelay - s.lead
	if stageDelay <= 0 {
		s.renderer.StageStep(nextIdx, s.seq[nextIdx])
		return
	}

	s.prestage = s.clock.AfterFunc(stageDelay, func() {
		s.onPrestage(gen, nextIdx)
	})
}

func (s *Scheduler) onBoundary(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.phase != PhaseRunning {
		log.Debug().Uint64("generation", gen).Msg("dropping stale boundary timer")
		return
	}
	s.boundary = nil
	s.tickLocked()
}

func (s *Scheduler) onPrestage(gen uint64, nextIdx int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.phase != PhaseRunning || nextIdx >= len(s.seq) {
		return
	}
	s.prestage = nil
	s.renderer.StageStep(nextIdx, s.seq[nextIdx])
}

// cancelTimersLocked stops any armed timers and invalidates callbacks that
// may already be in flight.
func (s *Scheduler) cancelTimersLocked() {
	s.gen++
	if s.boundary != nil {
		s.boundary.Stop()
		s.boundary = nil
	}
	if s.prestage != nil {
		s.prestage.Stop()
		s.prestage = nil
	}
}
