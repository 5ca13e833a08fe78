package playback

import (
	"time"

	"github.com/mcdev12/signage/go/internal/models"
)

// MinInterval is the shortest rotation interval a schedule will run with.
const MinInterval = time.Second

// ScheduleState is everything the Scheduler needs besides the steps.
type ScheduleState struct {
	// ReferenceStart anchors step boundaries. It is reset, not advanced,
	// on a synchronized resume.
	ReferenceStart time.Time
	Interval       time.Duration
	Mode           models.TransitionMode
	Paused         bool
}

// ClampInterval raises d to MinInterval.
func ClampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// IntervalFromMillis converts a stored interval and applies the floor.
func IntervalFromMillis(ms int) time.Duration {
	return ClampInterval(time.Duration(ms) * time.Millisecond)
}

// stepNumber is the unbounded count of boundaries passed since reference.
func stepNumber(now, reference time.Time, interval time.Duration) int64 {
	elapsed := now.Sub(reference)
	if elapsed < 0 {
		elapsed = 0
	}
	return int64(elapsed / interval)
}

// CurrentStep returns the index into a sequence of the given length that is
// current at now. It returns false when there is nothing to show.
func CurrentStep(now, reference time.Time, interval time.Duration, length int) (int, bool) {
	if length <= 0 || interval <= 0 {
		return 0, false
	}
	return int(stepNumber(now, reference, interval) % int64(length)), true
}

// NextBoundary returns the first step boundary strictly after now.
func NextBoundary(now, reference time.Time, interval time.Duration) time.Time {
	n := stepNumber(now, reference, interval)
	return reference.Add(time.Duration(n+1) * interval)
}
