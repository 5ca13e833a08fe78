package playback

import (
	"errors"
	"time"
)

// ErrNoTargetTime is returned for sync payloads without a target time.
var ErrNoTargetTime = errors.New("sync payload has no target time")

// EstimateLatency treats the gap between the server's send time and local
// receipt as one-way network latency. Clock skew between server and display
// is folded into the estimate; it is not corrected for.
func EstimateLatency(serverTime, localNow time.Time) time.Duration {
	latency := localNow.Sub(serverTime)
	if latency < 0 {
		return 0
	}
	return latency
}

// TimeUntilResume is how long the display waits before acting on a resume.
func TimeUntilResume(targetTime, localNow time.Time, latency time.Duration) time.Duration {
	wait := targetTime.Sub(localNow) - latency
	if wait < 0 {
		return 0
	}
	return wait
}

// ResumeDeadline converts a server sync message into a local deadline.
func ResumeDeadline(serverTime, targetTime, localNow time.Time) (time.Time, error) {
	if targetTime.IsZero() {
		return time.Time{}, ErrNoTargetTime
	}
	latency := EstimateLatency(serverTime, localNow)
	return localNow.Add(TimeUntilResume(targetTime, localNow, latency)), nil
}
