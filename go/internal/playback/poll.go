package playback

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultFramePeriod approximates a 60Hz repaint cadence.
const DefaultFramePeriod = 16 * time.Millisecond

// FrameFunc blocks until the next frame or until ctx is done.
type FrameFunc func(ctx context.Context) error

// FrameTicker returns a FrameFunc that waits one period on clock per frame.
func FrameTicker(clock clockwork.Clock, period time.Duration) FrameFunc {
	if period <= 0 {
		period = DefaultFramePeriod
	}
	return func(ctx context.Context) error {
		t := clock.NewTimer(period)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			return nil
		}
	}
}

// PollUntil waits frame by frame until clock reaches deadline. A deadline in
// the past returns immediately.
func PollUntil(ctx context.Context, clock clockwork.Clock, deadline time.Time, frame FrameFunc) error {
	for clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := frame(ctx); err != nil {
			return err
		}
	}
	return nil
}
