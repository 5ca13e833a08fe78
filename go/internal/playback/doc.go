// Package playback drives the rotation of menu content on a display.
//
// A display's menus are flattened into a Step sequence (BuildStepSequence).
// Which step is current is never counted up in memory: it is derived from
// the wall clock, a shared reference start time and the rotation interval
// (CurrentStep). The Scheduler keeps exactly one boundary timer armed for
// the next step boundary and, in push mode, one pre-stage timer that reveals
// the upcoming step early so its animation can finish on the boundary.
// Every firing re-derives the step from the clock, so a late timer or a
// suspended process lands on the correct step rather than replaying the ones
// it missed.
//
// Pause and resume are coordinated by the gateway. A resume carries the
// server's send time and a target time; EstimateLatency and TimeUntilResume
// turn those into a local deadline and PollUntil waits for it on a frame
// cadence before the caller re-anchors the schedule at the target time.
package playback
