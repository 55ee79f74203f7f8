package util

import "time"

// Clock supplies the current time. Injected wherever calendar decisions are
// made so tests can pin the weekday.
type Clock interface {
	Now() time.Time
}

// Sleeper performs pacing delays. Injected into the quote batcher and the
// execution planner so pacing policy is testable without wall-clock waits.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time { return time.Now() }

// RealSleeper blocks with time.Sleep.
type RealSleeper struct{}

// Sleep pauses the calling goroutine for d.
func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// NopSleeper skips delays entirely. Used in tests and paper replays.
type NopSleeper struct{}

// Sleep returns immediately.
func (NopSleeper) Sleep(time.Duration) {}
