package poller

import "time"

// Clock is the time source used by Poll.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// After waits for d on a runtime timer.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
