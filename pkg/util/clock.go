package util

import "time"

// Clock abstracts wall time and the slot counter used for oracle staleness
// checks. Tests substitute a manual implementation.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
	Slot() uint64
}

// RealClock delegates to the system clock. One slot per second.
type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Slot() uint64                           { return uint64(time.Now().Unix()) }
