package watch

import "time"

// Clock creates one-shot timers. Tests substitute a fake.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or is running.
	Stop() bool
}

// RealClock is the wall clock.
type RealClock struct{}

// AfterFunc calls f in its own goroutine after d.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
