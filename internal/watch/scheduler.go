// Package watch re-runs the test command on a fixed interval while watch
// mode is on, never overlapping runs and never holding more than one
// pending timer.
package watch

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval separates the end of one watch cycle from the next.
const DefaultInterval = 2 * time.Second

// State is the scheduler state.
type State string

const (
	Idle  State = "idle"
	Armed State = "armed"
)

// Hooks connect the scheduler to the session that owns the test run.
type Hooks struct {
	// Ready reports whether watch mode is enabled and a command exists.
	Ready func() bool
	// Busy reports whether a run is in flight.
	Busy func() bool
	// Run performs one test run and blocks until it finishes.
	Run func()
	// Skipped, if set, is called for every tick that did not run.
	Skipped func()
}

// Scheduler is a cancellable self-rescheduling timer loop.
type Scheduler struct {
	interval time.Duration
	clock    Clock
	hooks    Hooks
	log      zerolog.Logger

	mu    sync.Mutex
	state State
	timer Timer
	gen   uint64 // identifies the pending timer; bumped on every (re)schedule
}

// New returns an idle scheduler. A zero interval means DefaultInterval and
// a nil clock means the wall clock.
func New(interval time.Duration, clock Clock, hooks Hooks, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		interval: interval,
		clock:    clock,
		hooks:    hooks,
		log:      log,
		state:    Idle,
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports whether a timer is waiting to fire.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Arm moves the scheduler to Armed and replaces any pending timer with a
// fresh one, provided the Ready hook allows it. Calling Arm while armed
// restarts the interval.
func (s *Scheduler) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		s.log.Debug().Dur("interval", s.interval).Msg("watch armed")
	}
	s.state = Armed
	s.scheduleLocked()
}

// Disarm moves the scheduler to Idle and cancels the pending timer.
// A run already in progress is not interrupted.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Armed {
		s.log.Debug().Msg("watch disarmed")
	}
	s.state = Idle
	s.cancelLocked()
}

func (s *Scheduler) scheduleLocked() {
	s.cancelLocked()
	if s.state != Armed || !s.hooks.Ready() {
		return
	}
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.interval, func() { s.fire(gen) })
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != Armed {
		// Superseded by a later schedule or a disarm.
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if s.hooks.Ready() && !s.hooks.Busy() {
		s.hooks.Run()
	} else {
		s.log.Debug().Msg("watch tick skipped")
		if s.hooks.Skipped != nil {
			s.hooks.Skipped()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Armed {
		s.scheduleLocked()
	}
}
