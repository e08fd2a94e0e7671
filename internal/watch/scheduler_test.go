package watch_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/deixis/redgreen/internal/watch"
	"github.com/deixis/redgreen/internal/watch/watchtest"
)

type fakeSession struct {
	ready   atomic.Bool
	busy    atomic.Bool
	runs    atomic.Int32
	skipped atomic.Int32
	onRun   func()
}

func (f *fakeSession) hooks() watch.Hooks {
	return watch.Hooks{
		Ready: f.ready.Load,
		Busy:  f.busy.Load,
		Run: func() {
			f.runs.Add(1)
			if f.onRun != nil {
				f.onRun()
			}
		},
		Skipped: func() { f.skipped.Add(1) },
	}
}

func newScheduler(f *fakeSession) (*watch.Scheduler, *watchtest.Clock) {
	clock := watchtest.NewClock()
	return watch.New(2*time.Second, clock, f.hooks(), zerolog.Nop()), clock
}

func TestScheduler_StartsIdle(t *testing.T) {
	s, clock := newScheduler(&fakeSession{})
	assert.Equal(t, watch.Idle, s.State())
	assert.False(t, s.Pending())
	assert.Zero(t, clock.Pending())
}

func TestScheduler_ArmWithoutCommandSchedulesNothing(t *testing.T) {
	f := &fakeSession{}
	s, clock := newScheduler(f)

	s.Arm()
	assert.Equal(t, watch.Armed, s.State())
	assert.False(t, s.Pending())

	clock.Advance(10 * time.Second)
	assert.Zero(t, f.runs.Load())
}

func TestScheduler_RunsEveryInterval(t *testing.T) {
	f := &fakeSession{}
	f.ready.Store(true)
	s, clock := newScheduler(f)

	s.Arm()
	clock.Advance(1999 * time.Millisecond)
	assert.Zero(t, f.runs.Load(), "no run before the interval elapses")

	clock.Advance(time.Millisecond)
	assert.EqualValues(t, 1, f.runs.Load())
	assert.True(t, s.Pending(), "re-armed after the run")

	clock.Advance(2 * time.Second)
	assert.EqualValues(t, 2, f.runs.Load())
	assert.Equal(t, 1, clock.Pending())
}

func TestScheduler_SkipsWhileBusy(t *testing.T) {
	f := &fakeSession{}
	f.ready.Store(true)
	f.busy.Store(true)
	s, clock := newScheduler(f)

	s.Arm()
	clock.Advance(2 * time.Second)
	assert.Zero(t, f.runs.Load())
	assert.EqualValues(t, 1, f.skipped.Load())
	assert.True(t, s.Pending(), "skipped tick re-arms")

	f.busy.Store(false)
	clock.Advance(2 * time.Second)
	assert.EqualValues(t, 1, f.runs.Load())
}

func TestScheduler_ExactlyOnePendingTimer(t *testing.T) {
	f := &fakeSession{}
	f.ready.Store(true)
	s, clock := newScheduler(f)

	s.Arm()
	s.Arm()
	s.Arm()
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(2 * time.Second)
	assert.EqualValues(t, 1, f.runs.Load())
	assert.Equal(t, 1, clock.Pending())
}

func TestScheduler_RearmDuringRunKeepsOneTimer(t *testing.T) {
	f := &fakeSession{}
	f.ready.Store(true)
	s, clock := newScheduler(f)
	f.onRun = s.Arm // the session re-arms when its run finishes

	s.Arm()
	clock.Advance(2 * time.Second)
	assert.EqualValues(t, 1, f.runs.Load())
	assert.Equal(t, 1, clock.Pending())
}

func TestScheduler_DisarmCancelsPendingTimer(t *testing.T) {
	f := &fakeSession{}
	f.ready.Store(true)
	s, clock := newScheduler(f)

	s.Arm()
	s.Disarm()
	assert.Equal(t, watch.Idle, s.State())
	assert.Zero(t, clock.Pending())

	clock.Advance(10 * time.Second)
	assert.Zero(t, f.runs.Load())
}

func TestScheduler_DisarmDuringRunStopsScheduling(t *testing.T) {
	f := &fakeSession{}
	f.ready.Store(true)
	s, clock := newScheduler(f)
	f.onRun = s.Disarm

	s.Arm()
	clock.Advance(2 * time.Second)
	assert.EqualValues(t, 1, f.runs.Load(), "the in-flight run completes")
	assert.Zero(t, clock.Pending())

	clock.Advance(10 * time.Second)
	assert.EqualValues(t, 1, f.runs.Load())
}

func TestScheduler_NotReadyAtFireStopsLoop(t *testing.T) {
	f := &fakeSession{}
	f.ready.Store(true)
	s, clock := newScheduler(f)

	s.Arm()
	f.ready.Store(false)
	clock.Advance(2 * time.Second)
	assert.Zero(t, f.runs.Load())
	assert.Zero(t, clock.Pending())
	assert.Equal(t, watch.Armed, s.State())
}

func TestScheduler_RealClock(t *testing.T) {
	f := &fakeSession{}
	f.ready.Store(true)
	done := make(chan struct{})
	var once atomic.Bool
	f.onRun = func() {
		if once.CompareAndSwap(false, true) {
			close(done)
		}
	}
	s := watch.New(10*time.Millisecond, nil, f.hooks(), zerolog.Nop())
	s.Arm()
	defer s.Disarm()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("real clock never fired")
	}
}
