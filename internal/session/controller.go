// Package session coordinates test runs for one workspace: it turns run,
// stop, command and watch intents into runner and scheduler calls and
// reports every outcome through the state store.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deixis/redgreen/internal/metrics"
	"github.com/deixis/redgreen/internal/report"
	"github.com/deixis/redgreen/internal/runner"
	"github.com/deixis/redgreen/internal/state"
	"github.com/deixis/redgreen/internal/watch"
)

// ErrNoCommand is reported when a run is requested before a test command
// has been set.
var ErrNoCommand = errors.New("No test command defined. Please set a test command first.") //nolint:staticcheck // user-facing text

// ErrClosed is reported for runs requested after Close.
var ErrClosed = errors.New("session closed")

// RunningMessage is the output shown while a run is in flight.
const RunningMessage = "Running tests..."

// Persistence stores the session selection between restarts. *kv.Store
// satisfies it.
type Persistence interface {
	SetCurrentTestCommand(ctx context.Context, command string) error
	SetCurrentSourceFile(ctx context.Context, path string) error
	SetCurrentTestFile(ctx context.Context, path string) error
	RemoveCurrentTestCommand(ctx context.Context) error
	RemoveCurrentSourceFile(ctx context.Context) error
	RemoveCurrentTestFile(ctx context.Context) error
	CurrentContext(ctx context.Context) (string, error)
	SetCurrentContext(ctx context.Context, text string) error
	SetPreference(ctx context.Context, key string, v any) error
	UpdateTestFileMap(ctx context.Context, source, test string) error
	RemoveTestFileMap(ctx context.Context, source string) error
	TestFileMap(ctx context.Context) (map[string]string, error)
	SetSecret(ctx context.Context, key, value string) error
	DeleteSecret(ctx context.Context, key string) error
}

// KeyReader resolves a stored secret. It may consult sources other than
// Persistence, such as the environment.
type KeyReader interface {
	Secret(ctx context.Context, key string) (string, error)
}

// Options wires a Controller. Runner and Store are required.
type Options struct {
	Runner  *runner.Runner
	Store   *state.Store
	History report.Store // optional
	Persist Persistence  // optional
	Keys    KeyReader    // optional; decides IsAPIKeySet after a key change

	WatchInterval time.Duration // 0 means watch.DefaultInterval
	Clock         watch.Clock   // nil means the wall clock

	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

// Controller is the only writer of the snapshot's test runner state.
type Controller struct {
	runner  *runner.Runner
	store   *state.Store
	history report.Store
	persist Persistence
	keys    KeyReader
	sched   *watch.Scheduler
	metrics *metrics.Recorder
	log     zerolog.Logger

	// ctx bounds watch-triggered runs; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex // serializes read-modify-write of TestRunner
	seq      atomic.Uint64
	inFlight atomic.Int32
	closed   atomic.Bool
}

// New returns a controller for the given runner and store.
func New(opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		runner:  opts.Runner,
		store:   opts.Store,
		history: opts.History,
		persist: opts.Persist,
		keys:    opts.Keys,
		metrics: opts.Metrics,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	c.sched = watch.New(opts.WatchInterval, opts.Clock, watch.Hooks{
		Ready: c.watchReady,
		Busy:  c.busy,
		Run: func() {
			c.metrics.WatchTick(true)
			c.Run(c.ctx)
		},
		Skipped: func() { c.metrics.WatchTick(false) },
	}, opts.Logger.With().Str("component", "watch").Logger())
	return c
}

// Store returns the state store the controller reports to.
func (c *Controller) Store() *state.Store { return c.store }

// Watching reports whether the watch scheduler is armed.
func (c *Controller) Watching() bool { return c.sched.State() == watch.Armed }

// SetCommand replaces the test command and resets the runner state. When
// watch mode is on, the new command runs immediately and SetCommand
// returns once that run has finished. An empty command also forgets the
// persisted one, so the next session starts from the configured default.
func (c *Controller) SetCommand(ctx context.Context, command string) error {
	c.mu.Lock()
	rs := c.store.Current().TestRunner
	rs.Status = runner.NotRun
	rs.Output = ""
	c.store.Update(state.Patch{TestCommand: &command, TestRunner: &rs})
	watching := rs.IsWatchModeEnabled
	c.mu.Unlock()

	var err error
	if c.persist != nil {
		if command == "" {
			err = c.persist.RemoveCurrentTestCommand(ctx)
		} else {
			err = c.persist.SetCurrentTestCommand(ctx, command)
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("persisting test command")
		}
	}

	if watching && strings.TrimSpace(command) != "" {
		c.Run(ctx)
	}
	return err
}

// ToggleWatchMode turns watch mode on or off. Enabling arms the scheduler
// and, if a command is set, runs it immediately. Disabling disarms the
// scheduler and stops a live run, reporting it as NOT_RUN.
func (c *Controller) ToggleWatchMode(ctx context.Context, enabled bool) {
	c.updateRunner(func(rs *state.RunnerState) { rs.IsWatchModeEnabled = enabled })

	if !enabled {
		c.sched.Disarm()
		if c.runner.IsRunning() {
			out := c.runner.Stop()
			c.setRunner(runner.NotRun, out)
		}
		return
	}

	c.sched.Arm()
	if c.hasCommand() {
		c.Run(ctx)
	}
}

// Run executes the current command and blocks until it finishes. The
// store sees RUNNING before the run starts and the terminal status after.
// With no command it reports ERROR without spawning anything. If watch
// mode is still on afterwards, the scheduler is re-armed.
func (c *Controller) Run(ctx context.Context) *runner.Result {
	if c.closed.Load() {
		return failed("", ErrClosed)
	}
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	defer c.rearm()

	command := strings.TrimSpace(c.store.Current().TestCommand)
	if command == "" {
		res := failed("", ErrNoCommand)
		c.setRunner(res.Status, res.Output)
		c.log.Info().Msg("run requested without a test command")
		return res
	}

	seq := c.seq.Add(1)
	c.setRunner(runner.Running, RunningMessage)

	res := c.runner.Run(ctx, command)

	status := res.Status
	if res.Stopped {
		status = runner.NotRun
	}
	c.mu.Lock()
	if c.seq.Load() == seq {
		rs := c.store.Current().TestRunner
		rs.Status = status
		rs.Output = res.Output
		c.store.Update(state.Patch{TestRunner: &rs})
	}
	c.mu.Unlock()

	c.metrics.ObserveRun(string(res.Status), res.Duration)
	if c.history != nil {
		if err := c.history.Save(res); err != nil {
			c.log.Warn().Err(err).Str("run_id", res.RunID).Msg("saving run result")
		}
	}
	return res
}

// Stop ends a live run and reports NOT_RUN with its output, or reports
// that nothing was running. It returns the output it reported. If watch
// mode is on, the pending watch tick is cancelled.
func (c *Controller) Stop() string {
	out := c.runner.Stop()
	c.setRunner(runner.NotRun, out)
	if c.store.Current().TestRunner.IsWatchModeEnabled {
		c.sched.Disarm()
	}
	c.log.Debug().Str("output", firstLine(out)).Msg("stop requested")
	return out
}

// Close disarms the scheduler, stops any live run, reports NOT_RUN and
// closes the store. Runs requested afterwards fail with ErrClosed.
func (c *Controller) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.sched.Disarm()
	c.cancel()
	if c.runner.IsRunning() {
		out := c.runner.Stop()
		c.setRunner(runner.NotRun, out)
	}
	c.store.Close()
}

func (c *Controller) rearm() {
	if c.closed.Load() {
		return
	}
	if c.store.Current().TestRunner.IsWatchModeEnabled {
		c.sched.Arm()
	}
}

func (c *Controller) watchReady() bool {
	snap := c.store.Current()
	return !c.closed.Load() && snap.TestRunner.IsWatchModeEnabled && strings.TrimSpace(snap.TestCommand) != ""
}

func (c *Controller) busy() bool {
	return c.inFlight.Load() > 0 || c.runner.IsRunning()
}

func (c *Controller) hasCommand() bool {
	return strings.TrimSpace(c.store.Current().TestCommand) != ""
}

func (c *Controller) setRunner(status runner.Status, output string) {
	c.updateRunner(func(rs *state.RunnerState) {
		rs.Status = status
		rs.Output = output
	})
}

func (c *Controller) updateRunner(fn func(*state.RunnerState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.store.Current().TestRunner
	fn(&rs)
	c.store.Update(state.Patch{TestRunner: &rs})
}

// failed builds the result of a run that never reached the runner.
func failed(command string, err error) *runner.Result {
	return &runner.Result{
		RunID:     uuid.New().String(),
		Command:   command,
		Status:    runner.Error,
		Output:    "Error: " + err.Error(),
		Error:     err.Error(),
		ExitCode:  -1,
		StartedAt: time.Now(),
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
