// Package runner owns the lifecycle of a single external test process:
// it spawns the command through the host shell, buffers its output, maps
// the exit to a Status and stops it on request.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fixed messages that end up in run output.
const (
	StoppedMarker = "Test execution stopped by user."
	NothingToStop = "No test was running to stop."
)

const (
	// killGrace is how long a terminated process may take to exit before
	// it is killed outright.
	killGrace = 5 * time.Second
	// waitDelay bounds how long Wait keeps reading pipes held open by
	// grandchildren after the shell itself has exited.
	waitDelay = 2 * time.Second
)

// Runner executes one shell command at a time within a workspace.
// Starting a run while another is live stops the old one first.
type Runner struct {
	Workspace string
	Timeout   time.Duration // 0 disables the per-run timeout
	MaxOutput int           // bytes
	Env       []string      // appended to the inherited environment
	Logger    zerolog.Logger

	mu   sync.Mutex
	proc *handle // nil when no process is owned
}

// handle is the exclusive owner of one live process. Only the Runner
// holding it in proc may signal it.
type handle struct {
	cmd  *exec.Cmd
	buf  *Buffer
	done chan struct{}

	// Guarded by Runner.mu.
	stopped bool
	output  string // buffer snapshot taken at stop
	abort   error  // set when the run context ended first
}

// IsRunning reports whether a process is currently owned.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc != nil
}

// Run executes command through the host shell and blocks until it exits.
// It never returns a nil Result: spawn failures, signals and timeouts are
// all reported through Result.Status and Result.Error.
func (r *Runner) Run(ctx context.Context, command string) *Result {
	res := &Result{
		RunID:     uuid.New().String(),
		Command:   command,
		ExitCode:  -1,
		StartedAt: time.Now(),
	}
	log := r.Logger.With().Str("run_id", res.RunID).Logger()

	if strings.TrimSpace(command) == "" {
		res.Status = Error
		res.Error = "empty command"
		res.Output = "Error: " + res.Error
		return res
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	buf := NewBuffer(r.MaxOutput)
	buf.Line("Starting test command: " + command)

	argv := shellArgv(command)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = r.Workspace
	cmd.Env = append(os.Environ(), r.Env...)
	// Same writer for both streams: exec serialises the writes and keeps
	// stdout and stderr interleaved in arrival order.
	cmd.Stdout = buf
	cmd.Stderr = buf
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	r.mu.Lock()
	if r.proc != nil {
		log.Debug().Msg("stopping previous run before starting a new one")
		r.stopLocked()
	}
	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		buf.Line("Test execution process error: " + err.Error())
		res.Status = Error
		res.Error = err.Error()
		res.Output = buf.String()
		res.Duration = time.Since(res.StartedAt)
		log.Warn().Err(err).Str("command", command).Msg("test command failed to start")
		return res
	}
	h := &handle{cmd: cmd, buf: buf, done: make(chan struct{})}
	r.proc = h
	r.mu.Unlock()

	log.Debug().Str("command", command).Int("pid", cmd.Process.Pid).Msg("test command started")

	go func() {
		select {
		case <-ctx.Done():
			r.abort(h, ctx.Err())
		case <-h.done:
		}
	}()

	waitErr := cmd.Wait()
	close(h.done)

	r.mu.Lock()
	if r.proc == h {
		r.proc = nil
	}
	stopped, stopOutput, abortErr := h.stopped, h.output, h.abort
	r.mu.Unlock()

	buf.Flush()
	res.Duration = time.Since(res.StartedAt)
	res.Truncated = buf.Truncated()
	res.Output = buf.String()

	if ps := cmd.ProcessState; ps != nil {
		res.ExitCode = ps.ExitCode()
		res.Status = StatusFromExit(res.ExitCode)
		if res.Status == Error {
			res.Error = exitMessage(ps)
		}
	} else {
		res.Status = Error
		res.Error = waitErr.Error()
	}

	switch {
	case stopped:
		res.Stopped = true
		res.Output = stopOutput
		if res.Error == "" {
			res.Error = "stopped by user"
		}
	case abortErr != nil:
		res.Status = Error
		if errors.Is(abortErr, context.DeadlineExceeded) {
			res.Error = fmt.Sprintf("timed out after %s", r.Timeout)
		} else {
			res.Error = abortErr.Error()
		}
	case waitErr != nil && res.Error == "" && !isExitError(waitErr):
		// Exit code is known but I/O did not finish cleanly.
		res.Error = waitErr.Error()
	}

	log.Info().
		Str("status", string(res.Status)).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Bool("stopped", res.Stopped).
		Msg("test command finished")
	return res
}

// Stop terminates the owned process, if any, and returns its output up to
// this point followed by a stop marker. With nothing owned it returns
// NothingToStop and has no side effects.
func (r *Runner) Stop() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil {
		return NothingToStop
	}
	return r.stopLocked()
}

// stopLocked releases ownership of r.proc and signals it. r.mu must be held.
// A process that has already been reaped is released without a signal and
// keeps its own outcome.
func (r *Runner) stopLocked() string {
	h := r.proc
	r.proc = nil
	if exited(h) {
		return NothingToStop
	}
	h.stopped = true
	r.signal(h)
	h.buf.Line("")
	h.buf.Line(StoppedMarker)
	h.output = h.buf.String()
	return h.output
}

func (r *Runner) abort(h *handle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc != h || exited(h) {
		return
	}
	h.abort = err
	r.signal(h)
}

// exited reports whether Wait has reaped the shell. os.Process records the
// reap before Wait drains output, so this holds even while Run has yet to
// release the handle.
func exited(h *handle) bool {
	return errors.Is(h.cmd.Process.Signal(syscall.Signal(0)), os.ErrProcessDone)
}

// signal sends the platform termination signal and schedules a forced
// kill if the process is still alive after killGrace.
func (r *Runner) signal(h *handle) {
	if err := terminate(h.cmd); err != nil {
		r.Logger.Warn().Err(err).Int("pid", h.cmd.Process.Pid).Msg("terminating test command")
	}
	time.AfterFunc(killGrace, func() {
		select {
		case <-h.done:
		default:
			_ = forceKill(h.cmd)
		}
	})
}

// exitMessage describes an exit that maps to Error. Shells report a
// missing or non-executable command through exit codes 127 and 126.
func exitMessage(ps *os.ProcessState) string {
	switch ps.ExitCode() {
	case 126:
		return ps.String() + " (command not executable)"
	case 127:
		return ps.String() + " (command not found)"
	default:
		return ps.String()
	}
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
