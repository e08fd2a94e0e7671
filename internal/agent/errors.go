package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialMissing is returned before any process is spawned when
	// no API key is stored.
	ErrCredentialMissing = errors.New("agent: API key not configured")

	// ErrNoCompletion is returned by Run when the output holds no completed
	// message record.
	ErrNoCompletion = errors.New("agent: no completed message in output")
)

// ProcessError reports an agent process that exited unsuccessfully.
type ProcessError struct {
	Code   int    // exit code, -1 if killed by a signal
	Stderr string // tail of stderr, Run only
	Err    error  // context error when the run was cancelled
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("agent exited with code %d", e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

// SpawnError reports an agent binary that could not be started.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return "agent spawn failed: " + e.Err.Error() }

func (e *SpawnError) Unwrap() error { return e.Err }

// MalformedOutputError reports a completed message record whose content
// has an unexpected shape.
type MalformedOutputError struct {
	Line   string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("agent: malformed completion record (%s): %s", e.Reason, e.Line)
}
