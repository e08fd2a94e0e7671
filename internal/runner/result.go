package runner

import "time"

// Status is the outcome class of a test run.
type Status string

const (
	NotRun  Status = "NOT_RUN"
	Running Status = "RUNNING"
	Success Status = "SUCCESS"
	Fail    Status = "FAIL"
	Error   Status = "ERROR"
)

// StatusFromExit maps a process exit code to a Status. Only 0 and 1 are
// meaningful to test runners; every other code (including -1 for a signal)
// is an error.
func StatusFromExit(code int) Status {
	switch code {
	case 0:
		return Success
	case 1:
		return Fail
	default:
		return Error
	}
}

// Result holds the outcome of one run attempt.
type Result struct {
	RunID     string        `json:"run_id"`
	Command   string        `json:"command"`
	Status    Status        `json:"status"`
	Output    string        `json:"output"`
	Error     string        `json:"error,omitempty"`
	ExitCode  int           `json:"exit_code"`           // -1 when the process did not exit normally
	Stopped   bool          `json:"stopped,omitempty"`   // true if Stop ended the run
	Truncated bool          `json:"truncated,omitempty"` // true if output exceeded the size cap
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
