package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("runner tests use /bin/sh")
	}
	return &Runner{
		Workspace: t.TempDir(),
		Timeout:   10 * time.Second,
		MaxOutput: 1 << 20,
	}
}

// waitRunning blocks until r owns a process or the deadline passes.
func waitRunning(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !r.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("process never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_Success(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), "echo hello")
	if res.Status != Success {
		t.Errorf("Status = %s, want %s (error %q)", res.Status, Success, res.Error)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("Output = %q, want to contain 'hello'", res.Output)
	}
	if !strings.HasPrefix(res.Output, "Starting test command: echo hello") {
		t.Errorf("Output = %q, want header line first", res.Output)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if r.IsRunning() {
		t.Error("IsRunning = true after Run returned")
	}
}

func TestRun_ExitCodeMapping(t *testing.T) {
	tests := []struct {
		command string
		want    Status
		code    int
	}{
		{"exit 0", Success, 0},
		{"exit 1", Fail, 1},
		{"exit 2", Error, 2},
		{"exit 42", Error, 42},
	}
	r := newTestRunner(t)
	for _, tt := range tests {
		res := r.Run(context.Background(), tt.command)
		if res.Status != tt.want {
			t.Errorf("%s: Status = %s, want %s", tt.command, res.Status, tt.want)
		}
		if res.ExitCode != tt.code {
			t.Errorf("%s: ExitCode = %d, want %d", tt.command, res.ExitCode, tt.code)
		}
	}
}

func TestRun_StderrCaptured(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), "echo oops 1>&2; exit 1")
	if res.Status != Fail {
		t.Errorf("Status = %s, want %s", res.Status, Fail)
	}
	if !strings.Contains(res.Output, "oops") {
		t.Errorf("Output = %q, want to contain stderr text", res.Output)
	}
}

func TestRun_CommandNotFound(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), "nonexistent-binary-xyz-123")
	if res.Status != Error {
		t.Errorf("Status = %s, want %s", res.Status, Error)
	}
	if !strings.Contains(res.Error, "command not found") {
		t.Errorf("Error = %q, want 'command not found'", res.Error)
	}
	if !strings.Contains(res.Output, "nonexistent-binary-xyz-123") {
		t.Errorf("Output = %q, want the shell diagnostic", res.Output)
	}
}

func TestRun_SpawnFailure(t *testing.T) {
	r := newTestRunner(t)
	r.Workspace = filepath.Join(r.Workspace, "missing")
	res := r.Run(context.Background(), "echo hi")
	if res.Status != Error {
		t.Errorf("Status = %s, want %s", res.Status, Error)
	}
	if res.Error == "" {
		t.Error("Error is empty, want the spawn error")
	}
	if !strings.Contains(res.Output, "Test execution process error:") {
		t.Errorf("Output = %q, want spawn error line", res.Output)
	}
	if r.IsRunning() {
		t.Error("IsRunning = true after spawn failure")
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), "   ")
	if res.Status != Error {
		t.Errorf("Status = %s, want %s", res.Status, Error)
	}
}

func TestRun_WorkingDirectory(t *testing.T) {
	r := newTestRunner(t)
	if err := os.WriteFile(filepath.Join(r.Workspace, "marker.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := r.Run(context.Background(), "ls")
	if !strings.Contains(res.Output, "marker.txt") {
		t.Errorf("Output = %q, want to list workspace files", res.Output)
	}
}

func TestRun_Env(t *testing.T) {
	r := newTestRunner(t)
	r.Env = []string{"REDGREEN_TEST_VAR=xyz"}
	res := r.Run(context.Background(), "echo value=$REDGREEN_TEST_VAR")
	if !strings.Contains(res.Output, "value=xyz") {
		t.Errorf("Output = %q, want injected variable", res.Output)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(t)
	r.Timeout = 100 * time.Millisecond

	start := time.Now()
	res := r.Run(context.Background(), "sleep 10")
	if time.Since(start) > 5*time.Second {
		t.Errorf("Run took %s, want prompt termination", time.Since(start))
	}
	if res.Status != Error {
		t.Errorf("Status = %s, want %s", res.Status, Error)
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("Error = %q, want 'timed out'", res.Error)
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 100 // very small cap

	res := r.Run(context.Background(), "i=0; while [ $i -lt 50 ]; do echo line-$i; i=$((i+1)); done")
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if !strings.HasSuffix(res.Output, truncatedMarker) {
		t.Errorf("Output = %q, want truncation marker", res.Output)
	}
}

func TestStop_NothingRunning(t *testing.T) {
	r := newTestRunner(t)
	if got := r.Stop(); got != NothingToStop {
		t.Errorf("Stop() = %q, want %q", got, NothingToStop)
	}
	if got := r.Stop(); got != NothingToStop {
		t.Errorf("second Stop() = %q, want %q", got, NothingToStop)
	}
	if r.IsRunning() {
		t.Error("IsRunning = true")
	}
}

func TestStop_RunningProcess(t *testing.T) {
	r := newTestRunner(t)

	results := make(chan *Result, 1)
	go func() {
		results <- r.Run(context.Background(), "echo started; sleep 30")
	}()
	waitRunning(t, r)

	out := r.Stop()
	if !strings.HasSuffix(out, StoppedMarker) {
		t.Errorf("Stop() = %q, want stop marker last", out)
	}
	if r.IsRunning() {
		t.Error("IsRunning = true after Stop")
	}
	if got := r.Stop(); got != NothingToStop {
		t.Errorf("second Stop() = %q, want %q", got, NothingToStop)
	}

	select {
	case res := <-results:
		if !res.Stopped {
			t.Error("Stopped = false, want true")
		}
		if res.Status != Error {
			t.Errorf("Status = %s, want %s", res.Status, Error)
		}
		if res.Output != out {
			t.Errorf("Output = %q, want the stop snapshot %q", res.Output, out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRun_ReplacesLiveProcess(t *testing.T) {
	r := newTestRunner(t)

	first := make(chan *Result, 1)
	go func() {
		first <- r.Run(context.Background(), "sleep 30")
	}()
	waitRunning(t, r)

	second := r.Run(context.Background(), "exit 0")
	if second.Status != Success {
		t.Errorf("second Status = %s, want %s", second.Status, Success)
	}

	select {
	case res := <-first:
		if !res.Stopped {
			t.Error("first run was not stopped by the second")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first Run did not return")
	}
}

func TestRun_ContextCancel(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())

	results := make(chan *Result, 1)
	go func() {
		results <- r.Run(ctx, "sleep 30")
	}()
	waitRunning(t, r)
	cancel()

	select {
	case res := <-results:
		if res.Status != Error {
			t.Errorf("Status = %s, want %s", res.Status, Error)
		}
		if !strings.Contains(res.Error, "canceled") {
			t.Errorf("Error = %q, want context cancellation", res.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStop_AfterShellExitedKeepsOutcome(t *testing.T) {
	r := newTestRunner(t)

	results := make(chan *Result, 1)
	go func() {
		// The background sleep keeps the output pipe open after the shell
		// has exited and been reaped.
		results <- r.Run(context.Background(), "sleep 1 & exit 0")
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		r.mu.Lock()
		reaped := r.proc != nil && exited(r.proc)
		r.mu.Unlock()
		if reaped {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("shell was not reaped while its output was draining")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := r.Stop(); got != NothingToStop {
		t.Errorf("Stop() = %q, want %q", got, NothingToStop)
	}

	select {
	case res := <-results:
		if res.Stopped {
			t.Error("Stopped = true for a run that exited on its own")
		}
		if res.Status != Success {
			t.Errorf("Status = %s, want %s", res.Status, Success)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
