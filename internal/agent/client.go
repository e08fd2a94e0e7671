// Package agent drives the codex command-line agent, either streaming its
// output chunk by chunk or waiting for its final completed message.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/deixis/redgreen/internal/kv"
	"github.com/deixis/redgreen/internal/metrics"
)

// DefaultModel is used when neither the client nor the call names a model.
const DefaultModel = "codex-mini-latest"

// EnvAPIKey carries the credential into the agent process.
const EnvAPIKey = "OPENAI_API_KEY"

const waitDelay = 2 * time.Second

// Credentials looks up stored secrets. *kv.Store satisfies it.
type Credentials interface {
	Secret(ctx context.Context, key string) (string, error)
}

// Options tune a single invocation.
type Options struct {
	Model string
}

// Client spawns the agent binary in a workspace.
type Client struct {
	Binary      []string // argv prefix, e.g. ["codex"]
	Workspace   string
	Model       string
	Credentials Credentials
	Env         []string // appended to the inherited environment
	Logger      zerolog.Logger
	Metrics     *metrics.Recorder
}

// Args returns the fixed flag set for a quiet, unattended query.
func Args(model, prompt string) []string {
	return []string{
		"--model", model,
		"--approval-mode", "full-auto",
		"--full-auto-error-mode", "ignore-and-continue",
		"--notify", "false",
		"-q", prompt,
	}
}

// Stream runs prompt and forwards every stdout and stderr chunk to onChunk
// as soon as it is read. onChunk is never called concurrently. A non-zero
// exit forwards a final "[codex exited with code N]" chunk and returns a
// *ProcessError; a spawn failure forwards "[codex error: ...]" and returns
// a *SpawnError.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(string), opts Options) (err error) {
	defer func() { c.Metrics.AgentInvocation("stream", err) }()

	cmd, err := c.command(ctx, prompt, opts)
	if err != nil {
		var spawnErr *SpawnError
		if errors.As(err, &spawnErr) {
			onChunk(fmt.Sprintf("[codex error: %v]", spawnErr.Err))
		}
		return err
	}
	w := &chunkWriter{fn: onChunk}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		onChunk(fmt.Sprintf("[codex error: %v]", err))
		c.Logger.Warn().Err(err).Msg("agent spawn failed")
		return &SpawnError{Err: err}
	}
	c.Logger.Debug().Int("pid", cmd.Process.Pid).Msg("agent started")

	if err := cmd.Wait(); err != nil {
		code := exitCode(cmd, err)
		onChunk(fmt.Sprintf("[codex exited with code %d]", code))
		c.Logger.Info().Int("exit_code", code).Msg("agent failed")
		return &ProcessError{Code: code, Err: ctx.Err()}
	}
	c.Logger.Debug().Msg("agent finished")
	return nil
}

// Run runs prompt to completion and returns the content of the first
// completed message record on stdout.
func (c *Client) Run(ctx context.Context, prompt string, opts Options) (content string, err error) {
	defer func() { c.Metrics.AgentInvocation("run", err) }()

	cmd, err := c.command(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		c.Logger.Warn().Err(err).Msg("agent spawn failed")
		return "", &SpawnError{Err: err}
	}
	if err := cmd.Wait(); err != nil {
		code := exitCode(cmd, err)
		c.Logger.Info().Int("exit_code", code).Msg("agent failed")
		return "", &ProcessError{Code: code, Stderr: tail(stderr.String(), 2048), Err: ctx.Err()}
	}
	return ParseCompletion(stdout.String())
}

func (c *Client) command(ctx context.Context, prompt string, opts Options) (*exec.Cmd, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	if len(c.Binary) == 0 {
		return nil, &SpawnError{Err: errors.New("no agent binary configured")}
	}

	model := opts.Model
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = DefaultModel
	}

	argv := append(append([]string{}, c.Binary[1:]...), Args(model, prompt)...)
	cmd := exec.CommandContext(ctx, c.Binary[0], argv...)
	cmd.Dir = c.Workspace
	cmd.Env = append(append(os.Environ(), c.Env...), EnvAPIKey+"="+key)
	cmd.WaitDelay = waitDelay
	return cmd, nil
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	if c.Credentials == nil {
		return "", ErrCredentialMissing
	}
	key, err := c.Credentials.Secret(ctx, kv.APIKeySecret)
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	if key == "" {
		return "", ErrCredentialMissing
	}
	return key, nil
}

// chunkWriter hands each Write to fn. exec serializes writes when the same
// writer backs both Stdout and Stderr.
type chunkWriter struct {
	fn func(string)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.fn(string(p))
	return len(p), nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
