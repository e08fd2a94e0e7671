package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/redgreen/internal/report"
	"github.com/deixis/redgreen/internal/runner"
)

// runOutputLines bounds the output returned inline by rg_run.
const runOutputLines = 100

type stateParams struct{}

func (h *handler) stateHandler(ctx context.Context, req *mcp.CallToolRequest, _ stateParams) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(h.session.Store().Current(), "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encoding state: %v", err))
	}
	return textResult(string(b))
}

type setCommandParams struct {
	Command string `json:"command" jsonschema:"shell command that runs the tests, e.g. go test ./... or npm test"`
}

func (h *handler) setCommandHandler(ctx context.Context, req *mcp.CallToolRequest, params setCommandParams) (*mcp.CallToolResult, any, error) {
	if err := h.session.SetCommand(ctx, params.Command); err != nil {
		return errorResult(fmt.Sprintf("Failed to save test command: %v", err))
	}
	if strings.TrimSpace(params.Command) == "" {
		return textResult("Test command cleared.")
	}
	return textResult(fmt.Sprintf("Test command set to: %s", params.Command))
}

type runParams struct{}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, _ runParams) (*mcp.CallToolResult, any, error) {
	res := h.session.Run(ctx)
	return textResult(formatRun(res))
}

type stopParams struct{}

func (h *handler) stopHandler(ctx context.Context, req *mcp.CallToolRequest, _ stopParams) (*mcp.CallToolResult, any, error) {
	return textResult(h.session.Stop())
}

type watchParams struct {
	Enabled bool `json:"enabled" jsonschema:"true to run the tests now and then on every interval, false to stop"`
}

func (h *handler) watchHandler(ctx context.Context, req *mcp.CallToolRequest, params watchParams) (*mcp.CallToolResult, any, error) {
	h.session.ToggleWatchMode(ctx, params.Enabled)
	rs := h.session.Store().Current().TestRunner
	if !params.Enabled {
		return textResult("Watch mode disabled.")
	}
	return textResult(fmt.Sprintf("Watch mode enabled. Status: %s", rs.Status))
}

func formatRun(res *runner.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Status: %s\n", res.Status)
	if res.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", res.RunID)
	}
	if res.Command != "" {
		fmt.Fprintf(&b, "Command: %s\n", res.Command)
		fmt.Fprintf(&b, "Exit code: %d\n", res.ExitCode)
		fmt.Fprintf(&b, "Duration: %s\n", res.Duration.Round(time.Millisecond))
	}
	if res.Stopped {
		fmt.Fprintln(&b, "Stopped: yes")
	}
	if res.Truncated {
		fmt.Fprintln(&b, "Output truncated: yes")
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, report.Tail(res.Output, runOutputLines))

	if res.Command != "" && (res.Status == runner.Fail || res.Status == runner.Error) {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Inspect with rg_inspect(run_id=%q, pattern=\"<regexp>\").\n", res.RunID)
	}
	return b.String()
}
