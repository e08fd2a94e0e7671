package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/redgreen/internal/report"
)

type historyParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs to list, newest first. Default: 10."`
}

func (h *handler) historyHandler(ctx context.Context, req *mcp.CallToolRequest, params historyParams) (*mcp.CallToolResult, any, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	runs := h.history.Recent(limit)
	if len(runs) == 0 {
		return textResult("No runs recorded yet.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Runs (%d):\n", len(runs))
	for _, r := range runs {
		s := report.Summarize(r)
		fmt.Fprintf(&b, "  %s  %-7s  exit=%d  %s  %s  %s\n", s.RunID, s.Status, s.ExitCode, s.Started, s.Duration, s.Command)
	}
	return textResult(b.String())
}

type inspectParams struct {
	RunID   string `json:"run_id" jsonschema:"the run ID from an rg_run or rg_history result"`
	Pattern string `json:"pattern,omitempty" jsonschema:"Go regular expression selecting output lines. Omit for the full output."`
	Context int    `json:"context,omitempty" jsonschema:"number of lines to show around each match. Default: 0."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	result, err := h.history.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	lines, err := report.Grep(result, params.Pattern, params.Context)
	if err != nil {
		return errorResult(err.Error())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s (%s, exit %d)\n", result.RunID, result.Status, result.ExitCode)
	fmt.Fprintf(&b, "Command: %s\n", result.Command)
	fmt.Fprintln(&b)
	if len(lines) == 0 {
		fmt.Fprintf(&b, "No lines match %q.\n", params.Pattern)
		return textResult(b.String())
	}

	prev := 0
	for _, l := range lines {
		if prev != 0 && l.N != prev+1 {
			fmt.Fprintln(&b, "--")
		}
		fmt.Fprintf(&b, "%5d  %s\n", l.N, l.Text)
		prev = l.N
	}
	return textResult(b.String())
}
