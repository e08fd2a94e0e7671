// Package mcp provides the redgreen MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/redgreen"
	"github.com/deixis/redgreen/internal/report"
	"github.com/deixis/redgreen/internal/session"
	"github.com/deixis/redgreen/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	session *session.Controller
	engine  *workflow.Engine
	history *report.LRUStore
	log     zerolog.Logger
}

// NewServer creates an MCP server with all redgreen tools registered.
// The engine's session is the one the tools drive.
func NewServer(engine *workflow.Engine, history *report.LRUStore, opts ...ServerOption) *mcp.Server {
	var so serverOptions
	for _, o := range opts {
		o(&so)
	}
	h := &handler{
		session: engine.Session,
		engine:  engine,
		history: history,
		log:     so.logger,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.checkRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "redgreen", Version: redgreen.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_state",
		Description: "Return the current session state as JSON: test command, selected files, mappings, runner status and output, operation progress.",
	}, h.stateHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_set_command",
		Description: "Set the shell command that runs the tests. Resets the runner status; runs immediately when watch mode is on.",
	}, h.setCommandHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "rg_run",
		Description: `Run the test command once and wait for it to finish.

Exit code 0 is PASS, 1 is FAIL, anything else (or a process that could not start) is ERROR.
Results are stored for drill-down via rg_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_stop",
		Description: "Stop the test run in progress, if any. In watch mode this also cancels the next scheduled run.",
	}, h.stopHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_watch",
		Description: "Turn watch mode on or off. When on, the tests run now and then every interval while no run is in progress.",
	}, h.watchHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_history",
		Description: "List recent test runs, newest first.",
	}, h.historyHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "rg_inspect",
		Description: `Drill into the output of a stored run.

Use the run_id from rg_run or rg_history. With a pattern (Go regular expression), only matching
lines and the requested number of context lines are returned, each prefixed with its line number.`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_select",
		Description: "Select the current source file and test file. Paths are relative to the workspace root. clear=true forgets the current selection first.",
	}, h.selectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_map",
		Description: "Remember that a source file is tested by a test file.",
	}, h.mapHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_unmap",
		Description: "Forget the test file mapped to a source file.",
	}, h.unmapHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "rg_generate",
		Description: `Generate unit tests for a source file or one of its methods and append them to the test file.

When test is omitted, the mapped test file is used, then the conventional location for the language.
The source and test files become the current selection.`,
	}, h.generateHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "rg_autofix",
		Description: `Hand the last failing or erroring run to the coding agent and let it edit the files.

Requires a previous run with status FAIL or ERROR. Agent output is streamed as progress notifications.
When watch mode is off the tests run again afterwards.`,
	}, h.autofixHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rg_set_api_key",
		Description: "Store the API key used by the coding agent and test generation. An empty key deletes it.",
	}, h.setAPIKeyHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "rg_settings",
		Description: `Show or save the settings.

Without arguments, returns the selected model provider and whether an API key is available.
With selected_model_provider and/or api_key, stores them; omitted fields are left unchanged.`,
	}, h.settingsHandler)

	return s
}

// ServerOption configures the redgreen MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger zerolog.Logger
}

// WithLogger attaches a logger to the server.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// checkRoots queries the client for MCP roots and warns when the first
// one names a different directory than the session's workspace. The
// session stays bound to the workspace it was started in.
func (h *handler) checkRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	if filepath.Clean(u.Path) != filepath.Clean(h.engine.Workspace) {
		h.log.Warn().
			Str("root", u.Path).
			Str("workspace", h.engine.Workspace).
			Msg("client root differs from workspace; start redgreen in the client's root to use it")
	}
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
