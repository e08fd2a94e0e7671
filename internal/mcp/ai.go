package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/redgreen/internal/workflow"
)

type generateParams struct {
	Source     string `json:"source" jsonschema:"source file path relative to the workspace root"`
	Test       string `json:"test,omitempty" jsonschema:"test file to extend or create. Defaults to the mapped test file, then the conventional location."`
	Method     string `json:"method,omitempty" jsonschema:"name of the function or method to test. Omit to test the whole file."`
	MethodCode string `json:"method_code,omitempty" jsonschema:"source code of the method under test"`
	Context    string `json:"context,omitempty" jsonschema:"extra guidance for the generated tests"`
}

func (h *handler) generateHandler(ctx context.Context, req *mcp.CallToolRequest, params generateParams) (*mcp.CallToolResult, any, error) {
	if params.Source == "" {
		return errorResult("source is required")
	}
	res, err := h.engine.Generate(ctx, workflow.GenerateRequest{
		SourcePath: params.Source,
		TestPath:   params.Test,
		Method:     params.Method,
		MethodCode: params.MethodCode,
		Context:    params.Context,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Test generation failed: %v", err))
	}

	var b strings.Builder
	verb := "Extended"
	if res.Created {
		verb = "Created"
	}
	fmt.Fprintf(&b, "%s %s with tests for %s.\n\n", verb, res.TestPath, res.SourcePath)
	fmt.Fprintln(&b, res.Code)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Run rg_run to execute them.")
	return textResult(b.String())
}

type autofixParams struct {
	Source  string `json:"source,omitempty" jsonschema:"source file path. Defaults to the current selection."`
	Test    string `json:"test,omitempty" jsonschema:"test file path. Defaults to the current selection."`
	Context string `json:"context,omitempty" jsonschema:"extra guidance for the agent"`
}

func (h *handler) autofixHandler(ctx context.Context, req *mcp.CallToolRequest, params autofixParams) (*mcp.CallToolResult, any, error) {
	var (
		mu  sync.Mutex
		out strings.Builder
		n   float64
	)
	token := req.Params.GetProgressToken()
	onChunk := func(chunk string) {
		mu.Lock()
		out.WriteString(chunk)
		n++
		progress := n
		mu.Unlock()
		if token == nil {
			return
		}
		err := req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      progress,
			Message:       chunk,
		})
		if err != nil {
			h.log.Debug().Err(err).Msg("progress notification")
		}
	}

	err := h.engine.Autofix(ctx, workflow.AutofixRequest{
		SourcePath: params.Source,
		TestPath:   params.Test,
		Context:    params.Context,
	}, onChunk)

	mu.Lock()
	agentOutput := out.String()
	mu.Unlock()
	if err != nil {
		if agentOutput != "" {
			return errorResult(fmt.Sprintf("Autofix failed: %v\n\nAgent output:\n%s", err, agentOutput))
		}
		return errorResult(fmt.Sprintf("Autofix failed: %v", err))
	}

	var b strings.Builder
	fmt.Fprintln(&b, "Autofix finished.")
	rs := h.session.Store().Current().TestRunner
	fmt.Fprintf(&b, "Status: %s\n", rs.Status)
	if agentOutput != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Agent output:")
		fmt.Fprint(&b, agentOutput)
	}
	return textResult(b.String())
}
