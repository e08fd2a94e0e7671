package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/redgreen/internal/session"
	"github.com/deixis/redgreen/internal/state"
)

type selectParams struct {
	Source string `json:"source,omitempty" jsonschema:"source file path relative to the workspace root"`
	Test   string `json:"test,omitempty" jsonschema:"test file path relative to the workspace root"`
	Clear  bool   `json:"clear,omitempty" jsonschema:"forget the current selection before applying source and test"`
}

func (h *handler) selectHandler(ctx context.Context, req *mcp.CallToolRequest, params selectParams) (*mcp.CallToolResult, any, error) {
	if params.Clear {
		if err := h.session.ClearSelection(ctx); err != nil {
			return errorResult(fmt.Sprintf("Failed to clear selection: %v", err))
		}
	}
	source, test, err := h.resolvePair(params.Source, params.Test)
	if err != nil {
		return errorResult(err.Error())
	}
	if err := h.session.SelectFiles(ctx, source, test); err != nil {
		return errorResult(fmt.Sprintf("Failed to save selection: %v", err))
	}
	snap := h.session.Store().Current()
	return textResult(fmt.Sprintf("Source: %s\nTest: %s", orNone(snap.SourceFilePath), orNone(snap.TestFilePath)))
}

type mapParams struct {
	Source string `json:"source" jsonschema:"source file path relative to the workspace root"`
	Test   string `json:"test" jsonschema:"test file path relative to the workspace root"`
}

func (h *handler) mapHandler(ctx context.Context, req *mcp.CallToolRequest, params mapParams) (*mcp.CallToolResult, any, error) {
	if params.Source == "" || params.Test == "" {
		return errorResult("source and test are required")
	}
	source, test, err := h.resolvePair(params.Source, params.Test)
	if err != nil {
		return errorResult(err.Error())
	}
	if err := h.session.MapTestFile(ctx, source, test); err != nil {
		return errorResult(fmt.Sprintf("Failed to save mapping: %v", err))
	}
	return textResult(fmt.Sprintf("Mapped %s -> %s", source, test))
}

type unmapParams struct {
	Source string `json:"source" jsonschema:"source file path relative to the workspace root"`
}

func (h *handler) unmapHandler(ctx context.Context, req *mcp.CallToolRequest, params unmapParams) (*mcp.CallToolResult, any, error) {
	if params.Source == "" {
		return errorResult("source is required")
	}
	source, _, err := h.resolvePair(params.Source, "")
	if err != nil {
		return errorResult(err.Error())
	}
	if err := h.session.UnmapTestFile(ctx, source); err != nil {
		return errorResult(fmt.Sprintf("Failed to remove mapping: %v", err))
	}
	return textResult(fmt.Sprintf("Removed mapping for %s", source))
}

type setAPIKeyParams struct {
	APIKey string `json:"api_key" jsonschema:"OpenAI API key; empty deletes the stored key"`
}

func (h *handler) setAPIKeyHandler(ctx context.Context, req *mcp.CallToolRequest, params setAPIKeyParams) (*mcp.CallToolResult, any, error) {
	if err := h.session.SetAPIKey(ctx, params.APIKey); err != nil {
		return errorResult(fmt.Sprintf("Failed to store API key: %v", err))
	}
	if params.APIKey == "" {
		return textResult("API key deleted.")
	}
	return textResult("API key stored.")
}

type settingsParams struct {
	ModelProvider *string `json:"selected_model_provider,omitempty" jsonschema:"model provider used for test generation, e.g. openai"`
	APIKey        *string `json:"api_key,omitempty" jsonschema:"API key; empty deletes the stored key"`
}

func (h *handler) settingsHandler(ctx context.Context, req *mcp.CallToolRequest, params settingsParams) (*mcp.CallToolResult, any, error) {
	if params.ModelProvider == nil && params.APIKey == nil {
		if err := h.session.NavigateTo(state.PageSettings); err != nil {
			return errorResult(err.Error())
		}
		snap := h.session.Store().Current()
		key := "not set"
		if snap.IsAPIKeySet {
			key = "set"
		}
		return textResult(fmt.Sprintf("Model provider: %s\nAPI key: %s", orNone(snap.SelectedModelProvider), key))
	}

	err := h.session.SaveSettings(ctx, session.Settings{
		ModelProvider: params.ModelProvider,
		APIKey:        params.APIKey,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to save settings: %v", err))
	}
	return textResult("Settings saved.")
}

// resolvePair converts non-empty paths to workspace-relative form.
func (h *handler) resolvePair(source, test string) (string, string, error) {
	var err error
	if source != "" {
		if _, source, err = h.engine.ResolvePath(source); err != nil {
			return "", "", err
		}
	}
	if test != "" {
		if _, test, err = h.engine.ResolvePath(test); err != nil {
			return "", "", err
		}
	}
	return source, test, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
