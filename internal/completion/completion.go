// Package completion wraps the OpenAI chat completion API for one-shot
// test code generation.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/deixis/redgreen/internal/agent"
	"github.com/deixis/redgreen/internal/kv"
)

// DefaultModel is used when Client.Model is empty.
const DefaultModel = "gpt-4.1-2025-04-14"

// ErrEmptyResponse is returned when the API answers without any content.
var ErrEmptyResponse = errors.New("completion: no content returned")

// Client issues chat completions with the stored API key. The key is read
// on every call so a newly stored key takes effect immediately.
type Client struct {
	Credentials agent.Credentials
	Model       string
	BaseURL     string  // optional OpenAI-compatible endpoint
	Temperature float64 // 0 leaves the server default
	MaxTokens   int64   // 0 leaves the server default
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Complete sends a system and a user message and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.Credentials == nil {
		return "", agent.ErrCredentialMissing
	}
	key, err := c.Credentials.Secret(ctx, kv.APIKeySecret)
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	if key == "" {
		return "", agent.ErrCredentialMissing
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	if c.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.HTTPClient))
	}
	api := openai.NewClient(opts...)

	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if c.Temperature != 0 {
		params.Temperature = openai.Float(c.Temperature)
	}
	if c.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.MaxTokens)
	}

	c.Logger.Debug().Str("model", model).Int("prompt_bytes", len(system)+len(user)).Msg("requesting completion")
	resp, err := api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

var codeBlock = regexp.MustCompile("```[^\\n]*\\n([\\s\\S]*?)\\n```")

// LargestCodeBlock returns the body of the longest fenced code block in
// text, or "" if there is none. Ties go to the earlier block.
func LargestCodeBlock(text string) string {
	var best string
	for _, m := range codeBlock.FindAllStringSubmatch(text, -1) {
		if len(m[1]) > len(best) {
			best = m[1]
		}
	}
	return best
}
