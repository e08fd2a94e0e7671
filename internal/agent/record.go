package agent

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Record types emitted by the agent in quiet mode.
const (
	TypeMessage            = "message"
	TypeFunctionCall       = "function_call"
	TypeFunctionCallOutput = "function_call_output"

	StatusCompleted = "completed"
)

// Record is one decoded line of agent output.
type Record struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	ID        string `json:"id,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"` // messages only
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// Completed reports whether r is a finished assistant message.
func (r *Record) Completed() bool {
	return r.Type == TypeMessage && r.Status == StatusCompleted
}

type rawRecord struct {
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments string          `json:"arguments"`
	Output    string          `json:"output"`
}

// ParseRecord decodes one output line. It returns ok=false for lines that
// are not JSON objects. A completed message whose content is neither a
// string nor a list starting with a text part yields a MalformedOutputError.
func ParseRecord(line string) (rec *Record, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil, false, nil
	}
	var raw rawRecord
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, false, nil
	}
	rec = &Record{
		Type:      raw.Type,
		Status:    raw.Status,
		ID:        raw.ID,
		Role:      raw.Role,
		CallID:    raw.CallID,
		Name:      raw.Name,
		Arguments: raw.Arguments,
		Output:    raw.Output,
	}
	if rec.Type != TypeMessage {
		return rec, true, nil
	}
	content, err := decodeContent(raw.Content)
	if err != nil {
		if rec.Completed() {
			return nil, true, &MalformedOutputError{Line: line, Reason: err.Error()}
		}
		return rec, true, nil
	}
	rec.Content = content
	return rec, true, nil
}

func decodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing content")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", errors.New("content is neither a string nor a list")
	}
	if len(parts) == 0 || parts[0].Text == nil {
		return "", errors.New("first content part has no text")
	}
	return *parts[0].Text, nil
}

// ParseCompletion returns the content of the first completed message
// record in output. Lines that are not JSON are ignored.
func ParseCompletion(output string) (string, error) {
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		rec, ok, err := ParseRecord(sc.Text())
		if err != nil {
			return "", err
		}
		if ok && rec.Completed() {
			return rec.Content, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading agent output: %w", err)
	}
	return "", ErrNoCompletion
}
