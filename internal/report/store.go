// Package report provides persistence and retrieval of test run results.
// Results are kept in a small in-memory LRU backed by JSON files on disk
// and can be listed newest first or filtered line by line.
package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/deixis/redgreen/internal/runner"
)

// Store persists and retrieves run results.
type Store interface {
	Save(result *runner.Result) error
	Load(runID string) (*runner.Result, error)
}

// Summary is the compact form of a run used in listings.
type Summary struct {
	RunID    string        `json:"run_id"`
	Command  string        `json:"command"`
	Status   runner.Status `json:"status"`
	ExitCode int           `json:"exit_code"`
	Stopped  bool          `json:"stopped,omitempty"`
	Started  string        `json:"started_at"`
	Duration string        `json:"duration"`
}

// Summarize returns the listing form of r.
func Summarize(r *runner.Result) Summary {
	return Summary{
		RunID:    r.RunID,
		Command:  r.Command,
		Status:   r.Status,
		ExitCode: r.ExitCode,
		Stopped:  r.Stopped,
		Started:  r.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		Duration: r.Duration.String(),
	}
}

// Line is one numbered line of run output.
type Line struct {
	N    int    `json:"n"` // 1-based
	Text string `json:"text"`
}

// Grep returns the output lines of r matching pattern, with context lines
// of surrounding output. An empty pattern matches every line.
func Grep(r *runner.Result, pattern string, context int) ([]Line, error) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
	}

	lines := strings.Split(strings.TrimRight(r.Output, "\n"), "\n")
	keep := make([]bool, len(lines))
	for i, l := range lines {
		if re != nil && !re.MatchString(l) {
			continue
		}
		for j := max(0, i-context); j <= min(len(lines)-1, i+context); j++ {
			keep[j] = true
		}
	}

	var out []Line
	for i, l := range lines {
		if keep[i] {
			out = append(out, Line{N: i + 1, Text: l})
		}
	}
	return out, nil
}

// Tail returns the last n lines of output, or all of it when n <= 0.
func Tail(output string, n int) string {
	if n <= 0 {
		return output
	}
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) <= n {
		return output
	}
	return fmt.Sprintf("... (%d lines omitted)\n%s", len(lines)-n, strings.Join(lines[len(lines)-n:], "\n"))
}
