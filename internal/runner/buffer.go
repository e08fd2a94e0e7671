package runner

import (
	"strings"
	"sync"
)

const truncatedMarker = "... (output truncated)"

// Buffer accumulates process output as newline-delimited log lines.
// A trailing partial line is held back until a later chunk completes it,
// and consecutive blank lines collapse into one.
//
// Buffer implements io.Writer and is safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	lines     []string
	partial   string
	size      int
	limit     int // bytes retained; <= 0 means unbounded
	truncated bool
}

// NewBuffer returns a Buffer that retains at most limit bytes of output.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

// Write appends p as a chunk. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(string(p))
	return len(p), nil
}

// Append splits chunk on line boundaries and records every completed line.
func (b *Buffer) Append(chunk string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.full() {
		b.truncated = true
		return
	}

	parts := strings.Split(b.partial+chunk, "\n")
	b.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		b.push(line, false)
	}
	if b.limit > 0 && len(b.partial) > b.limit-b.size {
		b.partial = b.partial[:max(b.limit-b.size, 0)]
		b.truncated = true
	}
}

// Line records s as a complete line, after any pending partial line.
// Lines added this way bypass the size cap so markers are never lost.
func (b *Buffer) Line(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flush()
	b.push(s, true)
}

// Flush records the pending partial line, if any.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flush()
}

// String returns all lines joined with "\n", in arrival order. A pending
// partial line is included without being consumed.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines
	if b.partial != "" || b.truncated {
		lines = append([]string(nil), b.lines...)
		if b.partial != "" {
			lines = append(lines, strings.TrimSuffix(b.partial, "\r"))
		}
		if b.truncated {
			lines = append(lines, truncatedMarker)
		}
	}
	return strings.Join(lines, "\n")
}

// Truncated reports whether output was dropped because of the size cap.
func (b *Buffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

func (b *Buffer) full() bool {
	return b.limit > 0 && b.size+len(b.partial) >= b.limit
}

func (b *Buffer) flush() {
	if b.partial != "" {
		b.push(b.partial, false)
		b.partial = ""
	}
}

func (b *Buffer) push(line string, force bool) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" && len(b.lines) > 0 && b.lines[len(b.lines)-1] == "" {
		return
	}
	if !force && b.limit > 0 && b.size+len(line) > b.limit {
		b.truncated = true
		return
	}
	b.lines = append(b.lines, line)
	b.size += len(line) + 1
}
