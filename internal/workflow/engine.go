// Package workflow runs the AI-assisted steps around a test run:
// generating test code for a source method, and handing a failing run to
// the coding agent. It is consumed by both the MCP server and the CLI.
package workflow

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/deixis/redgreen/internal/agent"
	"github.com/deixis/redgreen/internal/session"
)

// Completer answers a system and user prompt with text.
// Implemented by completion.Client.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Streamer runs the coding agent, forwarding output as it arrives.
// Implemented by agent.Client.
type Streamer interface {
	Stream(ctx context.Context, prompt string, onChunk func(string), opts agent.Options) error
}

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Workspace  string // repository root; all file paths resolve against it
	Session    *session.Controller
	Completion Completer
	Agent      Streamer
	AgentModel string // model for autofix; empty uses the agent default
	Logger     zerolog.Logger

	generating atomic.Bool
	fixing     atomic.Bool
}

// ResolvePath normalises a file argument so that tools work identically
// regardless of how the file is specified. Absolute paths must lie inside
// the workspace; relative paths are taken from the workspace root. It
// returns the absolute path and the workspace-relative, slash-separated
// path.
func (e *Engine) ResolvePath(p string) (abs, rel string, err error) {
	if p == "" {
		return "", "", fmt.Errorf("empty path")
	}
	root, err := filepath.Abs(e.Workspace)
	if err != nil {
		return "", "", err
	}
	abs = p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, p)
	}
	abs = filepath.Clean(abs)
	rel, err = filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%s is outside the workspace %s", p, root)
	}
	return abs, filepath.ToSlash(rel), nil
}

// Language names the programming language of a file from its extension.
// Unsupported languages are reported as "plaintext".
func Language(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "python"
	case ".ts":
		return "typescript"
	case ".js":
		return "javascript"
	case ".go":
		return "go"
	case ".java":
		return "java"
	default:
		return "plaintext"
	}
}

// SuggestTestPath returns the conventional test file location for a
// workspace-relative source path.
func (e *Engine) SuggestTestPath(source string) string {
	source = filepath.ToSlash(source)
	ext := filepath.Ext(source)
	base := strings.TrimSuffix(filepath.Base(source), ext)
	dir := filepath.Dir(source)

	testDir := "test"
	for _, d := range []string{"test", "tests", "src/test", "src/tests"} {
		if st, err := os.Stat(filepath.Join(e.Workspace, d)); err == nil && st.IsDir() {
			testDir = d
			break
		}
	}

	join := func(parts ...string) string { return filepath.ToSlash(filepath.Join(parts...)) }
	switch Language(source) {
	case "go":
		return join(dir, base+"_test"+ext)
	case "python":
		sub := dir
		if sub == "src" {
			sub = "."
		} else if strings.HasPrefix(sub, "src/") {
			sub = sub[len("src/"):]
		}
		return join(testDir, sub, "test_"+base+ext)
	case "typescript", "javascript":
		return join(testDir, dir, base+".test"+ext)
	case "java":
		rel := strings.TrimPrefix(strings.TrimPrefix(source, "src/main/java/"), "src/")
		return join("src/test/java", filepath.Dir(rel), base+"Test"+ext)
	default:
		return join("tests", "test_"+base+ext)
	}
}

// maxTreeEntries bounds the directory listing embedded in prompts.
const maxTreeEntries = 400

// FileTree lists the workspace's directories and the files ending in ext
// as an indented tree. Hidden directories are skipped.
func (e *Engine) FileTree(ext string) string {
	var b strings.Builder
	n := 0
	_ = filepath.WalkDir(e.Workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == e.Workspace {
			return nil
		}
		if n >= maxTreeEntries {
			return fs.SkipAll
		}
		rel, _ := filepath.Rel(e.Workspace, path)
		depth := strings.Count(filepath.ToSlash(rel), "/")
		indent := strings.Repeat("  ", depth)
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules" {
				return fs.SkipDir
			}
			fmt.Fprintf(&b, "%s%s/\n", indent, d.Name())
			n++
			return nil
		}
		if strings.HasSuffix(d.Name(), ext) {
			fmt.Fprintf(&b, "%s%s\n", indent, d.Name())
			n++
		}
		return nil
	})
	if n >= maxTreeEntries {
		b.WriteString("...\n")
	}
	return b.String()
}

// ResolveAgent returns the argv prefix for invoking the coding agent.
// It uses binary when its executable is on PATH, then falls back to
// running the published package through npx. Returns nil if neither is
// available.
func ResolveAgent(binary []string) []string {
	if len(binary) > 0 {
		if p, err := exec.LookPath(binary[0]); err == nil {
			return append([]string{p}, binary[1:]...)
		}
	}
	if npx, err := exec.LookPath("npx"); err == nil {
		return []string{npx, "--yes", knownTools["codex"].Package}
	}
	return nil
}

// toolInfo holds install metadata for a known tool.
type toolInfo struct {
	// Package is the npm package providing the tool.
	Package string
	// AltInstall is an alternative install instruction.
	AltInstall string
}

// knownTools maps tool binary names to their install metadata.
var knownTools = map[string]toolInfo{
	"codex": {Package: "@openai/codex", AltInstall: "brew install codex"},
}

// ErrToolUnavailable is returned when a required tool is not installed.
// It includes actionable install instructions when the tool is known.
type ErrToolUnavailable struct {
	Name string
	Info *toolInfo
}

func NewErrToolUnavailable(name string) ErrToolUnavailable {
	e := ErrToolUnavailable{Name: name}
	if info, ok := knownTools[name]; ok {
		e.Info = &info
	}
	return e
}

func (e ErrToolUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is required but not installed.", e.Name)

	if e.Info == nil {
		return b.String()
	}

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "\nInstall:")
	if e.Info.Package != "" {
		fmt.Fprintf(&b, "\n  npm install -g %s", e.Info.Package)
	}
	if e.Info.AltInstall != "" {
		fmt.Fprintf(&b, "\n  %s", e.Info.AltInstall)
	}
	return b.String()
}
