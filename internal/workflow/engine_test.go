package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolvePath_Relative(t *testing.T) {
	e := &Engine{Workspace: "/project"}
	abs, rel, err := e.ResolvePath("pkg/foo.go")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if abs != filepath.FromSlash("/project/pkg/foo.go") || rel != "pkg/foo.go" {
		t.Errorf("ResolvePath(pkg/foo.go) = %q, %q", abs, rel)
	}
}

func TestResolvePath_AbsoluteInsideWorkspace(t *testing.T) {
	e := &Engine{Workspace: "/project"}
	_, rel, err := e.ResolvePath("/project/src/app.py")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if rel != "src/app.py" {
		t.Errorf("rel = %q, want src/app.py", rel)
	}
}

func TestResolvePath_Outside(t *testing.T) {
	e := &Engine{Workspace: "/project"}
	for _, p := range []string{"/other/x.go", "../x.go", "pkg/../../x.go"} {
		if _, _, err := e.ResolvePath(p); err == nil {
			t.Errorf("ResolvePath(%q) succeeded, want error", p)
		}
	}
}

func TestResolvePath_Empty(t *testing.T) {
	e := &Engine{Workspace: "/project"}
	if _, _, err := e.ResolvePath(""); err == nil {
		t.Error("ResolvePath(\"\") succeeded, want error")
	}
}

func TestLanguage(t *testing.T) {
	tests := map[string]string{
		"a.py":      "python",
		"a.ts":      "typescript",
		"a.js":      "javascript",
		"a.go":      "go",
		"A.java":    "java",
		"README.md": "plaintext",
		"Makefile":  "plaintext",
	}
	for path, want := range tests {
		if got := Language(path); got != want {
			t.Errorf("Language(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSuggestTestPath(t *testing.T) {
	root := t.TempDir()
	e := &Engine{Workspace: root}

	tests := []struct {
		source string
		want   string
	}{
		{"pkg/foo/bar.go", "pkg/foo/bar_test.go"},
		{"src/app/models.py", "test/app/test_models.py"},
		{"src/models.py", "test/test_models.py"},
		{"lib/util.ts", "test/lib/util.test.ts"},
		{"index.js", "test/index.test.js"},
		{"src/main/java/com/acme/Foo.java", "src/test/java/com/acme/FooTest.java"},
		{"src/com/acme/Foo.java", "src/test/java/com/acme/FooTest.java"},
		{"script.rb", "tests/test_script.rb"},
	}
	for _, tt := range tests {
		if got := e.SuggestTestPath(tt.source); got != tt.want {
			t.Errorf("SuggestTestPath(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestSuggestTestPath_PrefersExistingTestDir(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "tests"), 0o755); err != nil {
		t.Fatal(err)
	}
	e := &Engine{Workspace: root}
	if got := e.SuggestTestPath("models.py"); got != "tests/test_models.py" {
		t.Errorf("SuggestTestPath(models.py) = %q, want tests/test_models.py", got)
	}
}

func TestFileTree(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"pkg/a.go", "pkg/b.txt", ".git/config.go", "node_modules/x/y.go", "main.go"} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e := &Engine{Workspace: root}
	tree := e.FileTree(".go")

	for _, want := range []string{"pkg/\n", "  a.go\n", "main.go\n"} {
		if !strings.Contains(tree, want) {
			t.Errorf("tree missing %q:\n%s", want, tree)
		}
	}
	for _, unwanted := range []string{"b.txt", ".git", "node_modules", "config.go"} {
		if strings.Contains(tree, unwanted) {
			t.Errorf("tree contains %q:\n%s", unwanted, tree)
		}
	}
}

func TestErrToolUnavailable_Known(t *testing.T) {
	err := NewErrToolUnavailable("codex")
	msg := err.Error()
	if !strings.Contains(msg, "codex is required but not installed.") {
		t.Errorf("missing headline: %s", msg)
	}
	if !strings.Contains(msg, "npm install -g @openai/codex") {
		t.Errorf("missing npm instruction: %s", msg)
	}
	var target ErrToolUnavailable
	if !errors.As(error(err), &target) || target.Name != "codex" {
		t.Errorf("errors.As failed for %v", err)
	}
}

func TestErrToolUnavailable_Unknown(t *testing.T) {
	msg := NewErrToolUnavailable("mystery").Error()
	if msg != "mystery is required but not installed." {
		t.Errorf("Error() = %q", msg)
	}
}

func TestResolveAgent_FromPath(t *testing.T) {
	argv := ResolveAgent([]string{"sh", "-c"})
	if len(argv) != 2 || filepath.Base(argv[0]) != "sh" || argv[1] != "-c" {
		t.Errorf("ResolveAgent(sh -c) = %v", argv)
	}
}
