package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deixis/redgreen/internal/completion"
	"github.com/deixis/redgreen/internal/state"
)

var (
	// ErrNoTestCode is returned when the model reply holds no code block.
	ErrNoTestCode = errors.New("no test code found in response")

	// ErrBusy is returned when the same operation is already in progress.
	ErrBusy = errors.New("operation already in progress")
)

// GenerateRequest selects what to generate tests for. TestPath may be
// empty: the existing mapping for the source is used, then the
// conventional location for its language.
type GenerateRequest struct {
	SourcePath string
	TestPath   string
	Method     string // name of the method under test; empty means the whole file
	MethodCode string
	Context    string // free-form guidance; empty reuses the last one given
}

// GenerateResult describes the code appended to the test file.
type GenerateResult struct {
	SourcePath string `json:"sourcePath"`
	TestPath   string `json:"testPath"`
	Created    bool   `json:"created"`
	Code       string `json:"code"`
}

// Generate asks the completion model for tests and appends the largest
// code block of its reply to the test file. On success the source is
// mapped to the test file and both become the current selection.
// Progress is reported through the snapshot's current test generation.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if e.Completion == nil {
		return nil, errors.New("test generation is not configured")
	}
	if !e.generating.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.generating.Store(false)

	res, err := e.generate(ctx, req)
	if err != nil {
		e.Logger.Warn().Err(err).Str("source", req.SourcePath).Msg("test generation failed")
		e.Session.Store().Update(state.Patch{
			CurrentTestGeneration: &state.Operation{Status: state.Failed, Message: err.Error()},
		})
		return nil, err
	}
	e.Logger.Info().Str("source", res.SourcePath).Str("test", res.TestPath).Bool("created", res.Created).Msg("tests generated")
	e.Session.Store().Update(state.Patch{
		CurrentTestGeneration: &state.Operation{
			Status:  state.Succeeded,
			Message: fmt.Sprintf("Added tests to %s", res.TestPath),
		},
	})
	return res, nil
}

func (e *Engine) generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	srcAbs, srcRel, err := e.ResolvePath(req.SourcePath)
	if err != nil {
		return nil, err
	}
	source, err := os.ReadFile(srcAbs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("source file does not exist: %s", srcRel)
		}
		return nil, err
	}

	testPath := req.TestPath
	if testPath == "" {
		testPath = e.Session.Store().Current().TestMappings[srcRel]
	}
	if testPath == "" {
		testPath = e.SuggestTestPath(srcRel)
	}
	testAbs, testRel, err := e.ResolvePath(testPath)
	if err != nil {
		return nil, err
	}
	existing, created, err := readOrCreate(testAbs)
	if err != nil {
		return nil, err
	}

	e.Session.Store().Update(state.Patch{
		CurrentTestGeneration: &state.Operation{
			Status:  state.InProgress,
			Message: fmt.Sprintf("Generating tests for %s...", srcRel),
		},
	})

	lang := Language(srcRel)
	system, err := render("testgen_system.tmpl", nil)
	if err != nil {
		return nil, err
	}
	user, err := render("testgen_user.tmpl", testGenPrompt{
		Language:          lang,
		MethodName:        req.Method,
		MethodCode:        req.MethodCode,
		RootDir:           e.Workspace,
		SourceFilePath:    srcRel,
		SourceFileContent: string(source),
		TestFilePath:      testRel,
		TestFileContent:   existing,
		DirectoryTree:     e.FileTree(filepath.Ext(srcRel)),
		Context:           e.Session.Guidance(ctx, req.Context),
	})
	if err != nil {
		return nil, err
	}

	reply, err := e.Completion.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}
	code := completion.LargestCodeBlock(reply)
	if strings.TrimSpace(code) == "" {
		return nil, ErrNoTestCode
	}

	if err := appendCode(testAbs, existing, code); err != nil {
		return nil, err
	}
	if err := e.Session.MapTestFile(ctx, srcRel, testRel); err != nil {
		return nil, err
	}
	if err := e.Session.SelectFiles(ctx, srcRel, testRel); err != nil {
		return nil, err
	}
	return &GenerateResult{SourcePath: srcRel, TestPath: testRel, Created: created, Code: code}, nil
}

// readOrCreate returns the file's content, creating it and its parent
// directories when it does not exist yet.
func readOrCreate(path string) (content string, created bool, err error) {
	b, err := os.ReadFile(path)
	if err == nil {
		return string(b), false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, err
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return "", false, err
	}
	return "", true, nil
}

func appendCode(path, existing, code string) error {
	var b strings.Builder
	if existing != "" {
		if !strings.HasSuffix(existing, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(code)
	b.WriteString("\n")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
