package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deixis/redgreen/internal/agent"
	"github.com/deixis/redgreen/internal/report"
	"github.com/deixis/redgreen/internal/runner"
	"github.com/deixis/redgreen/internal/state"
)

// ErrNothingToFix is returned when the last run neither failed nor errored.
var ErrNothingToFix = errors.New("test status is not FAIL or ERROR")

// autofixOutputLines bounds the run output embedded in the agent prompt.
const autofixOutputLines = 200

// AutofixRequest selects the files handed to the agent. Empty paths fall
// back to the current selection and an empty Context to the last one
// given.
type AutofixRequest struct {
	SourcePath string
	TestPath   string
	Context    string
}

// Autofix hands the last failing or erroring run to the coding agent,
// forwarding its output to onChunk as it arrives. When the agent
// finishes cleanly the tests run again, unless watch mode will pick the
// change up on its own.
func (e *Engine) Autofix(ctx context.Context, req AutofixRequest, onChunk func(string)) error {
	if e.Agent == nil {
		return errors.New("autofix is not configured")
	}
	if !e.fixing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer e.fixing.Store(false)

	if onChunk == nil {
		onChunk = func(string) {}
	}

	if err := e.autofix(ctx, req, onChunk); err != nil {
		e.Logger.Warn().Err(err).Msg("autofix failed")
		e.Session.Store().Update(state.Patch{
			CurrentAutofix: &state.Operation{Status: state.Failed, Message: err.Error()},
		})
		return err
	}
	e.Logger.Info().Msg("autofix finished")
	e.Session.Store().Update(state.Patch{
		CurrentAutofix: &state.Operation{Status: state.Succeeded, Message: "Autofix finished"},
	})

	if !e.Session.Watching() {
		e.Session.Run(ctx)
	}
	return nil
}

func (e *Engine) autofix(ctx context.Context, req AutofixRequest, onChunk func(string)) error {
	snap := e.Session.Store().Current()
	status := snap.TestRunner.Status
	if status != runner.Fail && status != runner.Error {
		return ErrNothingToFix
	}

	if req.SourcePath == "" {
		req.SourcePath = snap.SourceFilePath
	}
	if req.TestPath == "" {
		req.TestPath = snap.TestFilePath
	}
	if req.SourcePath == "" || req.TestPath == "" {
		return errors.New("select a source file and a test file first")
	}
	srcAbs, srcRel, err := e.ResolvePath(req.SourcePath)
	if err != nil {
		return err
	}
	testAbs, testRel, err := e.ResolvePath(req.TestPath)
	if err != nil {
		return err
	}
	source, err := readExisting(srcAbs, "source", srcRel)
	if err != nil {
		return err
	}
	test, err := readExisting(testAbs, "test", testRel)
	if err != nil {
		return err
	}

	name := "autofix_fail.tmpl"
	if status == runner.Error {
		name = "autofix_error.tmpl"
	}
	prompt, err := render(name, autofixPrompt{
		Language:       Language(srcRel),
		RootDir:        e.Workspace,
		TestCommand:    snap.TestCommand,
		SourceFilePath: srcRel,
		SourceCode:     source,
		TestFilePath:   testRel,
		TestCode:       test,
		ErrorOutput:    report.Tail(snap.TestRunner.Output, autofixOutputLines),
		DirectoryTree:  e.FileTree(filepath.Ext(srcRel)),
		Context:        e.Session.Guidance(ctx, req.Context),
	})
	if err != nil {
		return err
	}

	e.Session.Store().Update(state.Patch{
		CurrentAutofix: &state.Operation{
			Status:  state.InProgress,
			Message: fmt.Sprintf("Fixing %s...", testRel),
		},
	})
	return e.Agent.Stream(ctx, prompt, onChunk, agent.Options{Model: e.AgentModel})
}

func readExisting(path, kind, rel string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s file does not exist: %s", kind, rel)
	}
	return string(b), err
}
