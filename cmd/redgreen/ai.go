package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deixis/redgreen/internal/agent"
	"github.com/deixis/redgreen/internal/runner"
	"github.com/deixis/redgreen/internal/workflow"
)

// --- generate ---

func generateMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	test := fs.String("test", "", "test file to extend or create (default: mapped or conventional path)")
	method := fs.String("method", "", "name of the function or method to test")
	hint := fs.String("context", "", "extra guidance for the generated tests")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("usage: redgreen generate [flags] <source file>")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Generate(ctx, workflow.GenerateRequest{
		SourcePath: fs.Arg(0),
		TestPath:   *test,
		Method:     *method,
		Context:    *hint,
	})
	if err != nil {
		return err
	}
	fmt.Println(res.Code)
	fmt.Fprintf(os.Stderr, "Appended to %s\n", res.TestPath)
	return nil
}

// --- autofix ---

func autofixMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("autofix", flag.ExitOnError)
	source := fs.String("source", "", "source file (default: current selection)")
	test := fs.String("test", "", "test file (default: current selection)")
	hint := fs.String("context", "", "extra guidance for the agent")
	_ = fs.Parse(args)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.session.Run(ctx)
	if res.Status == runner.Success {
		fmt.Fprintln(os.Stderr, "Tests pass; nothing to fix.")
		return nil
	}
	fmt.Fprintf(os.Stderr, "Tests ended with %s; starting the agent.\n", res.Status)

	err = a.engine.Autofix(ctx, workflow.AutofixRequest{
		SourcePath: *source,
		TestPath:   *test,
		Context:    *hint,
	}, func(chunk string) { fmt.Print(chunk) })
	if err != nil {
		return err
	}
	return statusExit(a.session.Store().Current().TestRunner.Status)
}

// --- agent ---

func agentMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "wait for the final message and print it as JSON")
	model := fs.String("model", "", "model override")
	_ = fs.Parse(args)

	prompt := strings.Join(fs.Args(), " ")
	if prompt == "" || prompt == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading prompt: %w", err)
		}
		prompt = string(b)
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("empty prompt")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(workflow.ResolveAgent(a.cfg.AgentBinary())) == 0 {
		return workflow.NewErrToolUnavailable(a.cfg.AgentBinary()[0])
	}
	opts := agent.Options{Model: *model}

	if *jsonFlag {
		content, err := a.agent.Run(ctx, prompt, opts)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Content string `json:"content"`
		}{content})
	}

	return a.agent.Stream(ctx, prompt, func(chunk string) { fmt.Print(chunk) }, opts)
}
