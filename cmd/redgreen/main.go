// Command redgreen runs a project's tests, watches them, and hands
// failures to a coding agent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/deixis/redgreen"
	"github.com/deixis/redgreen/internal/logging"
)

// exitError carries a process exit code out of a subcommand.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	root := flag.NewFlagSet("redgreen", flag.ExitOnError)
	root.Usage = usage
	logLevel := root.String("log-level", "warn", "log level (debug, info, warn, error)")
	logJSON := root.Bool("log-json", false, "write logs as JSON")
	_ = root.Parse(os.Args[1:])

	format := "console"
	if *logJSON {
		format = "json"
	}
	logging.Init(logging.Config{Level: *logLevel, Format: format})

	args := root.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := args[0]
	args = args[1:]

	var err error
	switch cmd {
	case "run":
		err = runMain(ctx, args)
	case "watch":
		err = watchMain(ctx, args)
	case "generate":
		err = generateMain(ctx, args)
	case "autofix":
		err = autofixMain(ctx, args)
	case "agent":
		err = agentMain(ctx, args)
	case "mcp":
		err = mcpMain(ctx, args)
	case "key":
		err = keyMain(ctx, args)
	case "version":
		fmt.Println(redgreen.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "redgreen: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	var code exitError
	switch {
	case errors.As(err, &code):
		stop()
		os.Exit(int(code))
	case err != nil:
		log := logging.Logger()
		log.Error().Err(err).Str("command", cmd).Msg("command failed")
		fmt.Fprintf(os.Stderr, "redgreen: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: redgreen [-log-level level] [-log-json] <command> [flags]

Commands:
  run         Run the test command once (exit 0 pass, 1 fail, 2 error)
  watch       Run the tests now and on every interval until interrupted
  generate    Generate tests for a source file
  autofix     Run the tests and hand a failure to the coding agent
  agent       Send a prompt to the coding agent
  mcp         Start the MCP server
  key         Store or delete the API key (key set [key] | key delete)
  version     Print the version
  help        Show this help

Use "redgreen <command> -h" for command-specific flags.`)
}
