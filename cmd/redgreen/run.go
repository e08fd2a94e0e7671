package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/deixis/redgreen/internal/config"
	"github.com/deixis/redgreen/internal/runner"
	"github.com/deixis/redgreen/internal/state"
)

// --- run ---

func runMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	command := fs.String("command", "", "test command to set before running")
	timeout := fs.Duration("timeout", 0, "override configured timeout (e.g. 5m)")
	_ = fs.Parse(args)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if *timeout > 0 {
		a.runner.Timeout = *timeout
	}
	if *command != "" {
		if err := a.session.SetCommand(ctx, *command); err != nil {
			return err
		}
	}

	res := a.session.Run(ctx)
	fmt.Println(res.Output)
	fmt.Fprintf(os.Stderr, "%s (%s)\n", res.Status, res.Duration.Round(time.Millisecond))
	return statusExit(res.Status)
}

// statusExit maps a run status to the process exit code.
func statusExit(s runner.Status) error {
	switch s {
	case runner.Success:
		return nil
	case runner.Fail:
		return exitError(1)
	default:
		return exitError(2)
	}
}

// --- watch ---

func watchMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	verbose := fs.Bool("v", false, "print the output of every run, not only failures")
	_ = fs.Parse(args)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if strings.TrimSpace(a.session.Store().Current().TestCommand) == "" {
		return fmt.Errorf("no test command; set one with redgreen run -command or in %s", config.FileName)
	}

	p := &transitionPrinter{verbose: *verbose}
	unsubscribe := a.session.Store().Subscribe(p.print)
	defer unsubscribe()

	fmt.Fprintf(os.Stderr, "Watching every %s. Press Ctrl-C to stop.\n", a.cfg.WatchInterval())
	a.session.ToggleWatchMode(ctx, true)
	<-ctx.Done()
	a.session.ToggleWatchMode(context.Background(), false)
	return nil
}

// transitionPrinter prints one line per runner status change.
type transitionPrinter struct {
	verbose bool

	mu   sync.Mutex
	last runner.Status
}

func (p *transitionPrinter) print(s state.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rs := s.TestRunner
	if rs.Status == p.last {
		return
	}
	p.last = rs.Status
	fmt.Printf("[%s] %s\n", time.Now().Format(time.TimeOnly), rs.Status)
	if rs.Status == runner.Fail || rs.Status == runner.Error || (p.verbose && rs.Status == runner.Success) {
		fmt.Println(rs.Output)
	}
}
