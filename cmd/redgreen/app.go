package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/deixis/redgreen/internal/agent"
	"github.com/deixis/redgreen/internal/completion"
	"github.com/deixis/redgreen/internal/config"
	"github.com/deixis/redgreen/internal/kv"
	"github.com/deixis/redgreen/internal/logging"
	"github.com/deixis/redgreen/internal/metrics"
	"github.com/deixis/redgreen/internal/report"
	"github.com/deixis/redgreen/internal/runner"
	"github.com/deixis/redgreen/internal/session"
	"github.com/deixis/redgreen/internal/state"
	"github.com/deixis/redgreen/internal/workflow"
)

// app is one fully wired session for the repository containing the
// working directory.
type app struct {
	cfg      *config.Config
	root     string
	kv       *kv.Store
	runner   *runner.Runner
	history  *report.LRUStore
	session  *session.Controller
	agent    *agent.Client
	engine   *workflow.Engine
	registry *prometheus.Registry
}

func newApp(ctx context.Context) (*app, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	root := loaded.RepoRoot

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	store, err := kv.Open(ctx, cfg.StorePath(root), root, logging.Component("kv"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	creds := credentials{store: store}
	snap, err := session.Hydrate(ctx, store, creds, cfg.Command)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("restoring session: %w", err)
	}

	history := report.NewLRUStore(cfg.HistorySize(), report.NewDiskStore(""))
	r := &runner.Runner{
		Workspace: root,
		Timeout:   cfg.Timeout(),
		MaxOutput: cfg.MaxOutputBytes(),
		Env:       cfg.Env,
		Logger:    logging.Component("runner"),
	}
	ctl := session.New(session.Options{
		Runner: r,
		Store: state.NewStore(snap,
			state.WithLogger(logging.Component("state")),
			state.WithNotifyCounter(rec.Notifications()),
		),
		History:       history,
		Persist:       store,
		Keys:          creds,
		WatchInterval: cfg.WatchInterval(),
		Metrics:       rec,
		Logger:        logging.Component("session"),
	})

	binary := workflow.ResolveAgent(cfg.AgentBinary())
	if binary == nil {
		// Keep the configured binary so the spawn error names it.
		binary = cfg.AgentBinary()
	}
	agentClient := &agent.Client{
		Binary:      binary,
		Workspace:   root,
		Model:       cfg.AgentModel(),
		Credentials: creds,
		Logger:      logging.Component("agent"),
		Metrics:     rec,
	}

	engine := &workflow.Engine{
		Workspace: root,
		Session:   ctl,
		Completion: &completion.Client{
			Credentials: creds,
			Model:       cfg.CompletionModel(),
			BaseURL:     cfg.Completion.BaseURL,
			Temperature: cfg.Completion.Temperature,
			MaxTokens:   cfg.Completion.MaxTokens,
			Logger:      logging.Component("completion"),
		},
		Agent:      agentClient,
		AgentModel: cfg.AgentModel(),
		Logger:     logging.Component("workflow"),
	}

	return &app{
		cfg:      cfg,
		root:     root,
		kv:       store,
		runner:   r,
		history:  history,
		session:  ctl,
		agent:    agentClient,
		engine:   engine,
		registry: registry,
	}, nil
}

func (a *app) Close() {
	a.session.Close()
	if err := a.kv.Close(); err != nil {
		log := logging.Logger()
		log.Warn().Err(err).Msg("closing store")
	}
}

// credentials reads the API key from the key-value store, falling back to
// the OPENAI_API_KEY environment variable.
type credentials struct {
	store *kv.Store
}

func (c credentials) Secret(ctx context.Context, key string) (string, error) {
	v, err := c.store.Secret(ctx, key)
	if err != nil || v != "" {
		return v, err
	}
	if key == kv.APIKeySecret {
		return os.Getenv(agent.EnvAPIKey), nil
	}
	return "", nil
}
