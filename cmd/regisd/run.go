package main

import (
	"context"
	"fmt"
	"os"

	"github.com/exclusivedisjunction/regisd/internal/auth"
	"github.com/exclusivedisjunction/regisd/internal/broadcast"
	"github.com/exclusivedisjunction/regisd/internal/clientlisten"
	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/consolelisten"
	"github.com/exclusivedisjunction/regisd/internal/eventbus"
	"github.com/exclusivedisjunction/regisd/internal/metric"
	"github.com/exclusivedisjunction/regisd/internal/orchestrator"
	"github.com/exclusivedisjunction/regisd/internal/telemetry"
)

// daemonOptions collects the flags main.go parses, kept separate from
// cobra's own types so runDaemon stays testable without a *cobra.Command.
type daemonOptions struct {
	root           string
	daemon         bool
	verbose        bool
	debug          bool
	overrideConfig bool
	stdout         string
	stderr         string
}

// runDaemon wires every component named in spec.md §2's component table
// and blocks until the orchestrator's Run loop returns. It never calls
// os.Exit itself — main.go maps the returned error to an exit code.
func runDaemon(ctx context.Context, opts daemonOptions) (int, error) {
	if err := os.MkdirAll(authDir(opts.root), 0o700); err != nil {
		return exitDirectories, fmt.Errorf("create directories: %w", err)
	}

	targets, err := openLogTargets(opts.stdout, opts.stderr)
	if err != nil {
		return exitLogger, err
	}
	defer func() { _ = targets.close() }()
	log := setupLogger(targets, opts.daemon, opts.verbose, opts.debug)

	authMgr := auth.NewManager(auth.Paths{
		SigningKeyFile: signingKeyPath(opts.root),
		UserStoreFile:  userStorePath(opts.root),
	}, auth.DefaultPendingQueueSize, log.With("component", "auth"))
	if err := authMgr.Initialize(); err != nil {
		return exitAuth, fmt.Errorf("initialize auth manager: %w", err)
	}

	cfg := config.NewProvider(configPath(opts.root))
	if err := cfg.Open(); err != nil {
		log.Warn("config: open failed", "error", err)
		if opts.overrideConfig {
			cfg.SetToDefault()
		} else {
			return exitConfiguration, fmt.Errorf("open configuration: %w", err)
		}
	}

	store := metric.NewStore(metric.DefaultRingCapacity)
	collector := metric.NewDefaultCollector()
	sampler := metric.NewSampler(collector, store, cfg)

	bus := eventbus.New()
	clientTask := clientlisten.NewTask(authMgr, store, cfg)
	consoleTask := consolelisten.NewTask(consoleSocketPath(opts.root), authMgr, cfg, bus)
	broadcastTask := broadcast.NewTask(store, cfg)

	tel, err := telemetry.New(orchestrator.DefaultPollInterval)
	if err != nil {
		return exitRuntime, fmt.Errorf("initialize telemetry: %w", err)
	}

	orch := orchestrator.New(clientTask, consoleTask, sampler, broadcastTask,
		authMgr, cfg, bus, tel, opts.overrideConfig, log.With("component", "orchestrator"))

	orch.Initialize(ctx)
	if !orch.Run(ctx) {
		return exitRuntime, fmt.Errorf("orchestrator terminated abnormally")
	}

	return exitOk, nil
}
