// Package orchestrator implements the Orchestrator of spec.md §4.13: the
// supervisor owning the four worker tasks (Client Listener, Console
// Listener, Metric Sampler, Broadcast), a timer-driven poll loop,
// signal-driven reload/shutdown, and the restart policy that ties a
// worker's Exit classification to whether it may be respawned.
//
// Grounded on the teacher's cmd/bd/daemon_event_loop.go: one goroutine
// select-looping over a signal channel and several tickers, structured
// slog at every branch, and the platform-specific daemonSignals/
// isReloadSignal split (daemon_unix.go/daemon_windows.go) generalized
// from bd's single RPC server + file watcher to four supervised workers.
// Restart backoff is grounded on cenkalti/backoff/v4 (a teacher
// dependency, previously unwired outside client reconnect helpers).
package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/exclusivedisjunction/regisd/internal/auth"
	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/eventbus"
	"github.com/exclusivedisjunction/regisd/internal/supervise"
	"github.com/exclusivedisjunction/regisd/internal/telemetry"
)

// DefaultPollInterval is the supervisor's timer tick period (spec.md §4.13).
const DefaultPollInterval = 30 * time.Second

// DefaultShutdownTimeout bounds how long Shutdown waits for a worker to
// join before force-aborting it (spec.md §5 "Shutdown join: 5s").
const DefaultShutdownTimeout = 5 * time.Second

// DefaultMaxRestart is the per-worker restart budget (spec.md §4.13).
const DefaultMaxRestart = 5

// pollSendTimeout bounds how long the supervisor waits for a single
// worker's control channel to accept a Poll before treating it as a
// liveness failure (spec.md §5: "a full channel on Poll is treated as a
// liveness failure").
const pollSendTimeout = 2 * time.Second

// console is excluded from HUP/console-triggered config fan-out: a
// console-originated Set already applied the change to the shared
// config.Provider directly (consolelisten's dispatchConfig calls
// Provider.DirectSet and Save before posting the event), and an HUP-originated
// reload reuses the same fan-out for consistency with spec.md §4.13's
// "fan out ReloadConfig to all three other workers".
const consoleSlotName = "console"

// workerSlot bundles one supervised worker with the bookkeeping the
// restart policy needs: the live Handle, the Worker to respawn, and a
// per-worker backoff schedule and failure timestamp.
type workerSlot struct {
	name     string
	worker   supervise.Worker
	handle   *supervise.Handle
	backoff  *backoff.ExponentialBackOff
	failedAt time.Time
}

func newSlot(name string, w supervise.Worker) *workerSlot {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // restart budget is enforced by Handle.CanRestart, not elapsed time
	return &workerSlot{name: name, worker: w, backoff: b}
}

type restartResult struct {
	slot *workerSlot
	exit supervise.Exit
}

// Orchestrator is the supervisor of spec.md §4.13.
type Orchestrator struct {
	slots []*workerSlot

	authMgr *auth.Manager
	cfg     *config.Provider
	bus     *eventbus.Bus
	tel     *telemetry.Recorder
	log     *slog.Logger

	overrideConfig bool

	pollInterval    time.Duration
	shutdownTimeout time.Duration
	sendTimeout     time.Duration

	lastConfigChange time.Time
	busEvents        chan eventbus.Event
	restarted        chan restartResult
}

// New constructs an Orchestrator over the four worker tasks. overrideConfig
// mirrors the daemon's --override-config flag (spec.md §7): when set, a
// failed configuration reload falls back to defaults instead of aborting.
func New(client, console, metricTask, broadcastTask supervise.Worker, authMgr *auth.Manager, cfg *config.Provider, bus *eventbus.Bus, tel *telemetry.Recorder, overrideConfig bool, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		slots: []*workerSlot{
			newSlot("client", client),
			newSlot(consoleSlotName, console),
			newSlot("metric", metricTask),
			newSlot("broadcast", broadcastTask),
		},
		authMgr:         authMgr,
		cfg:             cfg,
		bus:             bus,
		tel:             tel,
		overrideConfig:  overrideConfig,
		pollInterval:    DefaultPollInterval,
		shutdownTimeout: DefaultShutdownTimeout,
		sendTimeout:     pollSendTimeout,
		log:             log,
		busEvents:       make(chan eventbus.Event, 8),
		restarted:       make(chan restartResult, 4),
	}
}

// Initialize spawns the four worker tasks with the standard restart
// budget and registers the orchestrator as a console-event consumer
// (spec.md §4.13 "creates the Auth Manager, ... spawns the four worker
// tasks with a per-worker restart budget of 5"; the Auth Manager itself
// is constructed by the caller and handed to New, since it is already a
// one-shot composition root by construction).
func (o *Orchestrator) Initialize(ctx context.Context) {
	for _, slot := range o.slots {
		slot.handle = supervise.Spawn(ctx, slot.name, slot.worker, DefaultMaxRestart, o.log)
	}
	o.bus.Register(eventbus.HandlerFunc{
		IDValue: "orchestrator",
		Fn: func(_ context.Context, event eventbus.Event) error {
			select {
			case o.busEvents <- event:
			default:
				o.log.Warn("orchestrator: console event dropped, busEvents full", "type", event.Type.String())
			}
			return nil
		},
	})
}

// Run enters the supervisor loop (spec.md §4.13 "Supervisor loop"). It
// returns once shutdown has been triggered and completed, either by
// TERM/INT, a console SystemShutdown event, ctx cancellation, or a
// terminal worker failure. The returned bool is false when termination
// was abnormal (a worker exhausted its restart budget, turned terminal,
// or every ReloadConfig fan-out target refused the message — spec.md §6
// scenario S6), which the caller maps to a non-zero process exit code;
// it is true for every operator- or signal-requested shutdown.
func (o *Orchestrator) Run(ctx context.Context) bool {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, daemonSignals...)
	defer signal.Stop(sigChan)

	graceful := true

supervisorLoop:
	for {
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator: context canceled, shutting down")
			break supervisorLoop

		case <-ticker.C:
			if !o.pollAll(ctx) {
				o.log.Error("orchestrator: poll failed, shutting down")
				graceful = false
				break supervisorLoop
			}

		case sig := <-sigChan:
			if isReloadSignal(sig) {
				o.log.Info("orchestrator: received reload signal")
				if !o.reload(ctx) {
					o.log.Error("orchestrator: reload aborted, shutting down")
					graceful = false
					break supervisorLoop
				}
				continue
			}
			o.log.Info("orchestrator: received signal, shutting down", "signal", sig.String())
			break supervisorLoop

		case event := <-o.busEvents:
			switch event.Type {
			case eventbus.ReloadConfig:
				if !o.reload(ctx) {
					o.log.Error("orchestrator: console-triggered reload aborted, shutting down")
					graceful = false
					break supervisorLoop
				}
			case eventbus.SystemShutdown:
				o.log.Info("orchestrator: console requested shutdown")
				break supervisorLoop
			}

		case res := <-o.restarted:
			o.performRestart(ctx, res)
		}
	}

	o.Shutdown(ctx)
	return graceful
}

// pollAll sends Poll to every live worker and attempts to restart any
// that have already exited, per spec.md §4.13 item 1. It returns false
// if any worker is terminal, exhausted its restart budget, or failed to
// accept the poll message.
func (o *Orchestrator) pollAll(ctx context.Context) bool {
	for _, slot := range o.slots {
		if exit, exited := slot.handle.HasExited(); exited {
			if slot.failedAt.IsZero() {
				slot.failedAt = time.Now()
			}
			configChanged := !o.lastConfigChange.IsZero() && o.lastConfigChange.After(slot.failedAt)
			if !exit.Restartable(configChanged) {
				o.log.Error("orchestrator: worker exited, not restartable", "worker", slot.name, "exit", exit.String())
				return false
			}
			if !slot.handle.CanRestart() {
				o.log.Error("orchestrator: worker exhausted restart budget", "worker", slot.name, "restarts", slot.handle.RestartCount)
				return false
			}
			o.scheduleRestart(ctx, slot, exit)
			continue
		}

		if !slot.handle.TrySend(supervise.Poll, o.sendTimeout) {
			o.log.Error("orchestrator: worker missed poll, treating as dead", "worker", slot.name)
			return false
		}
	}
	return true
}

// scheduleRestart waits out slot's next backoff interval on its own
// goroutine, then posts back to the supervisor loop so the actual
// Handle.Restart call (which mutates Handle state) happens on the
// single orchestrator goroutine only.
func (o *Orchestrator) scheduleRestart(ctx context.Context, slot *workerSlot, exit supervise.Exit) {
	delay := slot.backoff.NextBackOff()
	o.log.Info("orchestrator: scheduling restart", "worker", slot.name, "exit", exit.String(), "delay", delay)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		select {
		case o.restarted <- restartResult{slot: slot, exit: exit}:
		case <-ctx.Done():
		}
	}()
}

// forceRestart is used when a worker's control channel refused a
// message within pollSendTimeout (treated as stuck, not merely slow):
// its context is canceled, and once it unwinds (or a grace period
// elapses) it is restarted exactly like a normal exit.
func (o *Orchestrator) forceRestart(ctx context.Context, slot *workerSlot) {
	slot.handle.Cancel()
	if !slot.handle.CanRestart() {
		o.log.Error("orchestrator: worker exhausted restart budget", "worker", slot.name, "restarts", slot.handle.RestartCount)
		return
	}
	go func() {
		select {
		case <-slot.handle.Done():
		case <-time.After(o.shutdownTimeout):
		}
		select {
		case o.restarted <- restartResult{slot: slot, exit: supervise.ExitImproperShutdown}:
		case <-ctx.Done():
		}
	}()
}

func (o *Orchestrator) performRestart(ctx context.Context, res restartResult) {
	res.slot.handle.Restart(ctx, res.slot.worker, o.log)
	res.slot.failedAt = time.Time{}
	if o.tel != nil {
		o.tel.RecordRestart(ctx, res.slot.name, res.exit.String())
	}
	o.log.Info("orchestrator: worker restarted", "worker", res.slot.name, "restarts", res.slot.handle.RestartCount)
}

// reload re-reads configuration from disk and fans ReloadConfig out to
// the client, metric, and broadcast workers (spec.md §4.13 item 3; the
// console worker is excluded per consoleSlotName's doc comment). It
// returns false if the reload itself should abort the daemon: a parse
// failure with no --override-config fallback, or every fan-out target
// refusing the message.
func (o *Orchestrator) reload(ctx context.Context) bool {
	if err := o.cfg.Open(); err != nil {
		if !o.overrideConfig {
			o.log.Error("orchestrator: configuration reload failed, no override-config fallback", "error", err)
			return false
		}
		o.log.Warn("orchestrator: configuration reload failed, falling back to defaults", "error", err)
		o.cfg.SetToDefault()
	}
	o.lastConfigChange = time.Now()

	delivered := 0
	for _, slot := range o.slots {
		if slot.name == consoleSlotName {
			continue
		}
		if slot.handle.TrySend(supervise.ReloadConfig, o.sendTimeout) {
			delivered++
			continue
		}
		o.log.Warn("orchestrator: worker refused ReloadConfig, restarting it", "worker", slot.name)
		o.forceRestart(ctx, slot)
	}

	if delivered == 0 {
		o.log.Error("orchestrator: every worker refused ReloadConfig, aborting")
		return false
	}
	return true
}

// Shutdown sends Kill to every worker, waits up to shutdownTimeout for
// each to join, force-aborts any that don't, and persists the Auth
// Manager and Configuration (spec.md §4.13 "Shutdown").
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for _, slot := range o.slots {
		select {
		case slot.handle.Ctrl() <- supervise.Kill:
		default:
			o.log.Warn("orchestrator: Kill not accepted immediately", "worker", slot.name)
		}
	}

	for _, slot := range o.slots {
		select {
		case exit := <-slot.handle.Done():
			o.log.Info("orchestrator: worker joined", "worker", slot.name, "exit", exit.String())
		case <-time.After(o.shutdownTimeout):
			o.log.Warn("orchestrator: worker did not join in time, force-aborting", "worker", slot.name)
			slot.handle.Cancel()
			<-slot.handle.Done()
		}
	}

	if err := o.authMgr.Save(); err != nil {
		o.log.Error("orchestrator: failed to persist auth manager", "error", err)
	}
	if err := o.cfg.Save(); err != nil {
		o.log.Error("orchestrator: failed to persist configuration", "error", err)
	}
	if ctx != nil && o.tel != nil {
		if err := o.tel.Shutdown(ctx); err != nil {
			o.log.Error("orchestrator: failed to shut down telemetry", "error", err)
		}
	}
}
