// Package supervise implements the generic supervised-worker primitives
// shared by the orchestrator's four worker tasks (spec.md §2, §4.13):
// a bounded message channel to the worker, a join handle carrying its
// Exit status, a restart counter and a restart budget.
//
// Grounded on the teacher's daemon event loop (cmd/bd/daemon_event_loop.go):
// a single goroutine select-looping over tickers and channels, with
// structured slog logging at each branch — generalized here into a
// reusable supervised-task shape instead of one bespoke loop per worker.
package supervise

import (
	"context"
	"log/slog"
)

// Control is a message the orchestrator sends to a worker.
type Control int

const (
	// Poll asks the worker to acknowledge liveness.
	Poll Control = iota
	// Kill asks the worker to drain and exit.
	Kill
	// ReloadConfig asks the worker to adopt a new configuration; the
	// worker re-reads the shared config.Provider snapshot on receipt.
	ReloadConfig
)

func (c Control) String() string {
	switch c {
	case Poll:
		return "Poll"
	case Kill:
		return "Kill"
	case ReloadConfig:
		return "ReloadConfig"
	default:
		return "Unknown"
	}
}

// Exit classifies why a worker's run loop returned, driving the
// orchestrator's restart policy (spec.md §4.13).
type Exit int

const (
	ExitOk Exit = iota
	ExitImproperShutdown
	ExitConfiguration
	ExitSockets
	ExitDoNotReboot
	ExitFailure
)

func (e Exit) String() string {
	switch e {
	case ExitOk:
		return "Ok"
	case ExitImproperShutdown:
		return "ImproperShutdown"
	case ExitConfiguration:
		return "Configuration"
	case ExitSockets:
		return "Sockets"
	case ExitDoNotReboot:
		return "DoNotReboot"
	case ExitFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Restartable reports whether a worker that exited with this status may
// be restarted. Ok and ImproperShutdown are always restartable;
// Configuration and Sockets are restartable only if the configuration
// has changed since the failure (spec.md §4.13); DoNotReboot and
// Failure are terminal.
func (e Exit) Restartable(configChangedSinceFailure bool) bool {
	switch e {
	case ExitOk, ExitImproperShutdown:
		return true
	case ExitConfiguration, ExitSockets:
		return configChangedSinceFailure
	default:
		return false
	}
}

// Worker is implemented by each of the four supervised tasks. Run blocks
// until ctrl is closed, a Kill is received, or an irrecoverable error
// occurs; it returns the Exit classification of why it stopped.
type Worker interface {
	Run(ctx context.Context, ctrl <-chan Control, log *slog.Logger) Exit
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(ctx context.Context, ctrl <-chan Control, log *slog.Logger) Exit

func (f WorkerFunc) Run(ctx context.Context, ctrl <-chan Control, log *slog.Logger) Exit {
	return f(ctx, ctrl, log)
}

// Handle is the orchestrator's view of one supervised worker.
type Handle struct {
	Name         string
	ctrl         chan Control
	done         chan Exit
	cancel       context.CancelFunc
	RestartCount int
	MaxRestart   int
}

// Spawn starts w on its own goroutine and returns a Handle the
// orchestrator uses to poll, reconfigure, kill, and restart it.
func Spawn(parent context.Context, name string, w Worker, maxRestart int, log *slog.Logger) *Handle {
	h := &Handle{
		Name:       name,
		ctrl:       make(chan Control, 16), // bounded, per spec.md §5 (default capacity 10-20)
		done:       make(chan Exit, 1),
		MaxRestart: maxRestart,
	}
	h.start(parent, w, log)
	return h
}

func (h *Handle) start(parent context.Context, w Worker, log *slog.Logger) {
	ctx, cancel := context.WithCancel(parent)
	h.cancel = cancel
	go func() {
		exit := w.Run(ctx, h.ctrl, log.With("worker", h.Name))
		h.done <- exit
	}()
}

// Ctrl returns the channel used to send control messages to the worker.
func (h *Handle) Ctrl() chan<- Control { return h.ctrl }

// Done returns the channel that receives the worker's Exit status once
// its Run method returns. It is non-blocking to check: callers select
// on it alongside a timer.
func (h *Handle) Done() <-chan Exit { return h.done }

// Cancel requests the worker's context be cancelled (used for force-abort
// after a shutdown grace period expires).
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Restart re-spawns the worker, incrementing RestartCount. Callers must
// have already confirmed budget and restartability via CanRestart.
func (h *Handle) Restart(parent context.Context, w Worker, log *slog.Logger) {
	h.RestartCount++
	h.done = make(chan Exit, 1)
	h.start(parent, w, log)
}

// CanRestart reports whether another restart attempt is allowed.
func (h *Handle) CanRestart() bool {
	return h.RestartCount < h.MaxRestart
}
