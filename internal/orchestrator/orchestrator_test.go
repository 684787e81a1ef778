package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exclusivedisjunction/regisd/internal/auth"
	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/eventbus"
	"github.com/exclusivedisjunction/regisd/internal/supervise"
	"github.com/exclusivedisjunction/regisd/internal/telemetry"
	"github.com/stretchr/testify/require"
)

func nullLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testManager(t *testing.T) *auth.Manager {
	t.Helper()
	dir := t.TempDir()
	m := auth.NewManager(auth.Paths{
		SigningKeyFile: filepath.Join(dir, "signing.key"),
		UserStoreFile:  filepath.Join(dir, "users.json"),
	}, auth.DefaultPendingQueueSize, nullLogger())
	require.NoError(t, m.Initialize())
	return m
}

func testProvider(t *testing.T) *config.Provider {
	t.Helper()
	p := config.NewProvider(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, p.DirectSet(config.Default()))
	return p
}

func testTelemetry(t *testing.T) *telemetry.Recorder {
	t.Helper()
	rec, err := telemetry.NewDiscarding()
	require.NoError(t, err)
	return rec
}

// blockingWorker loops acknowledging control messages (optionally echoing
// them onto received) until it is sent Kill or its context is canceled.
func blockingWorker(received chan<- supervise.Control) supervise.WorkerFunc {
	return func(ctx context.Context, ctrl <-chan supervise.Control, log *slog.Logger) supervise.Exit {
		for {
			select {
			case <-ctx.Done():
				return supervise.ExitImproperShutdown
			case msg, ok := <-ctrl:
				if !ok {
					return supervise.ExitImproperShutdown
				}
				if received != nil {
					select {
					case received <- msg:
					default:
					}
				}
				if msg == supervise.Kill {
					return supervise.ExitOk
				}
			}
		}
	}
}

func instantExitWorker(exit supervise.Exit) supervise.WorkerFunc {
	return func(ctx context.Context, ctrl <-chan supervise.Control, log *slog.Logger) supervise.Exit {
		return exit
	}
}

func waitUntilExited(t *testing.T, h *supervise.Handle) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, exited := h.HasExited()
		return exited
	}, time.Second, 10*time.Millisecond)
}

func TestInitializeSpawnsWorkersAndShutdownJoins(t *testing.T) {
	mgr := testManager(t)
	cfg := testProvider(t)
	require.NoError(t, cfg.Save())
	bus := eventbus.New()
	tel := testTelemetry(t)

	o := New(blockingWorker(nil), blockingWorker(nil), blockingWorker(nil), blockingWorker(nil),
		mgr, cfg, bus, tel, false, nullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Initialize(ctx)

	for _, slot := range o.slots {
		_, exited := slot.handle.HasExited()
		require.False(t, exited)
	}

	o.Shutdown(ctx)

	for _, slot := range o.slots {
		exit, exited := slot.handle.HasExited()
		require.True(t, exited, "worker %s should have joined", slot.name)
		require.Equal(t, supervise.ExitOk, exit)
	}
}

func TestPollAllRestartsExitedWorker(t *testing.T) {
	mgr := testManager(t)
	cfg := testProvider(t)
	require.NoError(t, cfg.Save())
	bus := eventbus.New()
	tel := testTelemetry(t)

	var calls int32
	flaky := supervise.WorkerFunc(func(ctx context.Context, ctrl <-chan supervise.Control, log *slog.Logger) supervise.Exit {
		if atomic.AddInt32(&calls, 1) == 1 {
			return supervise.ExitOk
		}
		<-ctx.Done()
		return supervise.ExitImproperShutdown
	})

	o := New(flaky, blockingWorker(nil), blockingWorker(nil), blockingWorker(nil),
		mgr, cfg, bus, tel, false, nullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Initialize(ctx)

	clientSlot := o.slots[0]
	waitUntilExited(t, clientSlot.handle)

	clientSlot.backoff.InitialInterval = time.Millisecond
	clientSlot.backoff.MaxInterval = 5 * time.Millisecond
	clientSlot.backoff.Reset()

	require.True(t, o.pollAll(ctx))

	var res restartResult
	select {
	case res = <-o.restarted:
	case <-time.After(time.Second):
		t.Fatal("expected a scheduled restart")
	}
	require.Same(t, clientSlot, res.slot)

	o.performRestart(ctx, res)
	require.Equal(t, 1, clientSlot.handle.RestartCount)

	require.Eventually(t, func() bool {
		_, exited := clientSlot.handle.HasExited()
		return !exited
	}, time.Second, 10*time.Millisecond)
}

func TestPollAllReturnsFalseOnTerminalExit(t *testing.T) {
	mgr := testManager(t)
	cfg := testProvider(t)
	require.NoError(t, cfg.Save())
	bus := eventbus.New()
	tel := testTelemetry(t)

	o := New(instantExitWorker(supervise.ExitFailure), blockingWorker(nil), blockingWorker(nil), blockingWorker(nil),
		mgr, cfg, bus, tel, false, nullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Initialize(ctx)

	waitUntilExited(t, o.slots[0].handle)
	require.False(t, o.pollAll(ctx))
}

func TestReloadFansOutExcludingConsole(t *testing.T) {
	mgr := testManager(t)
	cfg := testProvider(t)
	require.NoError(t, cfg.Save())
	bus := eventbus.New()
	tel := testTelemetry(t)

	clientRecv := make(chan supervise.Control, 4)
	consoleRecv := make(chan supervise.Control, 4)
	metricRecv := make(chan supervise.Control, 4)
	broadcastRecv := make(chan supervise.Control, 4)

	o := New(blockingWorker(clientRecv), blockingWorker(consoleRecv), blockingWorker(metricRecv), blockingWorker(broadcastRecv),
		mgr, cfg, bus, tel, false, nullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Initialize(ctx)

	require.True(t, o.reload(ctx))

	expectReload := func(ch chan supervise.Control) {
		select {
		case msg := <-ch:
			require.Equal(t, supervise.ReloadConfig, msg)
		case <-time.After(time.Second):
			t.Fatal("expected ReloadConfig")
		}
	}
	expectReload(clientRecv)
	expectReload(metricRecv)
	expectReload(broadcastRecv)

	select {
	case <-consoleRecv:
		t.Fatal("console worker should not receive the reload fan-out")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReloadAbortsOnOpenFailureWithoutOverride(t *testing.T) {
	mgr := testManager(t)
	cfg := config.NewProvider(filepath.Join(t.TempDir(), "missing.json")) // never Saved: Open fails
	bus := eventbus.New()
	tel := testTelemetry(t)

	o := New(blockingWorker(nil), blockingWorker(nil), blockingWorker(nil), blockingWorker(nil),
		mgr, cfg, bus, tel, false, nullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Initialize(ctx)

	require.False(t, o.reload(ctx))
}

func TestReloadFallsBackToDefaultsWithOverride(t *testing.T) {
	mgr := testManager(t)
	cfg := config.NewProvider(filepath.Join(t.TempDir(), "missing.json"))
	bus := eventbus.New()
	tel := testTelemetry(t)

	o := New(blockingWorker(nil), blockingWorker(nil), blockingWorker(nil), blockingWorker(nil),
		mgr, cfg, bus, tel, true, nullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Initialize(ctx)

	require.True(t, o.reload(ctx))
	got, err := cfg.Access()
	require.NoError(t, err)
	require.Equal(t, config.Default(), got)
}

func TestConsoleEventForwardedToSupervisorLoop(t *testing.T) {
	mgr := testManager(t)
	cfg := testProvider(t)
	require.NoError(t, cfg.Save())
	bus := eventbus.New()
	tel := testTelemetry(t)

	metricRecv := make(chan supervise.Control, 4)
	o := New(blockingWorker(nil), blockingWorker(nil), blockingWorker(metricRecv), blockingWorker(nil),
		mgr, cfg, bus, tel, false, nullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Initialize(ctx)

	bus.Dispatch(ctx, eventbus.Event{Type: eventbus.ReloadConfig, Source: "console"})

	select {
	case event := <-o.busEvents:
		require.Equal(t, eventbus.ReloadConfig, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected the bus event to be forwarded to busEvents")
	}
}
