package supervise

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSpawnAndKill(t *testing.T) {
	w := WorkerFunc(func(ctx context.Context, ctrl <-chan Control, log *slog.Logger) Exit {
		for {
			select {
			case msg := <-ctrl:
				if msg == Kill {
					return ExitOk
				}
			case <-ctx.Done():
				return ExitImproperShutdown
			}
		}
	})

	h := Spawn(context.Background(), "test", w, 5, nullLogger())
	require.True(t, h.TrySend(Kill, time.Second))

	select {
	case exit := <-h.Done():
		assert.Equal(t, ExitOk, exit)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit in time")
	}
}

func TestTrySendFailsOnFullChannelWithinTimeout(t *testing.T) {
	w := WorkerFunc(func(ctx context.Context, ctrl <-chan Control, log *slog.Logger) Exit {
		<-ctx.Done() // never drains ctrl
		return ExitImproperShutdown
	})
	h := Spawn(context.Background(), "stuck", w, 5, nullLogger())
	defer h.Cancel()

	// Fill the buffered channel (capacity 16) without a consumer.
	for i := 0; i < 16; i++ {
		ok := h.TrySend(Poll, 10*time.Millisecond)
		require.True(t, ok, "channel should accept up to its buffer capacity")
	}
	// The 17th send should time out since nothing is draining the channel.
	assert.False(t, h.TrySend(Poll, 10*time.Millisecond))
}

func TestRestartPolicy(t *testing.T) {
	assert.True(t, ExitOk.Restartable(false))
	assert.True(t, ExitImproperShutdown.Restartable(false))
	assert.False(t, ExitConfiguration.Restartable(false))
	assert.True(t, ExitConfiguration.Restartable(true))
	assert.False(t, ExitSockets.Restartable(false))
	assert.True(t, ExitSockets.Restartable(true))
	assert.False(t, ExitDoNotReboot.Restartable(true))
	assert.False(t, ExitFailure.Restartable(true))
}

func TestCanRestartRespectsBudget(t *testing.T) {
	w := WorkerFunc(func(ctx context.Context, ctrl <-chan Control, log *slog.Logger) Exit {
		return ExitFailure
	})
	h := Spawn(context.Background(), "flaky", w, 2, nullLogger())
	<-h.Done()

	assert.True(t, h.CanRestart())
	h.Restart(context.Background(), w, nullLogger())
	<-h.Done()
	assert.True(t, h.CanRestart())
	h.Restart(context.Background(), w, nullLogger())
	<-h.Done()
	assert.False(t, h.CanRestart(), "budget of 2 restarts should now be exhausted")
}

func TestHasExited(t *testing.T) {
	w := WorkerFunc(func(ctx context.Context, ctrl <-chan Control, log *slog.Logger) Exit {
		return ExitOk
	})
	h := Spawn(context.Background(), "quick", w, 1, nullLogger())

	require.Eventually(t, func() bool {
		_, exited := h.HasExited()
		return exited
	}, time.Second, 10*time.Millisecond)

	exit, exited := h.HasExited()
	require.True(t, exited)
	assert.Equal(t, ExitOk, exit)
}
