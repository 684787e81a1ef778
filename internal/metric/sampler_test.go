package metric

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/supervise"
	"github.com/stretchr/testify/require"
)

func nullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfigProvider(t *testing.T, freqSecs uint64) *config.Provider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	p := config.NewProvider(path)
	cfg := config.Default()
	cfg.MetricFreqSecs = freqSecs
	require.NoError(t, p.DirectSet(cfg))
	_ = os.Remove(path) // provider doesn't need the file on disk for Access/DirectSet
	return p
}

func TestSamplerPushesOnTick(t *testing.T) {
	store := NewStore(5)
	cfg := testConfigProvider(t, 1) // 1s period: the first tick lands inside the 3s wait below
	var calls atomic.Int32
	collector := CollectorFunc(func() (Sample, error) {
		calls.Add(1)
		return Sample{Timestamp: int64(calls.Load())}, nil
	})
	sampler := NewSampler(collector, store, cfg)

	ctrl := make(chan supervise.Control, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan supervise.Exit, 1)
	go func() { done <- sampler.Run(ctx, ctrl, nullLogger()) }()

	require.Eventually(t, func() bool {
		_, ok := store.Status()
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	ctrl <- supervise.Kill
	select {
	case exit := <-done:
		require.Equal(t, supervise.ExitOk, exit)
	case <-time.After(time.Second):
		t.Fatal("sampler did not honor Kill")
	}
	cancel()
}

func TestSamplerSkipsFailedCollectionWithoutTerminating(t *testing.T) {
	store := NewStore(5)
	cfg := testConfigProvider(t, 1)

	collector := CollectorFunc(func() (Sample, error) {
		return Sample{}, assertErr
	})
	sampler := NewSampler(collector, store, cfg)

	ctrl := make(chan supervise.Control, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan supervise.Exit, 1)
	go func() { done <- sampler.Run(ctx, ctrl, nullLogger()) }()

	// Give it time to tick at least once (period 1s); a zero-timestamp
	// error sample must not be pushed into the store.
	time.Sleep(1500 * time.Millisecond)
	_, ok := store.Status()
	require.False(t, ok)

	ctrl <- supervise.Kill
	<-done
}

var assertErr = &collectError{}

type collectError struct{}

func (e *collectError) Error() string { return "collection failed" }
