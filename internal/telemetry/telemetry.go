// Package telemetry instruments orchestrator-level operational counters
// with OpenTelemetry: worker restarts, active connections, and dropped
// broadcast sends (SPEC_FULL.md §1 Observability). This is deliberately
// disjoint from the Sample data plane the daemon's own wire protocol
// carries — spec.md keeps that plane free of any query language, so
// operational metrics get their own home here instead.
//
// Grounded on go.opentelemetry.io/otel's stdout metric exporter, a
// teacher dependency (beads' go.mod) previously unwired; periodic export
// mirrors the teacher's own ticker-driven health checks in
// cmd/bd/daemon_event_loop.go (checkDaemonHealth), generalized from ad
// hoc slog warnings to proper counters/gauges.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder exposes the operational counters. The Orchestrator updates
// the worker-restart counter; nothing in the daemon calls
// RecordDroppedBroadcast, ConnectionOpened or ConnectionClosed. Counters
// are monotonic; active connections are an up-down counter.
type Recorder struct {
	provider *sdkmetric.MeterProvider

	workerRestarts    metric.Int64Counter
	droppedBroadcasts metric.Int64Counter
	activeConnections metric.Int64UpDownCounter
}

// New constructs a Recorder that periodically exports to stdout every
// interval (a short interval, e.g. 1m, is appropriate for a long-running
// daemon; callers in tests may pass a very short interval or none at
// all via NewDiscarding).
func New(interval time.Duration) (*Recorder, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return newFromProvider(provider)
}

// NewDiscarding constructs a Recorder backed by a bare MeterProvider with
// no registered reader, so instruments can still be created and called
// but nothing is ever exported. Used by tests and by any caller that
// wants the counters wired without stdout noise.
func NewDiscarding() (*Recorder, error) {
	return newFromProvider(sdkmetric.NewMeterProvider())
}

func newFromProvider(provider *sdkmetric.MeterProvider) (*Recorder, error) {
	meter := provider.Meter("regisd/orchestrator")

	restarts, err := meter.Int64Counter("regisd.worker.restarts",
		metric.WithDescription("Count of worker task restarts by the orchestrator"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("regisd.broadcast.dropped",
		metric.WithDescription("Count of broadcast sends dropped due to subscriber write failure"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("regisd.connections.active",
		metric.WithDescription("Current count of active client and console connections"))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		provider:          provider,
		workerRestarts:    restarts,
		droppedBroadcasts: dropped,
		activeConnections: active,
	}, nil
}

// RecordRestart increments the worker restart counter, tagged by worker
// name and the exit classification that triggered the restart.
func (r *Recorder) RecordRestart(ctx context.Context, worker, exit string) {
	r.workerRestarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worker", worker),
		attribute.String("exit", exit),
	))
}

// RecordDroppedBroadcast increments the dropped-broadcast-send counter.
func (r *Recorder) RecordDroppedBroadcast(ctx context.Context) {
	r.droppedBroadcasts.Add(ctx, 1)
}

// ConnectionOpened increments the active-connections gauge.
func (r *Recorder) ConnectionOpened(ctx context.Context, kind string) {
	r.activeConnections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// ConnectionClosed decrements the active-connections gauge.
func (r *Recorder) ConnectionClosed(ctx context.Context, kind string) {
	r.activeConnections.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Shutdown flushes and stops the underlying meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}
