package metric

import (
	"context"
	"log/slog"
	"time"

	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/supervise"
)

// Sampler is the Metric Sampler Task of spec.md §4.8. It ticks every
// config.MetricFreqSecs, collects one Sample, pushes it into the Store,
// and fans it out to subscribers. It never terminates on a collection
// failure — only on Kill or an irrecoverable channel error.
type Sampler struct {
	collector Collector
	store     *Store
	cfg       *config.Provider
}

// NewSampler constructs a Sampler task.
func NewSampler(collector Collector, store *Store, cfg *config.Provider) *Sampler {
	return &Sampler{collector: collector, store: store, cfg: cfg}
}

// Run implements supervise.Worker.
func (s *Sampler) Run(ctx context.Context, ctrl <-chan supervise.Control, log *slog.Logger) supervise.Exit {
	period := s.currentPeriod(log)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return supervise.ExitImproperShutdown

		case msg, ok := <-ctrl:
			if !ok {
				return supervise.ExitImproperShutdown
			}
			switch msg {
			case supervise.Kill:
				return supervise.ExitOk
			case supervise.Poll:
				// no-op ack: simply continuing the loop acknowledges liveness
			case supervise.ReloadConfig:
				newPeriod := s.currentPeriod(log)
				if newPeriod != period {
					period = newPeriod
					ticker.Reset(period)
					log.Info("sampler period changed", "period", period)
				}
			}

		case <-ticker.C:
			sample, err := s.collector.Collect()
			if err != nil {
				log.Warn("sample collection failed; skipping", "error", err)
				if sample.Timestamp == 0 {
					continue
				}
				// Partial sample despite the error: still push it (see
				// metric.Collector's doc comment).
			}
			s.store.Push(sample)
		}
	}
}

func (s *Sampler) currentPeriod(log *slog.Logger) time.Duration {
	cfg, err := s.cfg.Access()
	if err != nil {
		log.Warn("no configuration installed yet; using 1s fallback period", "error", err)
		return time.Second
	}
	return time.Duration(cfg.MetricFreqSecs) * time.Second
}
