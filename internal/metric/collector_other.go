//go:build !linux

package metric

import (
	"errors"
)

// DefaultCollector is a stub on non-Linux hosts: original_source's
// collect.rs likewise returns None for every sub-metric when
// target_os isn't Linux, since it shells out to Linux-only tool
// invocations (free -b, GNU df, procps top, ps --no-headers).
type DefaultCollector struct{}

// NewDefaultCollector returns a Collector that always reports the
// unsupported-platform error; regisd still runs, it simply stores no
// metric history on this host.
func NewDefaultCollector() *DefaultCollector { return &DefaultCollector{} }

func (c *DefaultCollector) Collect() (Sample, error) {
	return Sample{}, errors.New("metric collection is only implemented for linux")
}
