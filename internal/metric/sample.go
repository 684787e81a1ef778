// Package metric defines the Sample data shape of spec.md §3 and the
// periodic Metric Sampler Task of spec.md §4.8.
package metric

// CPUReading is the CPU sub-sample. All fields are the collector's
// best-effort snapshot at sample time.
type CPUReading struct {
	UsagePercent float64 `json:"usage_percent"`
}

// MemoryReading is one memory pool's sub-sample (e.g. physical RAM, a
// swap device).
type MemoryReading struct {
	Device     string `json:"device"`
	TotalBytes uint64 `json:"total_bytes"`
	UsedBytes  uint64 `json:"used_bytes"`
}

// StorageReading is one mounted filesystem's sub-sample.
type StorageReading struct {
	MountPoint string `json:"mount_point"`
	TotalBytes uint64 `json:"total_bytes"`
	UsedBytes  uint64 `json:"used_bytes"`
}

// NetworkReading is one network interface's sub-sample.
type NetworkReading struct {
	Interface string `json:"interface"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
}

// Sample is a single tuple of host resource readings taken at one
// instant (spec.md §3). Every sub-field is omittable: a Sample is valid
// as long as Timestamp is present. It is immutable after construction —
// callers must not mutate a Sample obtained from the ring.
type Sample struct {
	Timestamp    int64            `json:"timestamp"`
	CPU          *CPUReading      `json:"cpu,omitempty"`
	Memory       []MemoryReading  `json:"memory,omitempty"`
	Storage      []StorageReading `json:"storage,omitempty"`
	Network      []NetworkReading `json:"network,omitempty"`
	ProcessCount *uint64          `json:"process_count,omitempty"`
}

// Collector produces one Sample per call. Implementations run OS tools
// or read /proc; per spec.md §1 this is an external collaborator and is
// described only by this interface. A collector may return a partially
// populated Sample alongside a non-nil error when only some sub-readings
// failed (regisd/src/metric/collect.rs in original_source collects each
// metric kind independently) — the Sampler Task logs the error and
// still pushes whatever Sample was returned, rather than discarding
// partial data.
type Collector interface {
	Collect() (Sample, error)
}

// CollectorFunc adapts a plain function to the Collector interface.
type CollectorFunc func() (Sample, error)

func (f CollectorFunc) Collect() (Sample, error) { return f() }
