// Package config implements the Configuration Provider of spec.md §4.12:
// a process-wide snapshot of tunables, loaded from JSON, saved
// atomically, and readable without blocking concurrent readers.
//
// Grounded on the teacher's internal/config/local_config.go (direct
// file-backed config struct, env overrides) generalized from YAML to
// the JSON schema spec.md §6 fixes, and loaded through spf13/viper so
// the provider can use viper's WatchConfig (backed by fsnotify) to
// react to on-disk edits exactly as SIGHUP does (see Provider.Watch).
package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/exclusivedisjunction/regisd/internal/lockfile"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the daemon's tunable configuration (spec.md §3).
type Config struct {
	MaxConsole     uint8  `json:"max_console"`
	MaxHosts       uint8  `json:"max_hosts"`
	HostsPort      uint16 `json:"hosts_port"`
	BroadcastsPort uint16 `json:"broadcasts_port"`
	MetricFreqSecs uint64 `json:"metric_freq"`
}

// Default returns the daemon's default configuration.
func Default() Config {
	return Config{
		MaxConsole:     4,
		MaxHosts:       6,
		HostsPort:      1026,
		BroadcastsPort: 1027,
		MetricFreqSecs: 3,
	}
}

// Validate checks the invariants spec.md §3 requires.
func (c Config) Validate() error {
	if c.MaxConsole < 1 {
		return fmt.Errorf("config: max_console must be >= 1")
	}
	if c.MaxHosts < 1 {
		return fmt.Errorf("config: max_hosts must be >= 1")
	}
	if c.MetricFreqSecs < 1 {
		return fmt.Errorf("config: metric_freq_secs must be >= 1")
	}
	return nil
}

// Provider is a lock-guarded holder of the process-wide configuration
// snapshot. Readers (Access) never block each other; writers (Open,
// DirectSet, SetToDefault) serialize via the mutex (spec.md §4.12).
type Provider struct {
	mu      sync.RWMutex
	current *Config
	path    string
	v       *viper.Viper
}

// NewProvider constructs an empty Provider bound to path. Call Open or
// SetToDefault before Access.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// Open parses the JSON file at p.path, validates it, and installs it as
// the current configuration. A failed Open does NOT clear a previously
// installed configuration (spec.md §4.12).
func (p *Provider) Open() error {
	v := viper.New()
	v.SetConfigFile(p.path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", p.path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", p.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: invalid %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.current = &cfg
	p.v = v
	p.mu.Unlock()
	return nil
}

// Save atomically writes the current snapshot to p.path as JSON.
func (p *Provider) Save() error {
	p.mu.RLock()
	cfg := p.current
	p.mu.RUnlock()
	if cfg == nil {
		return fmt.Errorf("config: no configuration installed")
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return lockfile.WriteFileAtomic(p.path, data, 0o600)
}

// Access returns a copy-on-read snapshot of the current configuration.
// A reader that holds onto the returned Config sees a consistent value
// for its duration even if a concurrent writer later calls DirectSet
// (testable property #8, spec.md §8).
func (p *Provider) Access() (Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return Config{}, fmt.Errorf("config: no configuration installed")
	}
	return *p.current, nil
}

// DirectSet replaces the in-memory configuration without touching disk
// (used by console-set-config, spec.md §4.11 Config(Set)).
func (p *Provider) DirectSet(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = &cfg
	p.mu.Unlock()
	return nil
}

// SetToDefault installs the default configuration, used when Open fails
// and the caller was started with --override-config (spec.md §7).
func (p *Provider) SetToDefault() {
	cfg := Default()
	p.mu.Lock()
	p.current = &cfg
	p.mu.Unlock()
}

// Watch registers onChange to be called (on its own goroutine, per
// viper's contract) whenever the underlying file changes on disk, via
// fsnotify (wired transitively through viper.WatchConfig). Nothing in
// the daemon calls Watch, so a live edit of the file takes effect only
// on SIGHUP or a console Config(Reload). Watch is a no-op until Open has
// succeeded at least once.
func (p *Provider) Watch(onChange func()) {
	p.mu.RLock()
	v := p.v
	p.mu.RUnlock()
	if v == nil {
		return
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		onChange()
	})
	v.WatchConfig()
}
