package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsInvariantViolations(t *testing.T) {
	cfg := Default()
	cfg.MaxConsole = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaxHosts = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MetricFreqSecs = 0
	assert.Error(t, cfg.Validate())
}

func TestOpenAccessRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `{"max_console":4,"max_hosts":6,"hosts_port":1026,"broadcasts_port":1027,"metric_freq":3}`)

	p := NewProvider(path)
	require.NoError(t, p.Open())

	cfg, err := p.Access()
	require.NoError(t, err)
	assert.EqualValues(t, 4, cfg.MaxConsole)
	assert.EqualValues(t, 1026, cfg.HostsPort)
	assert.EqualValues(t, 3, cfg.MetricFreqSecs)
}

func TestOpenFailureKeepsPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `{"max_console":4,"max_hosts":6,"hosts_port":1026,"broadcasts_port":1027,"metric_freq":3}`)

	p := NewProvider(path)
	require.NoError(t, p.Open())

	// Corrupt the file, then attempt to reload.
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	err := p.Open()
	require.Error(t, err)

	cfg, accessErr := p.Access()
	require.NoError(t, accessErr)
	assert.EqualValues(t, 4, cfg.MaxConsole, "previous snapshot must survive a failed reload")
}

func TestDirectSetValidatesInput(t *testing.T) {
	p := NewProvider(filepath.Join(t.TempDir(), "config.json"))
	p.SetToDefault()

	bad := Default()
	bad.MaxHosts = 0
	require.Error(t, p.DirectSet(bad))

	cfg, err := p.Access()
	require.NoError(t, err)
	assert.EqualValues(t, Default().MaxHosts, cfg.MaxHosts, "rejected DirectSet must not mutate state")

	good := Default()
	good.HostsPort = 9999
	require.NoError(t, p.DirectSet(good))
	cfg, err = p.Access()
	require.NoError(t, err)
	assert.EqualValues(t, 9999, cfg.HostsPort)
}

func TestSaveWritesAtomicJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	p := NewProvider(path)
	p.SetToDefault()
	require.NoError(t, p.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"max_console"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAccessWithoutOpenFails(t *testing.T) {
	p := NewProvider(filepath.Join(t.TempDir(), "config.json"))
	_, err := p.Access()
	assert.Error(t, err)
}

func TestSnapshotStability(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `{"max_console":4,"max_hosts":6,"hosts_port":1026,"broadcasts_port":1027,"metric_freq":3}`)

	p := NewProvider(path)
	require.NoError(t, p.Open())

	snap, err := p.Access()
	require.NoError(t, err)

	// A concurrent writer replaces the process-wide state...
	replacement := Default()
	replacement.HostsPort = 4242
	require.NoError(t, p.DirectSet(replacement))

	// ...but the reader's already-taken snapshot is unaffected (testable property #8).
	assert.EqualValues(t, 1026, snap.HostsPort)
}
