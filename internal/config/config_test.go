package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 100, cfg.MaxLogLines)
	assert.Equal(t, 1500*time.Millisecond, cfg.SpoofTick())
	assert.Equal(t, 5, cfg.Spoof.RestoreCount)
	assert.Equal(t, 100*time.Millisecond, cfg.RestoreGap())
	assert.Equal(t, 3*time.Millisecond, cfg.SweepPacketGap())
	assert.Equal(t, time.Second, cfg.SweepGracePeriod())
	assert.Equal(t, 2*time.Second, cfg.DNSTimeout())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arpgate.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
interface = "eth1"
gateway = "192.168.1.254"
max_log_lines = 250

[sweep]
packet_gap_ms = 5
grace_period_ms = 2000

[spoof]
tick_ms = 1000
restore_count = 3
restore_gap_ms = 50
`), 0o644))

	cfg := Defaults()
	require.NoError(t, loadFile(cfg, path))

	assert.Equal(t, "eth1", cfg.Interface)
	assert.Equal(t, "192.168.1.254", cfg.Gateway)
	assert.Equal(t, 250, cfg.MaxLogLines)
	assert.Equal(t, 5*time.Millisecond, cfg.SweepPacketGap())
	assert.Equal(t, 2*time.Second, cfg.SweepGracePeriod())
	assert.Equal(t, time.Second, cfg.SpoofTick())
	assert.Equal(t, 3, cfg.Spoof.RestoreCount)
	assert.Equal(t, 50*time.Millisecond, cfg.RestoreGap())
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arpgate.toml")
	require.NoError(t, os.WriteFile(path, []byte(`spoof_ticks = 12`), 0o644))

	err := loadFile(Defaults(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestLoadFileMissing(t *testing.T) {
	err := loadFile(Defaults(), filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
