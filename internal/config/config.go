package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Interface string `toml:"interface"`
	Addr      string `toml:"addr"`
	Debug     bool   `toml:"debug"`

	// Gateway overrides the default gateway IP. Empty means the first host
	// address of the subnet, which is right for almost every home router.
	Gateway string `toml:"gateway"`

	// Web UI auth: bcrypt hash of the single operator password. Empty
	// disables auth (local lab use).
	PasswordHash string `toml:"password_hash"`

	Sweep SweepConfig `toml:"sweep"`
	Spoof SpoofConfig `toml:"spoof"`

	// MaxLogLines bounds the retained event log.
	MaxLogLines int `toml:"max_log_lines"`

	// DNSTimeoutMs bounds each reverse lookup during the hostname pass.
	DNSTimeoutMs int `toml:"dns_timeout_ms"`

	// Tracing enables the otel stdout exporter.
	Tracing bool `toml:"tracing"`
}

// SweepConfig paces the subnet sweep.
type SweepConfig struct {
	PacketGapMs   int `toml:"packet_gap_ms"`
	GracePeriodMs int `toml:"grace_period_ms"`
}

// SpoofConfig paces the poison loop and restoration bursts.
type SpoofConfig struct {
	TickMs       int `toml:"tick_ms"`
	RestoreCount int `toml:"restore_count"`
	RestoreGapMs int `toml:"restore_gap_ms"`
}

// Defaults returns the stock configuration.
func Defaults() *Config {
	return &Config{
		Addr:         ":8080",
		MaxLogLines:  100,
		DNSTimeoutMs: 2000,
		Sweep: SweepConfig{
			PacketGapMs:   3,
			GracePeriodMs: 1000,
		},
		Spoof: SpoofConfig{
			TickMs:       1500,
			RestoreCount: 5,
			RestoreGapMs: 100,
		},
	}
}

// Load populates Config from environment variables, then command line flags
// (flags override env), then an optional TOML file named by -config or
// ARPGATE_CONFIG. The file is applied last, so keys it sets override both
// env and flags.
func Load() (*Config, error) {
	cfg := Defaults()

	// Environment variables
	cfg.Interface = getEnv("ARPGATE_INTERFACE", cfg.Interface)
	cfg.Addr = getEnv("ARPGATE_ADDR", cfg.Addr)
	cfg.Gateway = getEnv("ARPGATE_GATEWAY", cfg.Gateway)
	cfg.PasswordHash = getEnv("ARPGATE_PASSWORD_HASH", cfg.PasswordHash)
	cfg.Debug = getEnvBool("ARPGATE_DEBUG", cfg.Debug)
	cfg.Tracing = getEnvBool("ARPGATE_TRACING", cfg.Tracing)

	configPath := getEnv("ARPGATE_CONFIG", "")

	// Command line flags (override env)
	flag.StringVar(&cfg.Interface, "i", cfg.Interface, "Network interface to bind")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.Gateway, "gw", cfg.Gateway, "Gateway IP (default: first host of the subnet)")
	flag.StringVar(&configPath, "config", configPath, "Path to TOML config file")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	flag.BoolVar(&cfg.Tracing, "tracing", cfg.Tracing, "Enable OpenTelemetry stdout tracing")
	flag.Parse()

	if configPath != "" {
		if err := loadFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadFile merges a TOML file over cfg. Unknown keys are rejected so typos
// don't silently fall back to defaults.
func loadFile(cfg *Config, path string) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

// SweepPacketGap returns the sweep inter-packet gap as a duration.
func (c *Config) SweepPacketGap() time.Duration {
	return time.Duration(c.Sweep.PacketGapMs) * time.Millisecond
}

// SweepGracePeriod returns the post-sweep grace window as a duration.
func (c *Config) SweepGracePeriod() time.Duration {
	return time.Duration(c.Sweep.GracePeriodMs) * time.Millisecond
}

// SpoofTick returns the poison loop cadence as a duration.
func (c *Config) SpoofTick() time.Duration {
	return time.Duration(c.Spoof.TickMs) * time.Millisecond
}

// RestoreGap returns the pause between restoration rounds as a duration.
func (c *Config) RestoreGap() time.Duration {
	return time.Duration(c.Spoof.RestoreGapMs) * time.Millisecond
}

// DNSTimeout returns the per-lookup reverse DNS timeout as a duration.
func (c *Config) DNSTimeout() time.Duration {
	return time.Duration(c.DNSTimeoutMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
