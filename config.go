package hyperlockd

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultListen is the default TCP endpoint the coordinator binds to.
	DefaultListen = ":38550"
	// DefaultMetricsListen is the default Prometheus scrape endpoint. Empty
	// disables metrics.
	DefaultMetricsListen = ""
	// DefaultBaseDir is used when no base directory is configured.
	DefaultBaseDir = "~/.hyperlockd/data"
	// DefaultLeaseInterval mirrors Hyperspace.Lease.Interval's default.
	DefaultLeaseInterval = 60 * time.Second
	// DefaultKeepAliveInterval mirrors Hyperspace.KeepAlive.Interval's default.
	DefaultKeepAliveInterval = 20 * time.Second
	// DefaultConfigFileName is the config file searched for when --config is
	// omitted.
	DefaultConfigFileName = "config.yaml"
	// DefaultMaxFrameBytes bounds a single wire protocol frame's payload.
	DefaultMaxFrameBytes int64 = 16 << 20
)

// Config configures a Server.
type Config struct {
	// BaseDir is the filesystem directory backing the namespace store.
	BaseDir string
	// Listen is the TCP address the wire protocol server binds to.
	Listen string
	// MetricsListen is the Prometheus scrape endpoint; empty disables it.
	MetricsListen string
	// LeaseInterval is the session lease duration granted on CreateSession
	// and renewed on KeepAlive.
	LeaseInterval time.Duration
	// KeepAliveInterval bounds how often the expiry sweeper checks for
	// lapsed sessions.
	KeepAliveInterval time.Duration
	// EnableTracing turns on OpenTelemetry spans for dispatched requests.
	EnableTracing bool
	// MaxFrameBytes bounds a single wire protocol frame's payload.
	MaxFrameBytes int64
	// WatchExternalChanges enables an fsnotify watch over BaseDir that logs a
	// warning whenever something other than the coordinator itself touches
	// the namespace store's backing files.
	WatchExternalChanges bool
	// Verbose gates the startup banner (lease/keep-alive intervals, base
	// directory generation) that is otherwise silent, mirroring
	// Hyperspace.Master's `verbose` config option.
	Verbose bool
}

func (c *Config) setDefaults() {
	if strings.TrimSpace(c.BaseDir) == "" {
		c.BaseDir = DefaultBaseDir
	}
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	if c.LeaseInterval <= 0 {
		c.LeaseInterval = DefaultLeaseInterval
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
}

// DefaultConfigDir returns the default configuration directory
// ($HOME/.hyperlockd), honoring the HYPERLOCKD_CONFIG_DIR override.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("HYPERLOCKD_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		return filepath.Abs(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hyperlockd"), nil
}
