// Package config loads the opsgate configuration file: one YAML document
// aggregating the per-component settings, with environment variable
// expansion and defaults applied on load.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "OPSGATE_CONFIG"

// DefaultPath is the configuration filename relative to the working
// directory.
const DefaultPath = "opsgate.yaml"

// Config is the root configuration document.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Registry RegistryConfig `yaml:"registry"`
	Probe    ProbeConfig    `yaml:"probe"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Context  ContextConfig  `yaml:"context"`
	Sweeps   SweepsConfig   `yaml:"sweeps"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig configures the HTTP listener.
type GatewayConfig struct {
	Addr          string        `yaml:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// RegistryConfig configures manifest resolution and caching.
type RegistryConfig struct {
	ManifestPath string        `yaml:"manifest_path"`
	ProjectRoot  string        `yaml:"project_root"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`

	// Watch enables filesystem invalidation of the manifest cache.
	Watch bool `yaml:"watch"`
}

// ProbeConfig configures CLI detection.
type ProbeConfig struct {
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// SnapshotConfig configures the aggregate snapshot collector.
type SnapshotConfig struct {
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	CollectionTimeout time.Duration `yaml:"collection_timeout"`
	Cwd               string        `yaml:"cwd"`
}

// ContextConfig configures context health tracking and auto-healing.
type ContextConfig struct {
	DefaultMaxTokens     int           `yaml:"default_max_tokens"`
	WarningThreshold     float64       `yaml:"warning_threshold"`
	CriticalThreshold    float64       `yaml:"critical_threshold"`
	EmergencyThreshold   float64       `yaml:"emergency_threshold"`
	MonitorInterval      time.Duration `yaml:"monitor_interval"`
	AutoHealing          *bool         `yaml:"auto_healing"`
	SummarizationEnabled *bool         `yaml:"summarization_enabled"`
	RotationEnabled      *bool         `yaml:"rotation_enabled"`
	RotationCooldown     time.Duration `yaml:"rotation_cooldown"`
}

// SweepsConfig configures the background job cadences.
type SweepsConfig struct {
	Enabled              *bool  `yaml:"enabled"`
	SnapshotRefreshSpec  string `yaml:"snapshot_refresh"`
	BacklogPruneSpec     string `yaml:"backlog_prune"`
	DetectionRefreshSpec string `yaml:"detection_refresh"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Load reads and parses the configuration file. A missing file is not an
// error: defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration with no file applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Gateway.Addr == "" {
		cfg.Gateway.Addr = ":8600"
	}
	if cfg.Gateway.ReadTimeout == 0 {
		cfg.Gateway.ReadTimeout = 15 * time.Second
	}
	if cfg.Gateway.WriteTimeout == 0 {
		cfg.Gateway.WriteTimeout = 30 * time.Second
	}
	if cfg.Gateway.ShutdownGrace == 0 {
		cfg.Gateway.ShutdownGrace = 10 * time.Second
	}
	if cfg.Registry.CacheTTL == 0 {
		cfg.Registry.CacheTTL = 60 * time.Second
	}
	if cfg.Probe.CacheTTL == 0 {
		cfg.Probe.CacheTTL = 60 * time.Second
	}
	if cfg.Probe.ProbeTimeout == 0 {
		cfg.Probe.ProbeTimeout = 5 * time.Second
	}
	if cfg.Snapshot.CacheTTL == 0 {
		cfg.Snapshot.CacheTTL = 10 * time.Second
	}
	if cfg.Snapshot.CollectionTimeout == 0 {
		cfg.Snapshot.CollectionTimeout = 2500 * time.Millisecond
	}
	if cfg.Context.DefaultMaxTokens == 0 {
		cfg.Context.DefaultMaxTokens = 200_000
	}
	if cfg.Context.WarningThreshold == 0 {
		cfg.Context.WarningThreshold = 75
	}
	if cfg.Context.CriticalThreshold == 0 {
		cfg.Context.CriticalThreshold = 85
	}
	if cfg.Context.EmergencyThreshold == 0 {
		cfg.Context.EmergencyThreshold = 95
	}
	if cfg.Context.MonitorInterval == 0 {
		cfg.Context.MonitorInterval = 30 * time.Second
	}
	if cfg.Context.RotationCooldown == 0 {
		cfg.Context.RotationCooldown = 5 * time.Minute
	}
	if cfg.Sweeps.SnapshotRefreshSpec == "" {
		cfg.Sweeps.SnapshotRefreshSpec = "@every 30s"
	}
	if cfg.Sweeps.BacklogPruneSpec == "" {
		cfg.Sweeps.BacklogPruneSpec = "@every 1m"
	}
	if cfg.Sweeps.DetectionRefreshSpec == "" {
		cfg.Sweeps.DetectionRefreshSpec = "@every 5m"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Bool resolves an optional boolean with a default.
func Bool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Context.WarningThreshold >= c.Context.CriticalThreshold {
		return fmt.Errorf("context thresholds must be ordered: warning %.0f >= critical %.0f",
			c.Context.WarningThreshold, c.Context.CriticalThreshold)
	}
	if c.Context.CriticalThreshold >= c.Context.EmergencyThreshold {
		return fmt.Errorf("context thresholds must be ordered: critical %.0f >= emergency %.0f",
			c.Context.CriticalThreshold, c.Context.EmergencyThreshold)
	}
	if c.Snapshot.CollectionTimeout > c.Snapshot.CacheTTL {
		return fmt.Errorf("snapshot collection timeout %s exceeds cache ttl %s",
			c.Snapshot.CollectionTimeout, c.Snapshot.CacheTTL)
	}
	return nil
}
