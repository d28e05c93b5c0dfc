package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8600", cfg.Gateway.Addr)
	assert.Equal(t, 10*time.Second, cfg.Snapshot.CacheTTL)
	assert.Equal(t, 200_000, cfg.Context.DefaultMaxTokens)
	assert.Equal(t, "@every 30s", cfg.Sweeps.SnapshotRefreshSpec)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("OPSGATE_TEST_MANIFEST", "/etc/opsgate/manifest.yaml")

	path := filepath.Join(t.TempDir(), "opsgate.yaml")
	doc := `gateway:
  addr: ":9000"
registry:
  manifest_path: ${OPSGATE_TEST_MANIFEST}
context:
  warning_threshold: 60
  auto_healing: false
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Gateway.Addr)
	assert.Equal(t, "/etc/opsgate/manifest.yaml", cfg.Registry.ManifestPath)
	assert.Equal(t, float64(60), cfg.Context.WarningThreshold)
	assert.False(t, Bool(cfg.Context.AutoHealing, true))
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep defaults.
	assert.Equal(t, float64(85), cfg.Context.CriticalThreshold)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvPathOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  addr: \":7777\"\n"), 0o644))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Gateway.Addr)
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Context.WarningThreshold = 90
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Context.EmergencyThreshold = 80
	assert.Error(t, cfg.Validate())
}

func TestValidateSnapshotTimeouts(t *testing.T) {
	cfg := Default()
	cfg.Snapshot.CollectionTimeout = time.Minute
	assert.Error(t, cfg.Validate())
}

func TestBool(t *testing.T) {
	assert.True(t, Bool(nil, true))
	assert.False(t, Bool(nil, false))
	f := false
	assert.False(t, Bool(&f, true))
}
