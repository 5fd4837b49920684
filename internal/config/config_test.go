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
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultCompany, cfg.Remote.Company)
	assert.Equal(t, DefaultSyncInterval, cfg.Sync.Interval)
	assert.Equal(t, DefaultPageLength, cfg.Sync.PageLength)
}

func TestLoadFileAndPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poscore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: "0.0.0.0:9000"
remote:
  base_url: "http://erp.local:8000"
sync:
  interval: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "http://erp.local:8000", cfg.Remote.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)

	// Fields the file omitted keep their defaults.
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultProbeInterval, cfg.Sync.ProbeInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poscore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`data_dir: "/from/file"`), 0o644))

	t.Setenv("POSCORE_DATA_DIR", "/from/env")
	t.Setenv("POSCORE_SYNC_INTERVAL", "2m")
	t.Setenv("POSCORE_PAGE_LENGTH", "50")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 50, cfg.Sync.PageLength)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poscore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [broken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
