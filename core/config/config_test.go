package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 256, cfg.Store.CacheSize)
	assert.Equal(t, 5, cfg.Eviction.RecentToolcalls)
	assert.Equal(t, 3, cfg.Eviction.RecentCompletedTurns)
	assert.False(t, cfg.Watcher.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Watcher.DebounceInterval())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	data := `
store:
  driver: sqlite
  path: /tmp/test.db
watcher:
  enabled: true
  paths: ["src", "docs"]
  debounce: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/test.db", cfg.Store.Path)
	assert.Equal(t, 256, cfg.Store.CacheSize, "unset fields keep defaults")
	assert.True(t, cfg.Watcher.Enabled)
	assert.Equal(t, []string{"src", "docs"}, cfg.Watcher.Paths)
	assert.Equal(t, 250*time.Millisecond, cfg.Watcher.DebounceInterval())
	assert.Equal(t, 5, cfg.Eviction.RecentToolcalls)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestLoad_RejectsNegativeEvictionWindows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("eviction:\n  recent_toolcalls: -1\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDebounceInterval_FallsBackOnBadValue(t *testing.T) {
	for _, raw := range []string{"", "soon", "-5ms", "0s"} {
		w := WatcherConfig{Debounce: raw}
		assert.Equal(t, 100*time.Millisecond, w.DebounceInterval(), "debounce %q", raw)
	}
}
