package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, 4096, cfg.Storage.PageSize)
	assert.Equal(t, 128, cfg.Storage.BufferPoolCapacity)
	assert.True(t, cfg.Engine.OptimizerEnabled)
	assert.Equal(t, 10, cfg.Engine.MaxOptimizerIterations)
}

func TestLoadPartialFileMergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "novadb.yaml")
	writeFile(t, path, "storage:\n  data_dir: /var/lib/novadb\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/novadb", cfg.Storage.DataDir)
	assert.Equal(t, 4096, cfg.Storage.PageSize)
	assert.True(t, cfg.Engine.OptimizerEnabled)
}

func TestLoadFullFileOverridesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "novadb.yaml")
	writeFile(t, path, ""+
		"storage:\n"+
		"  data_dir: /tmp/novadb-data\n"+
		"  page_size: 8192\n"+
		"  buffer_pool_capacity: 64\n"+
		"engine:\n"+
		"  optimizer_enabled: false\n"+
		"  max_optimizer_iterations: 3\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/novadb-data", cfg.Storage.DataDir)
	assert.Equal(t, 8192, cfg.Storage.PageSize)
	assert.Equal(t, 64, cfg.Storage.BufferPoolCapacity)
	assert.False(t, cfg.Engine.OptimizerEnabled)
	assert.Equal(t, 3, cfg.Engine.MaxOptimizerIterations)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
