package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFillsExpectedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ".", cfg.RootPath)
	assert.Equal(t, 64, cfg.MaxCachedShards)
	assert.Equal(t, 1000, cfg.MaxRecordsPerShard)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, 4, cfg.TaskQueue.Workers)
	assert.Equal(t, 600, cfg.TaskQueue.TimeoutSeconds)
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rootPath: /var/lib/shardkeep
maxCachedShards: 128
storage:
  backend: bolt
  path: shardkeep.db
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/shardkeep", cfg.RootPath)
	assert.Equal(t, 128, cfg.MaxCachedShards)
	assert.Equal(t, 1000, cfg.MaxRecordsPerShard, "unset field falls back to default")
	assert.Equal(t, "bolt", cfg.Storage.Backend)
	assert.Equal(t, "shardkeep.db", cfg.Storage.Path)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBuildStorageLocalBackend(t *testing.T) {
	cfg := Default()
	cfg.RootPath = t.TempDir()

	store, err := cfg.BuildStorage(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), "f", "text/plain", []byte("hi")))
}

func TestBuildStorageBoltBackend(t *testing.T) {
	cfg := Default()
	cfg.RootPath = t.TempDir()
	cfg.Storage.Backend = "bolt"
	cfg.Storage.Path = "data.db"

	store, err := cfg.BuildStorage(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), "f", "text/plain", []byte("hi")))
}

func TestBuildStorageUnknownBackendFails(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "tape"
	_, err := cfg.BuildStorage(context.Background())
	require.Error(t, err)
}

func TestBuildStorageS3WithoutBucketFails(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "s3"
	_, err := cfg.BuildStorage(context.Background())
	require.Error(t, err)
}

func TestCollectionConfigAndTaskQueueConfigMapFields(t *testing.T) {
	cfg := Default()
	cfg.MaxCachedShards = 7
	cfg.MaxRecordsPerShard = 42
	cfg.TaskQueue.Workers = 9

	cc := cfg.CollectionConfig()
	assert.Equal(t, 7, cc.MaxCachedShards)
	assert.Equal(t, 42, cc.MaxRecordsPerShard)

	tc := cfg.TaskQueueConfig()
	assert.Equal(t, 9, tc.Workers)
}
