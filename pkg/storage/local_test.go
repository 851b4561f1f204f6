package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "a/b/doc.json", "application/json", []byte(`{"x":1}`)))

	data, ok, err := s.Read(ctx, "a/b/doc.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"x":1}`, string(data))
}

func TestLocalStorageReadMissingReturnsNotOk(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	data, ok, err := s.Read(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestLocalStorageInfoReportsLength(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "x", "", []byte("hello")))

	info, ok, err := s.Info(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 5, info.Length)
}

func TestLocalStorageDeleteThenReadIsAbsent(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "x", "", []byte("hello")))

	require.NoError(t, s.DeleteFile(ctx, "x"))

	_, ok, err := s.Read(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageDeleteAbsentIsNotError(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, s.DeleteFile(context.Background(), "never-existed"))
}

func TestLocalStorageListFilesAndListDirs(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "shards/ab12.shard", "", []byte("1")))
	require.NoError(t, s.Write(ctx, "shards/cd34.shard", "", []byte("2")))
	require.NoError(t, s.Write(ctx, "shards/nested/leaf", "", []byte("3")))

	files, err := s.ListFiles(ctx, "shards/", 0, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ab12.shard", "cd34.shard"}, files.Names)

	dirs, err := s.ListDirs(ctx, "shards/", 0, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"nested"}, dirs.Names)
}

func TestLocalStorageListFilesPaginates(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Write(ctx, filepath.Join("p", name), "", []byte(name)))
	}

	first, err := s.ListFiles(ctx, "p/", 2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, first.Names)
	require.NotEmpty(t, first.Next)

	second, err := s.ListFiles(ctx, "p/", 2, first.Next)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, second.Names)
	assert.Empty(t, second.Next)
}

func TestLocalStorageWriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "obj", "", []byte("v1")))
	require.NoError(t, s.Write(ctx, "obj", "", []byte("v2")))

	entries, err := filepath.Glob(filepath.Join(root, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no leftover temp files after successful writes")

	data, ok, err := s.Read(ctx, "obj")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(data))
}
