package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardkeep/shardkeep/pkg/bson"
	"github.com/shardkeep/shardkeep/pkg/collection"
	"github.com/shardkeep/shardkeep/pkg/storage"
)

func newTestDatabase(t *testing.T) (*Database, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	db, err := Open(context.Background(), store, collection.Config{})
	require.NoError(t, err)
	return db, store
}

func TestOpenCollectionIsLazyAndCached(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDatabase(t)

	a, err := db.Collection(ctx, "people")
	require.NoError(t, err)
	b, err := db.Collection(ctx, "people")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestRootHashChangesAfterInsert(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDatabase(t)

	before, err := db.RootHash(ctx)
	require.NoError(t, err)

	people, err := db.Collection(ctx, "people")
	require.NoError(t, err)
	require.NoError(t, people.InsertOne(ctx, bson.Record{"_id": bson.String("p1"), "name": bson.String("Alice")}, 100))

	after, err := db.RootHash(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestCollectionsListsCachedAndOnDiskNames(t *testing.T) {
	ctx := context.Background()
	db, store := newTestDatabase(t)

	people, err := db.Collection(ctx, "people")
	require.NoError(t, err)
	require.NoError(t, people.InsertOne(ctx, bson.Record{"_id": bson.String("p1")}, 100))
	require.NoError(t, db.Close(ctx))

	db2, err := Open(ctx, store, collection.Config{})
	require.NoError(t, err)
	assert.Contains(t, db2.Collections(), "people")
}

func TestCollectionLenSatisfiesStatsSource(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDatabase(t)

	people, err := db.Collection(ctx, "people")
	require.NoError(t, err)
	require.NoError(t, people.InsertOne(ctx, bson.Record{"_id": bson.String("p1")}, 100))
	require.NoError(t, people.InsertOne(ctx, bson.Record{"_id": bson.String("p2")}, 100))

	n, err := db.CollectionLen("people")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeletingEveryRecordRemovesCollectionLeaf(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDatabase(t)

	people, err := db.Collection(ctx, "people")
	require.NoError(t, err)
	require.NoError(t, people.InsertOne(ctx, bson.Record{"_id": bson.String("p1")}, 100))

	withOne, err := db.RootHash(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, merkleZero(t), withOne)

	deleted, err := people.DeleteOne(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, deleted)

	afterDelete, err := db.RootHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, merkleZero(t), afterDelete)
}

func TestRebuildsTreeFromCollectionsOnCorruptDBFile(t *testing.T) {
	ctx := context.Background()
	db, store := newTestDatabase(t)

	people, err := db.Collection(ctx, "people")
	require.NoError(t, err)
	require.NoError(t, people.InsertOne(ctx, bson.Record{"_id": bson.String("p1")}, 100))
	rootBefore, err := db.RootHash(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Close(ctx))

	require.NoError(t, store.Write(ctx, "db.dat", "application/octet-stream", []byte("not a valid tree")))

	db2, err := Open(ctx, store, collection.Config{})
	require.NoError(t, err)
	rootAfter, err := db2.RootHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, rootBefore, rootAfter)
}

func merkleZero(t *testing.T) [32]byte {
	t.Helper()
	db, _ := newTestDatabase(t)
	z, err := db.RootHash(context.Background())
	require.NoError(t, err)
	return z
}
