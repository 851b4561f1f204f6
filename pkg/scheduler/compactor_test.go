package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shardkeep/shardkeep/pkg/bson"
	"github.com/shardkeep/shardkeep/pkg/collection"
	"github.com/shardkeep/shardkeep/pkg/database"
	"github.com/shardkeep/shardkeep/pkg/storage"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	db, err := database.Open(context.Background(), store, collection.Config{MaxCachedShards: 4, MaxRecordsPerShard: 10})
	require.NoError(t, err)
	return db
}

func TestCompactorRunOnceRecomputesRootHash(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	defer db.Close(ctx)

	coll, err := db.Collection(ctx, "widgets")
	require.NoError(t, err)
	require.NoError(t, coll.InsertOne(ctx, bson.Record{"_id": bson.String("a1")}, 1))

	before, err := db.RootHash(ctx)
	require.NoError(t, err)

	c := NewCompactor(db, time.Hour)
	c.runOnce(ctx)

	after, err := db.RootHash(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after, "compaction pass must not change a consistent tree's root hash")
}

func TestCompactorStartStop(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	defer db.Close(ctx)

	c := NewCompactor(db, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}
