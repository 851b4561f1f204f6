package database

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shardkeep/shardkeep/pkg/collection"
	"github.com/shardkeep/shardkeep/pkg/dberrors"
	"github.com/shardkeep/shardkeep/pkg/log"
	"github.com/shardkeep/shardkeep/pkg/merkle"
	"github.com/shardkeep/shardkeep/pkg/storage"
)

const treeFileName = "db.dat"

// Database owns every collection rooted at one Storage namespace and
// maintains the top-level Merkle tree over collection roots (spec
// section 4.4).
type Database struct {
	store storage.Storage
	ccfg  collection.Config
	log   zerolog.Logger

	mu          sync.Mutex
	collections map[string]*collection.Collection
	tree        *merkle.Tree
}

// Open loads (or creates) a database rooted at store, reading its
// top-level Merkle tree if present.
func Open(ctx context.Context, store storage.Storage, ccfg collection.Config) (*Database, error) {
	db := &Database{
		store:       store,
		ccfg:        ccfg,
		log:         log.WithComponent("database"),
		collections: make(map[string]*collection.Collection),
	}

	tree, err := db.loadTree(ctx)
	if err != nil {
		return nil, err
	}
	db.tree = tree
	return db, nil
}

func (db *Database) loadTree(ctx context.Context) (*merkle.Tree, error) {
	data, ok, err := db.store.Read(ctx, treeFileName)
	if err != nil {
		return nil, dberrors.Wrap("database.loadTree", treeFileName, err)
	}
	if !ok {
		return merkle.New(), nil
	}
	root, err := merkle.Deserialize(merkle.MagicDatabase, data)
	if err != nil {
		db.log.Error().Err(err).Msg("database tree corrupt, rebuilding from collection directories")
		return db.rebuildTreeFromCollections(ctx)
	}
	return merkle.LoadLeaves(leavesOf(root)), nil
}

// rebuildTreeFromCollections reconstructs the database tree by opening
// every on-disk collection and reading its current root hash, used
// when db.dat fails to deserialize or its invariant check (spec section
// 9, Scenario D, one level up). A missing db.dat is not rebuilt:
// loadTree reads it as an empty database tree, the state flushTree
// leaves on disk by deleting db.dat when the tree is empty.
func (db *Database) rebuildTreeFromCollections(ctx context.Context) (*merkle.Tree, error) {
	names, err := db.listCollectionDirs(ctx)
	if err != nil {
		return nil, err
	}
	var leaves []merkle.Leaf
	for _, name := range names {
		c, err := db.open(ctx, name)
		if err != nil {
			return nil, err
		}
		root, err := c.RootHash(ctx)
		if err != nil {
			return nil, err
		}
		n, err := c.Len(ctx)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, merkle.Leaf{Name: name, Hash: root, Length: uint64(n)})
	}
	return merkle.LoadLeaves(leaves), nil
}

func leavesOf(root *merkle.Node) []merkle.Leaf {
	var leaves []merkle.Leaf
	merkle.TraverseSync(root, func(n *merkle.Node) bool {
		if n.IsLeaf {
			leaves = append(leaves, merkle.Leaf{
				Name:         n.Name,
				Hash:         n.Hash,
				Length:       n.Length,
				LastModified: n.LastModified,
			})
		}
		return true
	})
	return leaves
}

// Collection returns the named collection, lazily constructing it
// against store's "collections/<name>/" namespace on first use.
func (db *Database) Collection(ctx context.Context, name string) (*collection.Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.open(ctx, name)
}

// open constructs (or returns the cached) collection. Callers must
// hold db.mu.
func (db *Database) open(ctx context.Context, name string) (*collection.Collection, error) {
	if c, ok := db.collections[name]; ok {
		return c, nil
	}
	c, err := collection.New(ctx, name, db.store, db.ccfg)
	if err != nil {
		return nil, fmt.Errorf("database: open collection %q: %w", name, err)
	}
	c.SetOnFlush(func(root [32]byte, n int) { db.syncCollectionLeaf(ctx, name, root, n) })
	db.collections[name] = c
	return c, nil
}

// Collections returns the union of cached and on-disk collection
// names, satisfying metrics.StatsSource.
func (db *Database) Collections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	seen := make(map[string]bool, len(db.collections))
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		seen[name] = true
		names = append(names, name)
	}
	onDisk, err := db.listCollectionDirs(context.Background())
	if err != nil {
		db.log.Error().Err(err).Msg("list collection directories failed")
		return names
	}
	for _, name := range onDisk {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names
}

// CollectionLen returns the record count of the named collection,
// satisfying metrics.StatsSource.
func (db *Database) CollectionLen(name string) (int, error) {
	ctx := context.Background()
	db.mu.Lock()
	c, err := db.open(ctx, name)
	db.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return c.Len(ctx)
}

// RootHash returns the database's current Merkle root.
func (db *Database) RootHash(ctx context.Context) ([32]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tree.RootHash(), nil
}

// Close flushes and releases every cached collection.
func (db *Database) Close(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, c := range db.collections {
		if err := c.Shutdown(ctx); err != nil {
			return fmt.Errorf("database: close collection %q: %w", name, err)
		}
	}
	db.collections = make(map[string]*collection.Collection)
	return nil
}

// syncCollectionLeaf updates (or removes) the database tree's leaf for
// name after a collection-level flush, then rewrites db.dat (spec
// section 4.4's Merkle maintenance clause). root and n are the
// collection's post-flush root hash and record count, computed by the
// caller while it still held the collection's own lock — this must
// never call back into the collection (Len/RootHash) or it would
// deadlock against the flush that is invoking it.
func (db *Database) syncCollectionLeaf(ctx context.Context, name string, root [32]byte, n int) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if n == 0 {
		db.tree.DeleteItem(name)
	} else {
		db.tree.AddItem(merkle.Leaf{Name: name, Hash: root, Length: uint64(n)})
	}
	if err := db.flushTree(ctx); err != nil {
		db.log.Error().Str("collection", name).Err(err).Msg("flush database tree failed")
	}
}

func (db *Database) flushTree(ctx context.Context) error {
	if db.tree.Len() == 0 {
		return db.store.DeleteFile(ctx, treeFileName)
	}
	data := merkle.Serialize(merkle.MagicDatabase, db.tree.Root())
	return db.store.Write(ctx, treeFileName, "application/octet-stream", data)
}

func (db *Database) listCollectionDirs(ctx context.Context) ([]string, error) {
	var names []string
	cursor := ""
	for {
		page, err := db.store.ListDirs(ctx, "collections/", 0, cursor)
		if err != nil {
			return nil, dberrors.Wrap("database.listCollectionDirs", "collections/", err)
		}
		for _, d := range page.Names {
			names = append(names, path.Base(d))
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}
	return names, nil
}
