package collection

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/shardkeep/shardkeep/pkg/bson"
	"github.com/shardkeep/shardkeep/pkg/dberrors"
	"github.com/shardkeep/shardkeep/pkg/log"
	"github.com/shardkeep/shardkeep/pkg/merkle"
	"github.com/shardkeep/shardkeep/pkg/metrics"
	"github.com/shardkeep/shardkeep/pkg/shard"
	"github.com/shardkeep/shardkeep/pkg/storage"
)

const (
	defaultMaxCachedShards    = 64
	defaultMaxRecordsPerShard = 1000
)

// Config tunes a Collection's caching and layout behavior (spec section
// 6.5). Zero values fall back to the package defaults.
type Config struct {
	MaxCachedShards    int
	MaxRecordsPerShard int
}

// Collection routes _id-keyed records to shards, caches loaded shards
// with LRU eviction, and maintains the collection-level Merkle tree
// over shard roots.
type Collection struct {
	name    string
	store   storage.Storage
	cfg     Config
	logger  zerolog.Logger
	mu      sync.Mutex
	cache   *lru.Cache
	tree    *merkle.Tree
	onFlush func(root [32]byte, n int)
}

// SetOnFlush registers a callback invoked after every successful
// collection-level flush (insert/update/delete that changes the
// collection's Merkle root, including emptying it to zero shards),
// with the collection's post-flush root hash and total record count
// already computed. pkg/database uses this to keep the database
// tree's leaf for this collection current without polling. The
// callback must not call back into the Collection: it runs while
// c.mu is still held by the flush that triggered it.
func (c *Collection) SetOnFlush(fn func(root [32]byte, n int)) { c.onFlush = fn }

// New loads (or creates) the named collection against store. It reads
// the existing collection.dat Merkle tree if present.
func New(ctx context.Context, name string, store storage.Storage, cfg Config) (*Collection, error) {
	if cfg.MaxCachedShards <= 0 {
		cfg.MaxCachedShards = defaultMaxCachedShards
	}
	if cfg.MaxRecordsPerShard <= 0 {
		cfg.MaxRecordsPerShard = defaultMaxRecordsPerShard
	}

	c := &Collection{
		name:   name,
		store:  store,
		cfg:    cfg,
		logger: log.WithCollection(name),
	}

	cache, err := lru.NewWithEvict(cfg.MaxCachedShards, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("collection: create shard cache: %w", err)
	}
	c.cache = cache

	tree, err := c.loadTree(ctx)
	if err != nil {
		return nil, err
	}
	c.tree = tree
	return c, nil
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) basePath() string               { return path.Join("collections", c.name) }
func (c *Collection) shardPath(shardID string) string { return path.Join(c.basePath(), "shards", shardID) }
func (c *Collection) shardTreePath(shardID string) string {
	return c.shardPath(shardID) + ".dat"
}
func (c *Collection) treePath() string { return path.Join(c.basePath(), "collection.dat") }

func (c *Collection) loadTree(ctx context.Context) (*merkle.Tree, error) {
	data, ok, err := c.store.Read(ctx, c.treePath())
	if err != nil {
		return nil, dberrors.Wrap("collection.loadTree", c.name, err)
	}
	if !ok {
		return c.rebuildTreeFromShards(ctx)
	}
	root, err := merkle.Deserialize(merkle.MagicCollection, data)
	if err != nil {
		c.logger.Error().Err(err).Msg("collection tree corrupt, rebuilding from shard files")
		return c.rebuildTreeFromShards(ctx)
	}
	return merkle.LoadLeaves(leavesOf(root)), nil
}

// rebuildTreeFromShards reconstructs the collection tree by reading
// every shard file's own tree root, used when collection.dat is
// missing or fails its invariant check (spec section 9, Scenario D).
func (c *Collection) rebuildTreeFromShards(ctx context.Context) (*merkle.Tree, error) {
	var leaves []merkle.Leaf
	page := storage.Page{}
	cursor := ""
	for {
		files, err := c.store.ListFiles(ctx, c.basePath()+"/shards/", 0, cursor)
		if err != nil {
			return nil, dberrors.Wrap("collection.rebuildTreeFromShards", c.name, err)
		}
		page = files
		for _, name := range page.Names {
			if path.Ext(name) == ".dat" {
				continue
			}
			s, err := c.loadShardFromStorage(ctx, name)
			if err != nil {
				return nil, err
			}
			leaves = append(leaves, shardLeaf(s))
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Name < leaves[j].Name })
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

func shardLeaf(s *shard.Shard) merkle.Leaf {
	return merkle.Leaf{
		Name:   s.ID,
		Hash:   s.Tree().RootHash(),
		Length: uint64(s.Len()),
	}
}

// InsertOne stores a new record, routing it to its shard by
// shard.RouteID(record._id). Fails with dberrors.ErrDuplicateID if the
// id already exists.
func (c *Collection) InsertOne(ctx context.Context, rec bson.Record, ts int64) error {
	id, ok := rec.ID()
	if !ok {
		return dberrors.Wrap("collection.InsertOne", c.name, dberrors.ErrCorruptShard)
	}
	shardID := shard.RouteID(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.loadShard(ctx, shardID)
	if err != nil {
		return err
	}
	if err := s.Insert(rec, ts); err != nil {
		return dberrors.Wrap("collection.InsertOne", c.name, err)
	}
	return c.flushShard(ctx, shardID, s)
}

// UpdateOne merges updates into the record with id. Returns whether
// any field actually changed.
func (c *Collection) UpdateOne(ctx context.Context, id string, updates map[string]*bson.Value, ts int64) (bool, error) {
	shardID := shard.RouteID(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.loadShard(ctx, shardID)
	if err != nil {
		return false, err
	}
	changed, err := s.Update(id, updates, ts)
	if err != nil {
		return false, dberrors.Wrap("collection.UpdateOne", c.name, err)
	}
	if !changed {
		return false, nil
	}
	return true, c.flushShard(ctx, shardID, s)
}

// GetOne looks up a record by id.
func (c *Collection) GetOne(ctx context.Context, id string) (bson.Record, bool, error) {
	shardID := shard.RouteID(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.loadShard(ctx, shardID)
	if err != nil {
		return nil, false, err
	}
	rec, ok := s.Get(id)
	return rec, ok, nil
}

// DeleteOne removes a record. Reports whether it was present. When the
// owning shard becomes empty, its file and Merkle sibling are deleted
// and its collection-tree leaf is removed.
func (c *Collection) DeleteOne(ctx context.Context, id string) (bool, error) {
	shardID := shard.RouteID(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.loadShard(ctx, shardID)
	if err != nil {
		return false, err
	}
	if !s.Delete(id) {
		return false, nil
	}

	if s.Len() == 0 {
		return true, c.dropShard(ctx, shardID)
	}
	return true, c.flushShard(ctx, shardID, s)
}

// GetAll returns up to limit records in ascending _id order, starting
// after cursor. This implementation scans every shard on each call
// rather than maintaining a global sorted index — simple and correct,
// traded off against O(total records) cost per page.
func (c *Collection) GetAll(ctx context.Context, cursor string, limit int) ([]bson.Record, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shardIDs, err := c.listShardIDs(ctx)
	if err != nil {
		return nil, "", err
	}

	var all []bson.Record
	for _, shardID := range shardIDs {
		s, err := c.loadShard(ctx, shardID)
		if err != nil {
			return nil, "", err
		}
		all = append(all, s.Records()...)
	}
	sort.Slice(all, func(i, j int) bool {
		idI, _ := all[i].ID()
		idJ, _ := all[j].ID()
		return idI < idJ
	})

	start := 0
	if cursor != "" {
		start = sort.Search(len(all), func(i int) bool {
			id, _ := all[i].ID()
			return id > cursor
		})
	}
	if start >= len(all) {
		return nil, "", nil
	}
	end := start + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	page := all[start:end]
	next := ""
	if end < len(all) {
		next, _ = page[len(page)-1].ID()
	}
	return page, next, nil
}

// Shutdown flushes every cached dirty shard and releases the cache.
func (c *Collection) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.cache.Keys() {
		shardID := key.(string)
		v, ok := c.cache.Peek(shardID)
		if !ok {
			continue
		}
		s := v.(*shard.Shard)
		if s.IsDirty() {
			if err := c.flushShard(ctx, shardID, s); err != nil {
				return err
			}
		}
	}
	c.cache.Purge()
	return nil
}

// RootHash returns the collection's current Merkle root, rehashing the
// collection tree first if it has changed since the last read.
func (c *Collection) RootHash(ctx context.Context) ([32]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.RootHash(), nil
}

// Len returns the total number of records across all shards, used by
// metrics.StatsSource.
func (c *Collection) Len(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lenLocked(ctx)
}

// lenLocked is Len's body for callers that already hold c.mu (flushTree,
// invoked from inside an insert/update/delete that holds the lock via
// defer).
func (c *Collection) lenLocked(ctx context.Context) (int, error) {
	shardIDs, err := c.listShardIDs(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, shardID := range shardIDs {
		s, err := c.loadShard(ctx, shardID)
		if err != nil {
			return 0, err
		}
		total += s.Len()
	}
	return total, nil
}

func (c *Collection) listShardIDs(ctx context.Context) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		page, err := c.store.ListFiles(ctx, c.basePath()+"/shards/", 0, cursor)
		if err != nil {
			return nil, dberrors.Wrap("collection.listShardIDs", c.name, err)
		}
		for _, name := range page.Names {
			if path.Ext(name) == ".dat" {
				continue
			}
			ids = append(ids, name)
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}
	return ids, nil
}

// loadShard returns the cached shard for shardID, loading (or creating)
// it on a cache miss.
func (c *Collection) loadShard(ctx context.Context, shardID string) (*shard.Shard, error) {
	if v, ok := c.cache.Get(shardID); ok {
		return v.(*shard.Shard), nil
	}
	s, err := c.loadShardFromStorage(ctx, shardID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(shardID, s)
	return s, nil
}

func (c *Collection) loadShardFromStorage(ctx context.Context, shardID string) (*shard.Shard, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ShardLoadDuration, c.name)

	data, ok, err := c.store.Read(ctx, c.shardPath(shardID))
	if err != nil {
		return nil, dberrors.Wrap("collection.loadShard", shardID, err)
	}
	if !ok {
		return shard.New(shardID), nil
	}
	info, _, err := c.store.Info(ctx, c.shardPath(shardID))
	if err != nil {
		return nil, dberrors.Wrap("collection.loadShard", shardID, err)
	}
	if info != nil && info.Length != int64(len(data)) {
		metrics.ShardCorruptionsTotal.WithLabelValues(c.name).Inc()
		return nil, dberrors.Wrap("collection.loadShard", shardID, dberrors.ErrCorruptShard)
	}

	s, err := shard.Decode(shardID, data)
	if err != nil {
		metrics.ShardCorruptionsTotal.WithLabelValues(c.name).Inc()
		return nil, dberrors.Wrap("collection.loadShard", shardID, err)
	}

	if err := c.loadShardTree(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// loadShardTree checks a shard's on-disk Merkle sibling against the
// tree shard.Decode already rebuilt from the shard's own record set
// (spec section 9, Scenario D). The rebuilt tree is always the one in
// use; a missing sibling is ignored, and a corrupt or stale one is only
// logged.
func (c *Collection) loadShardTree(ctx context.Context, s *shard.Shard) error {
	data, ok, err := c.store.Read(ctx, c.shardTreePath(s.ID))
	if err != nil {
		return dberrors.Wrap("collection.loadShardTree", s.ID, err)
	}
	if !ok {
		return nil // s.Tree() was already rebuilt leaf-by-leaf during shard.Decode
	}
	root, err := merkle.Deserialize(merkle.MagicCollection, data)
	if err != nil {
		c.logger.Warn().Str("shard_id", s.ID).Err(err).Msg("shard merkle file corrupt, rebuilding from shard data")
		return nil
	}
	if root != nil && root.Hash != s.Tree().RootHash() {
		c.logger.Warn().Str("shard_id", s.ID).Msg("shard merkle file stale, rebuilding from shard data")
	}
	return nil
}

// flushShard writes the shard's full bytes and Merkle sibling through
// Storage in a single buffered write each (spec section 4.1's "never
// write partial data" policy), then updates the collection tree's leaf
// for this shard.
func (c *Collection) flushShard(ctx context.Context, shardID string, s *shard.Shard) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ShardFlushDuration, c.name)

	data := s.Encode()
	if err := c.store.Write(ctx, c.shardPath(shardID), "application/octet-stream", data); err != nil {
		return dberrors.Wrap("collection.flushShard", shardID, err)
	}

	treeData := merkle.Serialize(merkle.MagicCollection, s.Tree().Root())
	if err := c.store.Write(ctx, c.shardTreePath(shardID), "application/octet-stream", treeData); err != nil {
		return dberrors.Wrap("collection.flushShard", shardID, err)
	}

	s.MarkClean()
	c.tree.AddItem(shardLeaf(s))
	return c.flushTree(ctx)
}

// dropShard deletes an empty shard's file and Merkle sibling, removes
// its collection-tree leaf, and rewrites (or removes) collection.dat.
func (c *Collection) dropShard(ctx context.Context, shardID string) error {
	if err := c.store.DeleteFile(ctx, c.shardPath(shardID)); err != nil {
		return dberrors.Wrap("collection.dropShard", shardID, err)
	}
	if err := c.store.DeleteFile(ctx, c.shardTreePath(shardID)); err != nil {
		return dberrors.Wrap("collection.dropShard", shardID, err)
	}
	c.cache.Remove(shardID)
	c.tree.DeleteItem(shardID)
	return c.flushTree(ctx)
}

func (c *Collection) flushTree(ctx context.Context) error {
	var err error
	if c.tree.Len() == 0 {
		err = c.store.DeleteFile(ctx, c.treePath())
	} else {
		data := merkle.Serialize(merkle.MagicCollection, c.tree.Root())
		err = c.store.Write(ctx, c.treePath(), "application/octet-stream", data)
	}
	if err != nil || c.onFlush == nil {
		return err
	}

	// c.mu is already held by the caller (flushShard/dropShard run
	// under insert/update/delete's lock), so use the lock-free
	// accessors rather than Len/RootHash, which would deadlock
	// re-acquiring c.mu.
	n, lenErr := c.lenLocked(ctx)
	if lenErr != nil {
		c.logger.Error().Err(lenErr).Msg("compute collection length for onFlush callback failed")
		return err
	}
	c.onFlush(c.tree.RootHash(), n)
	return err
}

// onEvict flushes a dirty shard before the LRU cache drops it from
// memory (spec section 4.1: "cache eviction of a dirty shard must
// flush it first"). The hashicorp/golang-lru callback carries no
// context or error channel, so failures are logged rather than
// propagated to the caller whose Add triggered the eviction.
func (c *Collection) onEvict(key, value interface{}) {
	shardID := key.(string)
	s := value.(*shard.Shard)
	if !s.IsDirty() {
		return
	}
	if err := c.flushShard(context.Background(), shardID, s); err != nil {
		c.logger.Error().Str("shard_id", shardID).Err(err).Msg("flush on cache eviction failed")
	}
}
