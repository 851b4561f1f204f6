// Package scheduler runs a background compaction loop against a
// pkg/database.Database: on a fixed interval it opens every collection
// and recomputes the database root hash. A collection not yet cached
// whose collection.dat is missing or corrupt has its tree re-derived in
// memory from its shard files (spec section 8 scenario D); the pass
// writes no tree files back to storage.
package scheduler
