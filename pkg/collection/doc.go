// Package collection routes record operations to shards by ID prefix,
// keeps an LRU-bounded cache of loaded shards, and maintains the
// collection-level Merkle tree whose leaves are shard roots (spec
// section 4.1). It is the layer where pkg/shard's pure in-memory
// container meets pkg/storage's byte namespace.
package collection
