// Package shard holds the bounded record container that sits under a
// collection: an in-memory record map, the binary on-disk codec (spec
// section 6.2, magic BSH1), and the per-shard Merkle tree over
// (_id, canonical field hash) leaves. It has no Storage dependency of
// its own — pkg/collection owns the read/flush I/O and treats a Shard
// as a pure, in-memory value it loads and persists.
package shard
