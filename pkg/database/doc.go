// Package database owns the set of collections rooted at a storage
// namespace: lazy collection construction and caching, the
// database-level Merkle tree over collection roots, and the
// metrics.StatsSource contract (spec section 4.4).
package database
