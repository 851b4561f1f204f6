// Package merkle implements the two overlaid trees described by the
// document store's hierarchical verification scheme: a sort-ordered
// binary tree used for membership tests and ordered iteration, and a
// Merkle hash tree lazily derived from it. The same Node type serves
// both roles; internal nodes additionally track the bookkeeping fields
// (minName, nodeCount, leafCount) needed to preserve sort order and
// support the flat pre-order on-disk encoding.
//
// Mutation (AddItem/UpdateItem/DeleteItem) only touches the tree's
// sorted leaf set and marks it dirty; the hash tree is rebuilt from
// scratch, in O(n), the next time Root or RootHash is read. This keeps
// buildMerkleTree a pure, deterministic function of the leaf set and its
// sort order, which is what gives two databases with byte-identical
// records identical root hashes.
package merkle
