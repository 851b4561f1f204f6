// Package bson implements the self-describing binary document encoding
// used to persist records inside a shard file, along with the canonical
// JSON encoding used as Merkle leaf hashing input.
//
// A Value is a tagged union over the scalar and composite kinds a record
// field may hold. Documents are encoded as a flat sequence of typed
// key/value pairs with little-endian lengths and null-terminated string
// keys, mirroring the BSON wire shape referenced by the format this
// package implements (spec section 6.2).
package bson
