// Package dberrors defines the sentinel error values returned by the
// store's layers (pkg/shard, pkg/collection, pkg/database, pkg/storage)
// and a typed Error that attaches an operation and underlying cause to
// one of them, in the spirit of iden3-go-merkletree-sql's package-level
// Err* sentinels combined with the %w-wrapping idiom used throughout
// the document store's teacher codebase.
package dberrors
