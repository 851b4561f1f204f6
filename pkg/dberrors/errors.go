package dberrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers should compare against these with errors.Is,
// never by string matching — an Error wraps one of these as its Cause.
var (
	ErrNotFound           = errors.New("document not found")
	ErrDuplicateID        = errors.New("document with this id already exists")
	ErrCorruptShard       = errors.New("shard file is corrupt")
	ErrCorruptTree        = errors.New("merkle tree fails invariant check")
	ErrUnsupportedVersion = errors.New("unsupported on-disk format version")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrNoMatchingKey      = errors.New("no encryption key matches the stored key id")
	ErrStorageUnavailable = errors.New("storage backend unavailable")
	ErrClosed             = errors.New("database is closed")
)

// Error is the typed error returned by store operations: it names the
// operation and collection/shard it failed on and wraps one of the
// sentinels above so callers can still errors.Is against it.
type Error struct {
	Op    string // e.g. "collection.InsertOne"
	Path  string // collection name, shard id, or file path, as applicable
	Cause error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s(%s): %v", e.Op, e.Path, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap builds an *Error attributing cause to op/path. If cause is nil,
// Wrap returns nil so callers can write `return dberrors.Wrap(op, path, err)`
// unconditionally.
func Wrap(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Op: op, Path: path, Cause: cause}
}

// Is reports whether err is, or wraps, target — a thin convenience
// wrapper so callers don't need a separate "errors" import just for
// dberrors comparisons.
func Is(err, target error) bool { return errors.Is(err, target) }
