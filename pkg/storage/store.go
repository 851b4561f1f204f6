package storage

import (
	"context"
	"io"
	"time"
)

// Info describes an object's metadata without fetching its body.
type Info struct {
	ContentType  string
	Length       int64
	LastModified time.Time
}

// Page is a single page of a paginated listing.
type Page struct {
	Names []string
	Next  string // cursor for the next page; empty when exhausted
}

// Storage is the flat, path-like byte namespace every higher layer of
// the document store is built on. Paths use forward slashes; a
// "directory" is just a prefix ending in "/" for listing purposes.
//
// write is atomic: callers never observe a partially-written object.
// All other operations may be called concurrently with each other, but
// the namespace itself assumes exactly one writer process.
type Storage interface {
	// Write atomically replaces the object at path with data,
	// creating any implied parent directories.
	Write(ctx context.Context, path string, contentType string, data []byte) error

	// Read returns the bytes at path, or (nil, false, nil) if absent.
	Read(ctx context.Context, path string) (data []byte, ok bool, err error)

	// WriteStream writes from r to path without requiring the whole
	// object to be buffered in memory by the caller.
	WriteStream(ctx context.Context, path string, contentType string, r io.Reader) error

	// ReadStream opens path for streaming read. Returns
	// dberrors.ErrNotFound if absent. Callers must Close the result.
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)

	// Info returns metadata for path, or (nil, false, nil) if absent.
	Info(ctx context.Context, path string) (info *Info, ok bool, err error)

	// FileExists reports whether path is present.
	FileExists(ctx context.Context, path string) (bool, error)

	// DeleteFile removes path. Deleting an absent path is not an error.
	DeleteFile(ctx context.Context, path string) error

	// ListFiles lists up to limit file names directly under prefix, in
	// ascending order, continuing from cursor if non-empty.
	ListFiles(ctx context.Context, prefix string, limit int, cursor string) (Page, error)

	// ListDirs lists up to limit subdirectory names directly under
	// prefix, in ascending order, continuing from cursor if non-empty.
	ListDirs(ctx context.Context, prefix string, limit int, cursor string) (Page, error)
}
