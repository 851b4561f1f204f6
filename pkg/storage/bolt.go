package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/shardkeep/shardkeep/pkg/dberrors"
)

var (
	bucketObjects  = []byte("objects")
	bucketMetadata = []byte("metadata")
)

type objectMeta struct {
	ContentType  string `json:"contentType"`
	LastModified int64  `json:"lastModified"` // unix nanoseconds
}

// BoltStorage implements Storage on top of an embedded bbolt database:
// every path becomes a key in the objects bucket, with a parallel
// metadata bucket carrying content type and modification time.
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage opens (creating if absent) a bbolt-backed Storage at
// dbPath.
func NewBoltStorage(dbPath string) (*BoltStorage, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketObjects); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMetadata)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create buckets: %w", err)
	}
	return &BoltStorage{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

func (s *BoltStorage) Write(_ context.Context, path, contentType string, data []byte) error {
	meta := objectMeta{ContentType: contentType, LastModified: time.Now().UnixNano()}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("storage: marshal metadata for %s: %w", path, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Put([]byte(path), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMetadata).Put([]byte(path), metaBytes)
	})
}

func (s *BoltStorage) WriteStream(ctx context.Context, path, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("storage: buffer stream for %s: %w", path, err)
	}
	return s.Write(ctx, path, contentType, data)
}

func (s *BoltStorage) Read(_ context.Context, path string) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketObjects).Get([]byte(path))
		if v == nil {
			return nil
		}
		found = true
		out = append([]byte(nil), v...)
		return nil
	})
	return out, found, err
}

func (s *BoltStorage) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	data, ok, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dberrors.Wrap("storage.ReadStream", path, dberrors.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *BoltStorage) Info(_ context.Context, path string) (*Info, bool, error) {
	var info *Info
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketObjects).Get([]byte(path))
		if data == nil {
			return nil
		}
		metaBytes := tx.Bucket(bucketMetadata).Get([]byte(path))
		var meta objectMeta
		if metaBytes != nil {
			_ = json.Unmarshal(metaBytes, &meta)
		}
		info = &Info{
			ContentType:  meta.ContentType,
			Length:       int64(len(data)),
			LastModified: time.Unix(0, meta.LastModified),
		}
		return nil
	})
	return info, info != nil, err
}

func (s *BoltStorage) FileExists(_ context.Context, path string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketObjects).Get([]byte(path)) != nil
		return nil
	})
	return found, err
}

func (s *BoltStorage) DeleteFile(_ context.Context, path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Delete([]byte(path)); err != nil {
			return err
		}
		return tx.Bucket(bucketMetadata).Delete([]byte(path))
	})
}

// ListFiles and ListDirs both scan the objects bucket's keys under
// prefix; since bbolt has no directory concept, "directories" are
// derived from the first path segment after prefix.
func (s *BoltStorage) ListFiles(_ context.Context, prefix string, limit int, cursor string) (Page, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketObjects).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, _ = c.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			if rest == "" || strings.Contains(rest, "/") {
				continue // not a direct child, or the prefix key itself
			}
			names = append(names, rest)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	sort.Strings(names)
	return paginate(names, limit, cursor), nil
}

func (s *BoltStorage) ListDirs(_ context.Context, prefix string, limit int, cursor string) (Page, error) {
	seen := make(map[string]bool)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketObjects).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, _ = c.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			idx := strings.Index(rest, "/")
			if idx <= 0 {
				continue
			}
			seen[rest[:idx]] = true
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return paginate(names, limit, cursor), nil
}

// paginate slices a sorted name list starting after cursor, returning
// at most limit entries and the cursor for the next page.
func paginate(names []string, limit int, cursor string) Page {
	start := 0
	if cursor != "" {
		start = sort.SearchStrings(names, cursor)
		if start < len(names) && names[start] == cursor {
			start++
		}
	}
	if start >= len(names) {
		return Page{}
	}
	end := start + limit
	if limit <= 0 || end > len(names) {
		end = len(names)
	}
	page := Page{Names: names[start:end]}
	if end < len(names) {
		page.Next = names[end-1]
	}
	return page
}
