package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shardkeep/shardkeep/pkg/dberrors"
)

// LocalStorage implements Storage over the host filesystem rooted at
// a base directory. Content type is not persisted by the OS, so Info
// always reports it empty for locally-written files.
type LocalStorage struct {
	root string
}

// NewLocalStorage returns a Storage rooted at root, creating it if
// absent.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", root, err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) resolve(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *LocalStorage) Write(_ context.Context, path, _ string, data []byte) error {
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return fmt.Errorf("storage: mkdir for %s: %w", path, err)
	}
	// Write to a temp file in the same directory, then rename, so a
	// reader never observes a partially-written object.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: rename into place for %s: %w", path, err)
	}
	return nil
}

func (s *LocalStorage) WriteStream(ctx context.Context, path, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("storage: buffer stream for %s: %w", path, err)
	}
	return s.Write(ctx, path, contentType, data)
}

func (s *LocalStorage) Read(_ context.Context, path string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.resolve(path))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, true, nil
}

func (s *LocalStorage) ReadStream(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(s.resolve(path))
	if os.IsNotExist(err) {
		return nil, dberrors.Wrap("storage.ReadStream", path, dberrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return f, nil
}

func (s *LocalStorage) Info(_ context.Context, path string) (*Info, bool, error) {
	fi, err := os.Stat(s.resolve(path))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return &Info{Length: fi.Size(), LastModified: fi.ModTime()}, true, nil
}

func (s *LocalStorage) FileExists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(s.resolve(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return true, nil
}

func (s *LocalStorage) DeleteFile(_ context.Context, path string) error {
	err := os.Remove(s.resolve(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

func (s *LocalStorage) ListFiles(_ context.Context, prefix string, limit int, cursor string) (Page, error) {
	return s.list(prefix, limit, cursor, false)
}

func (s *LocalStorage) ListDirs(_ context.Context, prefix string, limit int, cursor string) (Page, error) {
	return s.list(prefix, limit, cursor, true)
}

func (s *LocalStorage) list(prefix string, limit int, cursor string, dirsOnly bool) (Page, error) {
	dir := s.resolve(strings.TrimSuffix(prefix, "/"))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return Page{}, nil
	}
	if err != nil {
		return Page{}, fmt.Errorf("storage: list %s: %w", prefix, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() == dirsOnly {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return paginate(names, limit, cursor), nil
}
