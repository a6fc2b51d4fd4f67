package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage implements the Storage interface using local disk.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a new LocalStorage rooted at root.
// If root is empty, "data" is used. The directory is created if it doesn't exist.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = "data"
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{root: root}, nil
}

// Root returns the storage root directory.
func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) path(key string) (string, string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Save writes data to a temporary file next to the target and renames it
// into place, so readers never see a partial object.
func (s *LocalStorage) Save(ctx context.Context, key string, data io.Reader) (Object, error) {
	select {
	case <-ctx.Done():
		return Object{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	clean, full, err := s.path(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return Object{}, fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(full), filepath.Base(full)+".tmp-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}

	tmp := f.Name()
	n, err := io.Copy(f, data)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return Object{}, fmt.Errorf("write object: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return Object{}, fmt.Errorf("close object: %w", err)
	}

	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return Object{}, fmt.Errorf("rename object: %w", err)
	}

	return Object{Key: clean, Path: full, Size: n}, nil
}

// Open returns a reader for the object stored under key.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	_, full, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full) // #nosec G304 - key is sanitized against the root
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}

	return f, nil
}

// Delete removes the given keys. Missing objects are not an error.
func (s *LocalStorage) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for _, k := range keys {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		_, full, err := s.path(k)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove object %s: %w", k, err)
			}
		}
	}
	return firstErr
}

var _ Storage = (*LocalStorage)(nil)
