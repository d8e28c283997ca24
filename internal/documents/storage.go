package documents

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store keeps document contents outside the database.
type Store interface {
	Save(name string, r io.Reader) (int64, error)
	Open(name string) (io.ReadCloser, error)
	Remove(name string) error
}

// DiskStore stores files flat under a base directory.
type DiskStore struct {
	base string
}

// NewDiskStore creates the base directory when missing.
func NewDiskStore(base string) (*DiskStore, error) {
	if base == "" {
		return nil, errors.New("documents: storage dir required")
	}
	if err := os.MkdirAll(base, 0o750); err != nil {
		return nil, fmt.Errorf("documents: create storage dir: %w", err)
	}
	return &DiskStore{base: base}, nil
}

func (s *DiskStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("documents: invalid stored name %q", name)
	}
	return filepath.Join(s.base, name), nil
}

// Save writes r to name. A partially written file is removed on error.
func (s *DiskStore) Save(name string, r io.Reader) (int64, error) {
	path, err := s.path(name)
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("documents: create %s: %w", name, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("documents: write %s: %w", name, err)
	}
	return n, nil
}

// Open returns the contents of name.
func (s *DiskStore) Open(name string) (io.ReadCloser, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Remove deletes name; a missing file is not an error.
func (s *DiskStore) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("documents: remove %s: %w", name, err)
	}
	return nil
}
