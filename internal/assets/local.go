package assets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// LocalStore writes uploads into a directory served under /uploads
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Strategy() Strategy {
	return StrategyLocal
}

// Dir returns the upload directory
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Save(ctx context.Context, upload Upload) (*Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	name := GenerateName(upload.Filename)
	path := filepath.Join(s.dir, name)

	if err := atomic.WriteFile(path, bytes.NewReader(upload.Data)); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrStoreFailure, name, err)
	}

	// atomic.WriteFile leaves the temp file's 0600 mode
	if err := os.Chmod(path, filePerms); err != nil {
		return nil, fmt.Errorf("%w: chmod %s: %v", ErrStoreFailure, name, err)
	}

	return &Reference{Filename: name}, nil
}

// Open returns the stored file for name, which must be a generated name
func (s *LocalStore) Open(name string) (*os.File, error) {
	if !ValidName(name) {
		return nil, ErrInvalidName
	}
	return os.Open(filepath.Join(s.dir, name))
}
