// Package storage writes exported files (chat transcripts, rendered
// dashboards) through afero so tests can run against memory.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store saves whole files. Save returns the number of bytes written.
type Store interface {
	Save(ctx context.Context, path string, r io.Reader) (int64, error)
}

// AferoStore is a Store backed by an afero filesystem.
type AferoStore struct {
	fs afero.Fs
}

// NewAferoStore creates a new AferoStore.
func NewAferoStore(fs afero.Fs) *AferoStore {
	return &AferoStore{fs: fs}
}

// NewOsStore stores files on disk relative to the working directory.
func NewOsStore() *AferoStore {
	return NewAferoStore(afero.NewOsFs())
}

// Save replaces the file at path with the reader's content. The content is
// written to a temporary sibling first and renamed into place, so a reader
// never sees a partial file.
func (s *AferoStore) Save(ctx context.Context, path string, reader io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	f, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	n, err := io.Copy(f, reader)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("rename %s: %w", path, err)
	}
	return n, nil
}
