// Package local stores attachment bytes on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatmerge/pkg/attachments"
)

// DirName is the uploads directory created inside the dot directory.
const DirName = "uploads"

// Store writes each upload to a uniquely named file under its root.
type Store struct {
	root string
}

var _ attachments.Store = (*Store)(nil)

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Save copies r into a new file that keeps the extension of filename.
func (s *Store) Save(_ context.Context, filename string, r io.Reader) (string, int64, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))

	f, err := os.OpenFile(filepath.Join(s.root, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("creating attachment file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, attachments.MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > attachments.MaxFileSize {
		err = fmt.Errorf("%w: File %s exceeds max size of 10MB", attachments.ErrTooLarge, filename)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, err
	}

	return name, n, nil
}

// Open returns the stored bytes at path.
func (s *Store) Open(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Delete removes the file at path. Missing files are not an error.
func (s *Store) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) resolve(path string) (string, error) {
	if path == "" || filepath.Base(path) != path {
		return "", fmt.Errorf("invalid attachment path %q", path)
	}
	return filepath.Join(s.root, path), nil
}
