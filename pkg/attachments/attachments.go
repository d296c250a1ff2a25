// Package attachments validates uploaded files and defines the blob store
// their bytes are kept in.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// MaxFileSize is the largest accepted upload, in bytes.
const MaxFileSize = 10 * 1024 * 1024

var (
	// ErrTypeNotAllowed is returned for uploads with an unsupported MIME type.
	ErrTypeNotAllowed = errors.New("file type not allowed")

	// ErrTooLarge is returned for uploads over MaxFileSize.
	ErrTooLarge = errors.New("file too large")
)

var allowedTypes = map[string]bool{
	"image/jpeg":    true,
	"image/jpg":     true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,

	"application/pdf": true,
	"text/plain":      true,
	"text/markdown":   true,
	"text/csv":        true,

	"text/html":        true,
	"text/css":         true,
	"text/javascript":  true,
	"application/json": true,
	"application/xml":  true,

	"application/zip": true,
}

// Allowed reports whether mimeType may be uploaded.
func Allowed(mimeType string) bool {
	return allowedTypes[mimeType]
}

// ValidationError is a rejected upload. Its message is safe to show to the
// uploader and it unwraps to ErrTypeNotAllowed or ErrTooLarge.
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

func (e *ValidationError) Unwrap() error { return e.Reason }

// Validate checks an upload's type and size.
func Validate(filename, mimeType string, size int64) error {
	if !Allowed(mimeType) {
		return &ValidationError{Reason: ErrTypeNotAllowed, Detail: fmt.Sprintf("File type %s not allowed", mimeType)}
	}
	if size > MaxFileSize {
		return &ValidationError{Reason: ErrTooLarge, Detail: fmt.Sprintf("File %s exceeds max size of 10MB", filename)}
	}
	return nil
}

// Store keeps attachment bytes. Paths returned by Save are opaque to callers
// and are passed back unchanged to Open and Delete.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (path string, size int64, err error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}
