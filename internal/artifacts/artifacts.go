// Package artifacts stores uploaded source files and rendered reports as
// opaque blobs addressed by slash-separated keys.
package artifacts

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists under a key.
var ErrNotFound = errors.New("artifact not found")

// Content types used by the pipeline.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypePDF  = "application/pdf"
)

// Store is a blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
