// Package storage defines where run reports are written. Implementations live
// in the local, gcs and memory subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore writes an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
