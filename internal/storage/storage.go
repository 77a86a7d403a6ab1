// Package storage defines the blob store interface used to archive batch
// result files.
package storage

import (
	"context"
	"io"
)

// BlobStore persists one object and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
