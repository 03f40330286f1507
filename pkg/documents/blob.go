// Package documents stores application document blobs.
package documents

import (
	"context"
	"errors"
	"io"
)

var ErrNotExist = errors.New("document does not exist")

// BlobStore is the document storage collaborator. Paths are slash separated
// object keys.
type BlobStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Upload(ctx context.Context, path string, r io.Reader, contentType string) (int64, error)
	Delete(ctx context.Context, path string) error
}
