package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore keeps opaque objects under slash-separated keys. size may be -1
// when unknown.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
