package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object operations used for report upload and archive download.
type ObjectStorage interface {
	// PutObject uploads sizeBytes bytes from reader. sizeBytes may be -1 when unknown.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// ListObjects lists objects under prefix recursively.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo

	// EnsureBucket creates the bucket if it does not exist.
	EnsureBucket(ctx context.Context, bucket string) error
}

// ObjectInfo describes one listed object or a listing error.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	Err       error
}
