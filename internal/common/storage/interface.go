package storage

import (
	"context"
	"io"
)

// ObjectStorage is the object store holding reference suites.
type ObjectStorage interface {
	// GetObject opens a reader for an object. Caller must close it.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)

	// ListObjects streams the keys under prefix.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}

// ObjectInfo is one listed object, or a listing error.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	Err       error
}
