package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of S3 operations used to archive submitted source.
type ObjectStorage interface {
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error
}
