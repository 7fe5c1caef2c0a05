package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotConfigured is returned when no bucket has been set up for uploads.
var ErrNotConfigured = errors.New("object storage is not configured")

// PutOptions describes a single object upload.
type PutOptions struct {
	ContentType string
	Size        int64
}

// Service stores profile assets in remote object storage.
type Service interface {
	PutObject(ctx context.Context, key string, body io.Reader, opts PutOptions) error
	DeleteObject(ctx context.Context, key string) error
	ObjectURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
