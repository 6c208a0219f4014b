// Package storage persists rendered comanda documents (PDF or HTML blobs)
// and streams them back for reprints and downloads.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/delsur/comandero/internal/config"
)

// ErrNotFound is returned when a key has no stored blob.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/blob store. Keys are slash-separated paths like
// "jobs/2026/08/25/<job-id>.pdf".
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes a blob. Deleting a missing key is not an error, so
	// retention sweeps can be re-run safely.
	Delete(ctx context.Context, key string) error
}

// New builds the store named by the configuration: "local" (default) or "s3".
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.LocalPath)
	case "s3":
		return NewS3Store(context.Background(), cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
