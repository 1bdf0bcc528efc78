// Package objectstore abstracts the blob storage that batch checkpoints are
// written to. Paths are opaque slash-separated keys; writes are write-once.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no object exists at the given path.
var ErrNotFound = errors.New("object not found")

// Store is a minimal blob store. Put never overwrites; Get of a missing path
// returns ErrNotFound.
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
}

// Retry parameters for GetWithRetry. Checkpoint blobs can lag their job's
// completion signal, so reads back off and retry before giving up.
const (
	getRetryBase = 500 * time.Millisecond
	getRetryMax  = 5
)

// GetWithRetry reads a path, retrying with exponential backoff on ErrNotFound
// and transient errors.
func GetWithRetry(ctx context.Context, store Store, path string) ([]byte, error) {
	var lastErr error
	delay := getRetryBase
	for attempt := 0; attempt < getRetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		data, err := store.Get(ctx, path)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("reading %s after %d attempts: %w", path, getRetryMax, lastErr)
}
