package objectstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/objectstore"
)

func TestMemoryStoreWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()

	require.NoError(t, store.Put(ctx, "a/b.json", []byte("one")))
	assert.Error(t, store.Put(ctx, "a/b.json", []byte("two")))

	got, err := store.Get(ctx, "a/b.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	_, err = store.Get(ctx, "a/missing.json")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestFilesystemStore(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "pipelines/run-1/extract.json", []byte("data")))
	assert.Error(t, store.Put(ctx, "pipelines/run-1/extract.json", []byte("other")))

	got, err := store.Get(ctx, "pipelines/run-1/extract.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	_, err = store.Get(ctx, "pipelines/run-1/missing.json")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)

	// Paths may not escape the root.
	assert.Error(t, store.Put(ctx, "../escape.json", []byte("x")))
	assert.Error(t, store.Put(ctx, "/etc/escape.json", []byte("x")))
	_, err = store.Get(ctx, "../escape.json")
	assert.Error(t, err)
}

func TestGetWithRetry(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()

	// The blob lands shortly after the first read attempt.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(200 * time.Millisecond)
		_ = store.Put(context.Background(), "late.json", []byte("late"))
	}()

	got, err := objectstore.GetWithRetry(ctx, store, "late.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), got)
	wg.Wait()

	// A blob that never appears exhausts the retries.
	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = objectstore.GetWithRetry(shortCtx, store, "never.json")
	assert.Error(t, err)
}
