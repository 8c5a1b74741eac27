package minio

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paretodb/archive"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	bucket := "test-paretodb"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, fmt.Sprintf("run-%d/", time.Now().UnixNano()))

	w, err := store.Create(ctx, "snapshots/a.tar")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello minio"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = store.Create(ctx, "snapshots/aborted.tar")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/a.tar"}, names)

	r, err := store.Open(ctx, "snapshots/a.tar")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()
	assert.Equal(t, "hello minio", string(data))

	_, err = store.Open(ctx, "snapshots/missing.tar")
	assert.ErrorIs(t, err, archive.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "snapshots/a.tar"))
	require.NoError(t, store.Delete(ctx, "snapshots/a.tar"))
}

func TestStore_Key(t *testing.T) {
	s := NewStore(nil, "bucket", "run-1/")
	assert.Equal(t, "run-1/snapshots/x.tar.zst", s.key("snapshots/x.tar.zst"))
	assert.Equal(t, "run-1", s.key(""))
}
