//go:build unix

package flock

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLock(t *testing.T, path string) *Lock {
	t.Helper()
	l, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLock_ExcludesSecondDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db.lock")
	a := newLock(t, path)
	b := newLock(t, path)

	require.NoError(t, a.Lock(context.Background()))
	assert.True(t, a.IsHeld())

	ok, err := b.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock())

	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock())
}

func TestLock_ContextCancelWhileWaiting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db.lock")
	a := newLock(t, path)
	b := newLock(t, path)

	require.NoError(t, a.Lock(context.Background()))
	defer a.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, b.IsHeld())
}

func TestLock_SerializesGoroutines(t *testing.T) {
	l := newLock(t, filepath.Join(t.TempDir(), "x.lock"))

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Lock(context.Background()))
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, l.Unlock())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLock_UnlockNotHeld(t *testing.T) {
	l := newLock(t, filepath.Join(t.TempDir(), "x.lock"))
	assert.ErrorIs(t, l.Unlock(), ErrNotHeld)
}

func TestLock_CloseReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	a, err := New(path)
	require.NoError(t, err)
	b := newLock(t, path)

	require.NoError(t, a.Lock(context.Background()))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	ok, err := b.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock())

	assert.ErrorIs(t, a.Lock(context.Background()), ErrClosed)
}
