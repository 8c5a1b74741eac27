//go:build unix

package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "shared.shm"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestMapShared_GrowsFile(t *testing.T) {
	f := openTemp(t)

	m, err := MapShared(f, 256)
	require.NoError(t, err)
	defer m.Close()

	fi, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(256), fi.Size())
	assert.Len(t, m.Bytes(), 256)
	assert.Equal(t, 256, m.Size())
}

func TestMapShared_WritesVisibleToSecondMapping(t *testing.T) {
	f := openTemp(t)

	a, err := MapShared(f, 64)
	require.NoError(t, err)
	defer a.Close()

	g, err := os.OpenFile(f.Name(), os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer g.Close()

	b, err := MapShared(g, 64)
	require.NoError(t, err)
	defer b.Close()

	a.Bytes()[7] = 42
	assert.Equal(t, byte(42), b.Bytes()[7])

	require.NoError(t, a.Sync())
	raw, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, byte(42), raw[7])
}

func TestMapShared_InvalidSize(t *testing.T) {
	f := openTemp(t)

	_, err := MapShared(f, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestMapping_Slot(t *testing.T) {
	f := openTemp(t)

	m, err := MapShared(f, 128)
	require.NoError(t, err)

	s, err := m.Slot(64, 8)
	require.NoError(t, err)
	assert.Len(t, s, 8)

	_, err = m.Slot(124, 8)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Nil(t, m.Bytes())
	_, err = m.Slot(0, 8)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Sync(), ErrClosed)
}
