//go:build unix

package mmap

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Mapping is a read-write shared mapping of the first Size bytes of a file.
// It owns the mapped byte slice and is responsible for unmapping it.
type Mapping struct {
	data   []byte
	size   int
	closed atomic.Bool
	// unmap is the platform-specific function to unmap the memory.
	unmap func([]byte) error
}

// MapShared maps the first size bytes of f read-write and shared.
//
// The file is grown to size if it is shorter. The mapping stays valid after f
// is closed.
func MapShared(f *os.File, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("mmap: grow %s: %w", f.Name(), err)
		}
	}

	data, unmapFunc, err := osMapShared(f, size)
	if err != nil {
		return nil, fmt.Errorf("mmap: map %s: %w", f.Name(), err)
	}

	return &Mapping{
		data:  data,
		size:  size,
		unmap: unmapFunc,
	}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	if m.unmap != nil && m.data != nil {
		err := m.unmap(m.data)
		m.data = nil
		return err
	}
	return nil
}

// Bytes returns the mapped byte slice.
// Warning: The slice is valid only until Close() is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Slot returns the n bytes starting at off.
func (m *Mapping) Slot(off, n int) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 || off+n > len(m.data) {
		return nil, ErrOutOfBounds
	}
	return m.data[off : off+n : off+n], nil
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Sync flushes the mapping to the backing file.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osSync(m.data)
}
