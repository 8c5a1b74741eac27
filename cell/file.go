//go:build unix

package cell

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/hupe1980/paretodb/internal/mmap"
)

const (
	slotSize    = 64
	fileMagic   = uint64(0x314C4C4543424450) // "PDBCELL1"
	fileVersion = uint32(1)
)

// ErrBadFile is returned when a cell file has an unexpected header.
var ErrBadFile = errors.New("cell: not a cell file")

type backing struct {
	mu     sync.RWMutex // guards closed against in-flight operations
	closed bool
	f      *os.File
	m      *mmap.Mapping
}

func (b *backing) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	err := b.m.Close()
	if cerr := b.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

type fileCell struct {
	name string
	b    *backing
	off  int64
	mu   sync.Mutex // fcntl locks do not exclude goroutines sharing a descriptor
}

// OpenFile maps the cell file at path.
//
// With create the file is truncated and all cells start at zero; otherwise
// the file must already exist and carry a valid header.
func OpenFile(path string, create bool) (*Set, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cell: open %s: %w", path, err)
	}

	n := len(names())
	m, err := mmap.MapShared(f, (n+1)*slotSize)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	header := m.Bytes()[:slotSize]
	if create {
		binary.LittleEndian.PutUint64(header[0:8], fileMagic)
		binary.LittleEndian.PutUint32(header[8:12], fileVersion)
		binary.LittleEndian.PutUint32(header[12:16], uint32(n))
		if err := m.Sync(); err != nil {
			_ = m.Close()
			_ = f.Close()
			return nil, err
		}
	} else if binary.LittleEndian.Uint64(header[0:8]) != fileMagic ||
		binary.LittleEndian.Uint32(header[8:12]) != fileVersion ||
		binary.LittleEndian.Uint32(header[12:16]) != uint32(n) {
		_ = m.Close()
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", ErrBadFile, path)
	}

	b := &backing{f: f, m: m}
	cells := make([]Cell, 0, n)
	for i, name := range names() {
		cells = append(cells, &fileCell{name: name, b: b, off: int64(i+1) * slotSize})
	}

	return newSet(cells, b), nil
}

func (c *fileCell) Name() string { return c.name }

// with runs fn on the cell's value bytes under the cell lock.
func (c *fileCell) with(fn func(v []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.b.mu.RLock()
	defer c.b.mu.RUnlock()
	if c.b.closed {
		return ErrClosed
	}

	fd := int(c.b.f.Fd())
	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: c.off, Len: 8}
	for {
		err := unix.FcntlFlock(uintptr(fd), setLockWait, &lk)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return fmt.Errorf("cell: lock %s: %w", c.name, err)
	}

	v, err := c.b.m.Slot(int(c.off), 8)
	if err == nil {
		fn(v)
	}

	lk.Type = unix.F_UNLCK
	if uerr := unix.FcntlFlock(uintptr(fd), setLock, &lk); uerr != nil && err == nil {
		err = fmt.Errorf("cell: unlock %s: %w", c.name, uerr)
	}
	return err
}

func load(v []byte) int64     { return int64(binary.LittleEndian.Uint64(v)) }
func store(v []byte, x int64) { binary.LittleEndian.PutUint64(v, uint64(x)) }

func (c *fileCell) Get() (int64, error) {
	var x int64
	err := c.with(func(v []byte) { x = load(v) })
	return x, err
}

func (c *fileCell) Set(x int64) error {
	return c.with(func(v []byte) { store(v, x) })
}

func (c *fileCell) Add(delta int64) (int64, error) {
	var x int64
	err := c.with(func(v []byte) {
		x = load(v) + delta
		store(v, x)
	})
	return x, err
}

func (c *fileCell) CheckAndClear() (bool, error) {
	var was bool
	err := c.with(func(v []byte) {
		was = load(v) != 0
		store(v, 0)
	})
	return was, err
}
