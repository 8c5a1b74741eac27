//go:build unix

package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrClosed is returned when using a Lock after Close.
	ErrClosed = errors.New("flock: lock is closed")
	// ErrNotHeld is returned by Unlock when the lock is not held.
	ErrNotHeld = errors.New("flock: lock is not held")
)

const (
	minBackoff = time.Millisecond
	maxBackoff = 25 * time.Millisecond
)

// Lock is an exclusive cross-process lock over a lock file.
type Lock struct {
	path string

	// sem serializes goroutines of this process; acquiring it honours ctx.
	sem chan struct{}

	mu   sync.Mutex // protects f and held
	f    *os.File
	held bool
}

// New opens (creating if needed) the lock file at path. The lock is not acquired.
func New(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flock: open %s: %w", path, err)
	}

	return &Lock{
		path: path,
		sem:  make(chan struct{}, 1),
		f:    f,
	}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *Lock) Lock(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	backoff := minBackoff
	for {
		ok, err := l.tryFlock()
		if err != nil {
			<-l.sem
			return err
		}
		if ok {
			return nil
		}

		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			<-l.sem
			return ctx.Err()
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// TryLock acquires the lock without blocking. It reports whether the lock was acquired.
func (l *Lock) TryLock() (bool, error) {
	select {
	case l.sem <- struct{}{}:
	default:
		return false, nil
	}

	ok, err := l.tryFlock()
	if err != nil || !ok {
		<-l.sem
	}
	return ok, err
}

func (l *Lock) tryFlock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return false, ErrClosed
	}

	err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("flock: lock %s: %w", l.path, err)
	}

	l.held = true
	return true, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return ErrNotHeld
	}
	l.held = false
	defer func() { <-l.sem }()

	if l.f == nil {
		return ErrClosed
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("flock: unlock %s: %w", l.path, err)
	}
	return nil
}

// IsHeld reports whether this Lock currently holds the lock.
func (l *Lock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Close releases the lock if held and closes the lock file. Safe to call twice.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	if l.held {
		l.held = false
		<-l.sem
	}
	// Closing the descriptor drops the flock.
	err := l.f.Close()
	l.f = nil
	return err
}
