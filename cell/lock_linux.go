//go:build linux

package cell

import "golang.org/x/sys/unix"

// Open file description locks belong to the descriptor, not the process, so
// two Sets opened in one process exclude each other like two processes would.
const (
	setLockWait = unix.F_OFD_SETLKW
	setLock     = unix.F_OFD_SETLK
)
