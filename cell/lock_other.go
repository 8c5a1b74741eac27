//go:build unix && !linux

package cell

import "golang.org/x/sys/unix"

const (
	setLockWait = unix.F_SETLKW
	setLock     = unix.F_SETLK
)
