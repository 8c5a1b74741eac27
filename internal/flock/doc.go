// Package flock provides an exclusive lock shared by cooperating OS processes.
//
// The lock is an advisory flock(2) on a dedicated lock file. flock locks belong
// to the open file description, so two Lock values opened on the same path
// exclude each other even inside one process, exactly like two processes would.
// A Lock value additionally serializes its own goroutines, because flock on an
// already locked descriptor succeeds.
//
// The kernel drops the lock when the holding process exits, so a crashed worker
// never leaves the ledger locked.
package flock
