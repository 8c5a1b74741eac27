// Package rowstore is the transactional table the ledger keeps its rows in.
//
// A Store holds one table whose rows are addressed by a dense, 1-based row id
// assigned on insert. Writers that must be atomic against other writers take
// the store's exclusive lock with Lock, issue their reads and writes through
// the returned Section, Commit, and Release. Release always unlocks and rolls
// back anything not committed, so a section abandoned half way leaves the
// table as it was.
//
// # Backends
//
//   - SQLiteStore: a single sqlite file (modernc.org/sqlite, no cgo). The
//     exclusive lock is an flock on "<path>.lock" held around an IMMEDIATE
//     transaction, so it excludes writers in other OS processes.
//   - MemoryStore: an in-process table with the same semantics, for tests.
//
// Missing reals are stored as NULL and surface as NaN.
package rowstore
