// Package mmap provides read-write shared memory mappings of small files.
//
// # Overview
//
// A shared mapping (MAP_SHARED) makes every store to the mapped bytes visible to
// all other processes mapping the same file. paretodb uses this to keep the
// ledger's status flags and counters in one place that the foreground process
// and all worker processes observe.
//
// # Usage
//
//	f, _ := os.OpenFile("status.shm", os.O_RDWR|os.O_CREATE, 0o644)
//	m, err := mmap.MapShared(f, 4096)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // writes go straight to the shared page cache
//
// # Platform Support
//
// Unix only (Linux, macOS, BSD) via mmap(2)/msync(2).
//
// # Thread Safety
//
// The mapping itself does no synchronization. Callers coordinate access to the
// bytes (paretodb uses byte-range file locks per slot). Close is idempotent.
package mmap
