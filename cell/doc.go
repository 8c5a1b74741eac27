// Package cell provides small units of shared mutable state that stay
// consistent across cooperating OS processes.
//
// A Cell holds one int64 and is guarded by its own lock, so unrelated cells
// never contend and no operation ever holds two cell locks at once. Boolean
// flags are cells holding 0 or 1.
//
// # Backends
//
//   - OpenFile: a memory-mapped file with one slot per cell. Every slot has its
//     own byte-range fcntl lock (open-file-description locks on Linux) plus an
//     in-process mutex. All processes mapping the file share the values.
//   - NewMemory: in-process cells for tests and single-process embedding.
//
// # File Layout
//
//	slot 0        header: magic (8 bytes) | version (4 bytes) | cell count (4 bytes)
//	slot 1..n     value (8 bytes, little endian), rest of the slot is padding
//
// Each slot is 64 bytes.
package cell
