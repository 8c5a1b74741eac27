package archive

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
var ErrNotFound = os.ErrNotExist

// Store is where snapshots are kept. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create starts writing a blob. It becomes visible when the returned
	// blob is closed without error.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Open opens a blob for sequential reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WritableBlob is a blob being written.
type WritableBlob interface {
	io.Writer

	// Close finishes the write and publishes the blob.
	Close() error

	// Abort discards the write. It is a no-op after Close.
	Abort() error
}
