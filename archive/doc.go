// Package archive ships point-in-time ledger snapshots to blob storage.
//
// A snapshot bundles the row store (copied under the exclusive lock) and the
// configuration snapshots of a run directory into one compressed tar stream.
//
// # Built-in Stores
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in memory, for tests
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Stores
//
// Implement the Store interface to support other backends:
//
//	type Store interface {
//	    Create(ctx, name) (WritableBlob, error)
//	    Open(ctx, name) (io.ReadCloser, error)
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package archive
