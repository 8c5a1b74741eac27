// Package s3 stores ledger snapshots in Amazon S3.
//
// Uploads stream through the SDK's multipart upload manager, so a snapshot
// never has to fit in memory.
//
//	st, err := s3.New(ctx, "my-bucket", "paretodb/")
//	a := archive.New(st)
package s3
