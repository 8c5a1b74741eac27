// Package minio stores ledger snapshots in MinIO or any other
// S3-compatible service reachable with minio-go.
//
//	client, _ := minio.New("localhost:9000", &minio.Options{
//		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//		Secure: false,
//	})
//	st := paretominio.NewStore(client, "runs", "run-1/")
//	a := archive.New(st)
package minio
