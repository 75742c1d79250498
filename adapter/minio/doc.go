// Package minio provides a persistence adapter backed by MinIO or any
// S3-compatible object storage.
//
// Each log entry is stored as one immutable object, each savepoint carries a
// descriptor object, and discovery runs over prefix listings, mirroring the
// file adapter's directory layout:
//
//	<prefix>/transactions/<transaction_identifier>/<savepoint_version>/descriptor.json
//	<prefix>/transactions/<transaction_identifier>/<savepoint_version>/00000001.entry
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ad := minioadapter.New(client, "my-bucket", "txlog/")
//	mgr, err := txlog.Open(ctx, func(o *txlog.Options) { o.Adapter = ad })
//
// # Locking
//
// Object stores offer no advisory locks, so the adapter takes a lock.Manager
// of its own. The default in-process manager covers single-process use; for
// multi-process deployments pass a lock.FileManager rooted on a file system
// all processes share.
package minio
