// Package txlog gives application code transaction-like semantics over
// mutations to arbitrary in-memory objects by recording every attribute
// change and persistence event in a durable, versioned log.
//
// A Transaction is an ordered sequence of Sections (savepoints). Each
// Section keeps an append-only log of entries plus a write-set view of the
// latest value per attribute. Entries flow through a persistence adapter's
// pending queue and are flushed durably under a transaction-scoped lock, so
// concurrent threads and processes sharing one storage root cannot
// interleave writes inconsistently.
//
// # Quick Start
//
//	ctx := context.Background()
//	mgr, _ := txlog.Open(ctx, func(o *txlog.Options) { o.Path = "./data" })
//
//	tx, _ := mgr.Begin(ctx, "t1")
//	widget := entry.ObjectKey{Class: "Widget", ID: "42"}
//
//	_ = tx.RecordAttributeChange(ctx, widget, "name", "old", "new", "rename")
//	tx.EnqueueForPersisting()
//	_ = mgr.Persist(ctx)
//
// Resuming after a restart rebuilds the sections from storage:
//
//	tx, _ := mgr.Resume(ctx, "t1")
//	v, ok := tx.CurrentValue(widget, "name") // "new", true
//
// # Savepoints
//
//	s2, _ := mgr.OpenSection(ctx, tx)            // savepoint "t1/2"
//	_ = s2.LogAttributeChange(widget, "name", "new", "newer", "rename")
//	_ = tx.RollbackTo(ctx, 1)                    // abandon everything above "t1/1"
//
// # Backends
//
// The file-backed adapter stores one descriptor plus one file per entry
// under <root>/transactions/<id>/<version>/, optionally zstd-compressed.
// adapter.MemoryAdapter keeps everything in memory; adapter/minio stores
// entries in any S3-compatible bucket.
package txlog
