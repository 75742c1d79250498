package minio

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/txlog/entry"
)

// TestAdapter_Integration requires a running MinIO instance.
// Skip if not available.
func TestAdapter_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-txlog"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	// A unique prefix per run keeps repeated test invocations independent.
	prefix := fmt.Sprintf("test-%d/", time.Now().UnixNano())
	a := New(client, bucket, prefix)

	widget := entry.ObjectKey{Class: "Widget", ID: "42"}
	txID := "t1"

	change := func(savepoint string, oldValue, newValue any) *entry.Entry {
		e, err := entry.NewAttributeChange(txID, savepoint, widget, "name", oldValue, newValue, "update", false)
		require.NoError(t, err)
		return e
	}

	// Persist two savepoints
	a.Enqueue(
		change("t1/1", "old", "new"),
		change("t1/1", "new", "newer"),
		change("t1/2", "newer", "newest"),
	)
	require.NoError(t, a.Persist(ctx))
	require.Equal(t, 0, a.Pending())

	// Savepoints in version order
	infos, err := a.Savepoints(ctx, txID)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "t1/1", infos[0].Savepoint)
	require.Equal(t, 2, infos[1].Version)

	// Replay preserves write order
	entries, err := a.LogEntries(ctx, txID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "new", entries[0].NewValue())
	require.Equal(t, "newer", entries[1].NewValue())
	require.True(t, entries[0].Persisted())

	// Appending continues the sequence
	a.Enqueue(change("t1/1", "newer", "again"))
	require.NoError(t, a.Persist(ctx))
	entries, err = a.LogEntries(ctx, txID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "again", entries[2].NewValue())

	// Transaction enumeration
	ids, err := a.TransactionIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{txID}, ids)

	// Discard hides savepoint 2 without deleting its objects
	require.NoError(t, a.Discard(ctx, txID, 1))

	infos, err = a.Savepoints(ctx, txID)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	entries, err = a.LogEntries(ctx, txID, 2)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = client.StatObject(ctx, bucket, prefix+"transactions/t1/2/00000001.entry", minio.StatObjectOptions{})
	require.NoError(t, err)
}
