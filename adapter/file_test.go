package adapter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/txlog/entry"
	"github.com/hupe1980/txlog/internal/fs"
)

var widget = entry.ObjectKey{Class: "Widget", ID: "42"}

func newChange(t *testing.T, txID, savepoint, attribute string, oldValue, newValue any) *entry.Entry {
	t.Helper()
	e, err := entry.NewAttributeChange(txID, savepoint, widget, attribute, oldValue, newValue, "update", false)
	require.NoError(t, err)
	return e
}

func TestFileAdapter_EndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := NewFileAdapter(t.TempDir())
	require.NoError(t, err)

	e := newChange(t, "t1", "t1/1", "name", "old", "new")
	a.Enqueue(e)
	require.Equal(t, 1, a.Pending())

	require.NoError(t, a.Persist(ctx))
	require.Equal(t, 0, a.Pending())
	require.True(t, e.Persisted())

	entries, err := a.LogEntries(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Widget/42/name", entries[0].AttributeKey())
	require.Equal(t, "old", entries[0].OldValue())
	require.Equal(t, "new", entries[0].NewValue())
	require.True(t, entries[0].Persisted())

	infos, err := a.Savepoints(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []SavepointInfo{{TransactionID: "t1", Savepoint: "t1/1", Version: 1}}, infos)

	ids, err := a.TransactionIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, ids)
}

func TestFileAdapter_EmptyQueue(t *testing.T) {
	ctx := context.Background()
	a, err := NewFileAdapter(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, a.Persist(ctx))
	require.Equal(t, 0, a.Pending())
}

func TestFileAdapter_MixedTransactionRejection(t *testing.T) {
	ctx := context.Background()
	a, err := NewFileAdapter(t.TempDir())
	require.NoError(t, err)

	a.Enqueue(
		newChange(t, "A", "A/1", "name", "old", "new"),
		newChange(t, "B", "B/1", "name", "old", "new"),
	)

	err = a.Persist(ctx)
	var mixed *MixedTransactionError
	require.ErrorAs(t, err, &mixed)
	require.ElementsMatch(t, []string{"A", "B"}, mixed.Identifiers)

	// The queue is left untouched.
	require.Equal(t, 2, a.Pending())
}

func TestFileAdapter_ReplayOrder(t *testing.T) {
	ctx := context.Background()
	a, err := NewFileAdapter(t.TempDir())
	require.NoError(t, err)

	a.Enqueue(
		newChange(t, "t1", "t1/1", "count", nil, "1"),
		newChange(t, "t1", "t1/1", "count", "1", "2"),
		newChange(t, "t1", "t1/1", "count", "2", "3"),
	)
	require.NoError(t, a.Persist(ctx))

	entries, err := a.LogEntries(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, want := range []string{"1", "2", "3"} {
		require.Equal(t, want, entries[i].NewValue())
	}
}

func TestFileAdapter_SequenceContinuation(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	a, err := NewFileAdapter(root)
	require.NoError(t, err)
	a.Enqueue(newChange(t, "t1", "t1/1", "name", "old", "new"))
	require.NoError(t, a.Persist(ctx))

	// A second process appending to the same savepoint continues the
	// sequence instead of colliding.
	b, err := NewFileAdapter(root)
	require.NoError(t, err)
	b.Enqueue(newChange(t, "t1", "t1/1", "name", "new", "newer"))
	require.NoError(t, b.Persist(ctx))

	entries, err := b.LogEntries(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "new", entries[0].NewValue())
	require.Equal(t, "newer", entries[1].NewValue())
}

func TestFileAdapter_Compression(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	a, err := NewFileAdapter(root, func(o *FileOptions) {
		o.Compress = true
	})
	require.NoError(t, err)

	a.Enqueue(newChange(t, "t1", "t1/1", "name", "old", "new"))
	require.NoError(t, a.Persist(ctx))

	entries, err := a.LogEntries(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new", entries[0].NewValue())

	// An uncompressed adapter on the same root still reads the entries.
	plain, err := NewFileAdapter(root)
	require.NoError(t, err)
	entries, err = plain.LogEntries(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileAdapter_DecodeError(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	a, err := NewFileAdapter(root)
	require.NoError(t, err)
	a.Enqueue(newChange(t, "t1", "t1/1", "name", "old", "new"))
	require.NoError(t, a.Persist(ctx))

	// Corrupt a stored entry; the load must surface the damage instead of
	// silently reporting an empty log.
	dir := filepath.Join(root, "transactions", "t1", "1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000002.entry"), []byte("not json"), 0o600))

	_, err = a.LogEntries(ctx, "t1", 1)
	var decode *DecodeError
	require.ErrorAs(t, err, &decode)
}

func TestFileAdapter_StorageFailureLeavesRemainderQueued(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	faulty := fs.NewFaultyFS(nil)
	// Writes into the second savepoint's directory fail.
	faulty.AddRule(filepath.Join("t1", "2"), fs.Fault{FailOnWrite: true})

	a, err := NewFileAdapter(root, func(o *FileOptions) {
		o.FileSystem = faulty
	})
	require.NoError(t, err)

	first := newChange(t, "t1", "t1/1", "name", "old", "new")
	second := newChange(t, "t1", "t1/2", "name", "new", "newer")
	a.Enqueue(first, second)

	err = a.Persist(ctx)
	var ioErr *StorageIOError
	require.ErrorAs(t, err, &ioErr)

	// The first entry is durable and gone from the queue; the second stays
	// queued for a later retry.
	require.True(t, first.Persisted())
	require.False(t, second.Persisted())
	require.Equal(t, 1, a.Pending())

	entries, err := a.LogEntries(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileAdapter_Discard(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	a, err := NewFileAdapter(root)
	require.NoError(t, err)

	for _, sp := range []string{"t1/1", "t1/2", "t1/3"} {
		a.Enqueue(newChange(t, "t1", sp, "name", nil, sp))
	}
	require.NoError(t, a.Persist(ctx))

	require.NoError(t, a.Discard(ctx, "t1", 1))

	infos, err := a.Savepoints(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, 1, infos[0].Version)

	entries, err := a.LogEntries(ctx, "t1", 2)
	require.NoError(t, err)
	require.Empty(t, entries)

	// Discarded savepoints are retained, not deleted.
	_, err = os.Stat(filepath.Join(root, "transactions", "t1", "2.discarded"))
	require.NoError(t, err)

	// Discarding with nothing above the target is a no-op.
	require.NoError(t, a.Discard(ctx, "t1", 3))
}

func TestFileAdapter_AbsentTransaction(t *testing.T) {
	ctx := context.Background()
	a, err := NewFileAdapter(t.TempDir())
	require.NoError(t, err)

	infos, err := a.Savepoints(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, infos)

	entries, err := a.LogEntries(ctx, "ghost", 1)
	require.NoError(t, err)
	require.Empty(t, entries)

	ids, err := a.TransactionIdentifiers(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestQueue_EnqueueIdempotence(t *testing.T) {
	var q Queue

	e := newChange(t, "t1", "t1/1", "name", "old", "new")
	q.Enqueue(e)
	q.Enqueue(e)
	require.Equal(t, 1, q.Len())

	// Persisted entries are never re-queued.
	q.Remove(e)
	e.MarkPersisted()
	q.Enqueue(e)
	require.Equal(t, 0, q.Len())
}

func TestSingleTransaction(t *testing.T) {
	a := newChange(t, "A", "A/1", "name", "old", "new")
	b := newChange(t, "B", "B/1", "name", "old", "new")

	id, err := SingleTransaction([]*entry.Entry{a, a})
	require.NoError(t, err)
	require.Equal(t, "A", id)

	_, err = SingleTransaction([]*entry.Entry{a, b})
	var mixed *MixedTransactionError
	require.True(t, errors.As(err, &mixed))
}
