package txlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/txlog/adapter"
	"github.com/hupe1980/txlog/entry"
)

var widget = entry.ObjectKey{Class: "Widget", ID: "42"}

func TestSection_NoOpLaw(t *testing.T) {
	s := newSection("t1", 1, adapter.NewMemoryAdapter())

	require.NoError(t, s.LogAttributeChange(widget, "name", "same", "same", "rename"))
	require.NoError(t, s.LogAttributeChange(widget, "name", nil, nil, "rename"))
	require.Empty(t, s.Entries())

	_, ok := s.ValueFor(widget, "name")
	require.False(t, ok)

	// A nil-to-value transition is a real change.
	require.NoError(t, s.LogAttributeChange(widget, "name", nil, "new", "rename"))
	require.Len(t, s.Entries(), 1)
}

func TestSection_LastWriteWins(t *testing.T) {
	s := newSection("t1", 1, adapter.NewMemoryAdapter())

	require.NoError(t, s.LogAttributeChange(widget, "count", nil, 1, "inc"))
	require.NoError(t, s.LogAttributeChange(widget, "count", 1, 2, "inc"))
	require.NoError(t, s.LogAttributeChange(widget, "count", 2, 3, "inc"))

	// Every transition stays in the log; the write-set keeps only the latest.
	require.Len(t, s.Entries(), 3)
	v, ok := s.ValueFor(widget, "count")
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestSection_ObjectPersistenceMarking(t *testing.T) {
	other := entry.ObjectKey{Class: "Widget", ID: "43"}
	s := newSection("t1", 1, adapter.NewMemoryAdapter())

	require.NoError(t, s.LogAttributeChange(widget, "name", "old", "new", "rename"))
	require.NoError(t, s.LogAttributeChange(other, "name", "old", "new", "rename"))
	require.NoError(t, s.LogObjectPersistence(widget, "save"))
	require.NoError(t, s.LogAttributeChange(widget, "name", "new", "newer", "rename"))

	entries := s.Entries()
	require.Len(t, entries, 4)

	// Entries before the persistence event and targeting the object are
	// marked; the other object's entry and the later change are not.
	require.True(t, entries[0].ObjectPersisted())
	require.False(t, entries[1].ObjectPersisted())
	require.True(t, entries[2].IsObjectPersistence())
	require.False(t, entries[3].ObjectPersisted())

	require.True(t, s.containsPersistenceOf(widget))
	require.False(t, s.containsPersistenceOf(other))
}

func TestSection_EnqueueIdempotence(t *testing.T) {
	a := adapter.NewMemoryAdapter()
	s := newSection("t1", 1, a)

	require.NoError(t, s.LogAttributeChange(widget, "name", "old", "new", "rename"))
	require.NoError(t, s.LogObjectPersistence(widget, "save"))

	s.EnqueueForPersisting()
	s.EnqueueForPersisting()
	require.Equal(t, 2, a.Pending())
}

func TestSection_Resume(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewMemoryAdapter()

	s := newSection("t1", 1, a)
	require.NoError(t, s.LogAttributeChange(widget, "name", "old", "new", "rename"))
	require.NoError(t, s.LogAttributeChange(widget, "name", "new", "newer", "rename"))
	require.NoError(t, s.LogObjectPersistence(widget, "save"))
	require.False(t, s.Persisted())

	s.EnqueueForPersisting()
	require.NoError(t, a.Persist(ctx))

	resumed, err := resumeSection(ctx, "t1", 1, a)
	require.NoError(t, err)
	require.True(t, resumed.Persisted())
	require.Equal(t, "t1/1", resumed.Savepoint())
	require.Len(t, resumed.Entries(), 3)

	// Replay rebuilds the write-set with the latest value per attribute.
	v, ok := resumed.ValueFor(widget, "name")
	require.True(t, ok)
	require.Equal(t, "newer", v)

	// A never-persisted savepoint resumes empty.
	empty, err := resumeSection(ctx, "t1", 9, a)
	require.NoError(t, err)
	require.False(t, empty.Persisted())
	require.Empty(t, empty.Entries())
}
