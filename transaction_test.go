package txlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/txlog/adapter"
	"github.com/hupe1980/txlog/entry"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := Open(context.Background(), func(o *Options) {
		o.Adapter = adapter.NewMemoryAdapter()
	})
	require.NoError(t, err)
	return m
}

func TestTransaction_VersionMonotonicity(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	tx, err := m.Begin(ctx, "t1")
	require.NoError(t, err)
	require.Nil(t, tx.LastSection())

	for want := 1; want <= 4; want++ {
		s, err := m.OpenSection(ctx, tx)
		require.NoError(t, err)
		require.Equal(t, want, s.Version())
		require.Equal(t, s, tx.LastSection())
	}
	require.Len(t, tx.Sections(), 4)
}

func TestTransaction_ImplicitFirstSection(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	tx, err := m.Begin(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, tx.RecordAttributeChange(ctx, widget, "name", "old", "new", "rename"))
	require.Len(t, tx.Sections(), 1)
	require.Equal(t, 1, tx.LastSection().Version())
}

func TestTransaction_CurrentValueNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	tx, err := m.Begin(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, tx.RecordAttributeChange(ctx, widget, "name", "old", "new", "rename"))
	require.NoError(t, tx.RecordAttributeChange(ctx, widget, "color", nil, "red", "paint"))

	_, err = m.OpenSection(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, tx.RecordAttributeChange(ctx, widget, "name", "new", "newer", "rename"))

	// The newest section wins; untouched attributes fall through to older
	// sections.
	v, ok := tx.CurrentValue(widget, "name")
	require.True(t, ok)
	require.Equal(t, "newer", v)

	v, ok = tx.CurrentValue(widget, "color")
	require.True(t, ok)
	require.Equal(t, "red", v)

	_, ok = tx.CurrentValue(widget, "weight")
	require.False(t, ok)
}

func TestTransaction_IsNewObject(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	tx, err := m.Begin(ctx, "t1")
	require.NoError(t, err)

	require.True(t, tx.IsNewObject(widget))

	// Attribute changes alone do not make an object known.
	require.NoError(t, tx.RecordAttributeChange(ctx, widget, "name", "old", "new", "rename"))
	require.True(t, tx.IsNewObject(widget))

	require.NoError(t, tx.RecordObjectPersistence(ctx, widget, "save"))
	require.False(t, tx.IsNewObject(widget))
}

func TestTransaction_RollbackTo(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	tx, err := m.Begin(ctx, "t1")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := m.OpenSection(ctx, tx)
		require.NoError(t, err)
		require.NoError(t, tx.RecordAttributeChange(ctx, widget, "name", i-1, i, "rename"))
	}
	tx.EnqueueForPersisting()
	require.NoError(t, m.Persist(ctx))

	require.NoError(t, tx.RollbackTo(ctx, 1))
	require.Len(t, tx.Sections(), 1)

	v, ok := tx.CurrentValue(widget, "name")
	require.True(t, ok)
	require.Equal(t, 1, v)

	// The next section continues above the rollback target.
	s, err := m.OpenSection(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, 2, s.Version())

	require.Error(t, tx.RollbackTo(ctx, -1))
}

func TestTransaction_ResumeAfterRollback(t *testing.T) {
	ctx := context.Background()
	mem := adapter.NewMemoryAdapter()

	m, err := Open(ctx, func(o *Options) { o.Adapter = mem })
	require.NoError(t, err)

	tx, err := m.Begin(ctx, "t1")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := m.OpenSection(ctx, tx)
		require.NoError(t, err)
		require.NoError(t, tx.RecordAttributeChange(ctx, widget, "name", i-1, i, "rename"))
	}
	tx.EnqueueForPersisting()
	require.NoError(t, m.Persist(ctx))
	require.NoError(t, tx.RollbackTo(ctx, 1))

	// A second manager on the same store sees only the kept savepoints.
	m2, err := Open(ctx, func(o *Options) { o.Adapter = mem })
	require.NoError(t, err)

	resumed, err := m2.Resume(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, resumed.Sections(), 1)

	v, ok := resumed.CurrentValue(widget, "name")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestTransaction_ObjectKeyRoundTrip(t *testing.T) {
	key, err := entry.ParseObjectKey(widget.String())
	require.NoError(t, err)
	require.Equal(t, widget, key)
}
