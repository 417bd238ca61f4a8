package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "state.db") + "?mode=rwc&_txlock=immediate"
	b, err := NewSQLiteBackend(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()
	b := setupSQLite(t)

	var v map[string]int
	err := b.Load(ctx, "missing", &v)
	require.ErrorIs(t, err, ErrNotFound)

	err = b.Save(ctx,
		Document{Name: "one", Value: map[string]int{"a": 1}},
		Document{Name: "two", Value: map[string]int{"b": 2}},
	)
	require.NoError(t, err)

	require.NoError(t, b.Load(ctx, "one", &v))
	assert.Equal(t, map[string]int{"a": 1}, v)
	v = nil
	require.NoError(t, b.Load(ctx, "two", &v))
	assert.Equal(t, map[string]int{"b": 2}, v)

	// upsert
	require.NoError(t, b.Save(ctx, Document{Name: "one", Value: map[string]int{"c": 3}}))
	v = nil
	require.NoError(t, b.Load(ctx, "one", &v))
	assert.Equal(t, map[string]int{"c": 3}, v)
}

func TestSQLiteBackend_Corrupt(t *testing.T) {
	ctx := context.Background()
	b := setupSQLite(t)

	_, err := b.db.ExecContext(ctx, "INSERT INTO documents (name, value) VALUES (?, ?)", DocSeen, "{oops")
	require.NoError(t, err)

	var v map[string]int64
	err = b.Load(ctx, DocSeen, &v)
	require.ErrorIs(t, err, ErrCorrupt)

	s := LoadSeenSet(ctx, b)
	assert.Equal(t, 0, s.Len())
}

func TestSQLiteBackend_State(t *testing.T) {
	ctx := context.Background()
	b := setupSQLite(t)

	st := LoadState(ctx, b, Limits{}, time.Now())
	st.Seen.Mark("k1", time.Now())
	require.NoError(t, st.SaveAll(ctx, b))

	loaded := LoadState(ctx, b, Limits{}, time.Now())
	assert.True(t, loaded.Seen.Has("k1"))
}

func TestIsLockError(t *testing.T) {
	assert.False(t, isLockError(nil))
	assert.False(t, isLockError(assert.AnError))
	assert.True(t, isLockError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.ErrorIs(t, &criticalError{err: assert.AnError}, errCritical)
	assert.ErrorIs(t, &criticalError{err: assert.AnError}, assert.AnError)
}
