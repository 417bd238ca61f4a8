package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/lotwatch/pkg/domain"
)

func TestFileBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	b := NewFileBackend(dir)

	var v map[string]int
	err := b.Load(ctx, "missing", &v)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Save(ctx, Document{Name: "doc", Value: map[string]int{"a": 1}}))
	require.NoError(t, b.Load(ctx, "doc", &v))
	assert.Equal(t, map[string]int{"a": 1}, v)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.json", entries[0].Name())

	// replace existing document
	require.NoError(t, b.Save(ctx, Document{Name: "doc", Value: map[string]int{"b": 2}}))
	v = nil
	require.NoError(t, b.Load(ctx, "doc", &v))
	assert.Equal(t, map[string]int{"b": 2}, v)
}

func TestFileBackend_Corrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocSeen+".json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocDeferred+".json"), []byte(`[1,2,3]`), 0o600))
	b := NewFileBackend(dir)

	var v map[string]int64
	err := b.Load(ctx, DocSeen, &v)
	require.ErrorIs(t, err, ErrCorrupt)

	st := LoadState(ctx, b, Limits{}, time.Now())
	assert.Equal(t, 0, st.Seen.Len())
	assert.Equal(t, 0, st.Deferred.Len())
	assert.Equal(t, 0, st.Sellers.Len())
	assert.Equal(t, 0, st.ShortURLs.Len())
}

func TestState_SaveAllAndCaches(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := NewFileBackend(dir)
	now := time.Now()

	st := LoadState(ctx, b, Limits{}, time.Now())
	st.Seen.Mark("k1", now)
	st.Sellers.Put("https://site/x/1", "alice", now)
	st.ShortURLs.Shorten("https://site/x/1", now)
	st.Deferred.Enqueue(domain.Item{Title: "t", URL: "https://site/x/2", Category: domain.CategoryAuction}, now)

	require.NoError(t, st.SaveCaches(ctx, b))
	_, err := os.Stat(filepath.Join(dir, DocSeen+".json"))
	assert.True(t, os.IsNotExist(err), "seen-set is not written by SaveCaches")
	_, err = os.Stat(filepath.Join(dir, DocSellers+".json"))
	require.NoError(t, err)

	require.NoError(t, st.SaveAll(ctx, b))
	loaded := LoadState(ctx, b, Limits{}, time.Now())
	assert.True(t, loaded.Seen.Has("k1"))
	seller, ok := loaded.Sellers.Get("https://site/x/1")
	assert.True(t, ok)
	assert.Equal(t, "alice", seller)
	assert.Equal(t, 1, loaded.ShortURLs.Len())
	require.Equal(t, 1, loaded.Deferred.CategoryLen(domain.CategoryAuction))
	assert.Equal(t, "https://site/x/2", loaded.Deferred.Items()[0].Item.URL)
}

func TestLoadDeferralQueue_MissingQueueTime(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	doc := `{"listing":[{"item":{"title":"t","url":"https://site/x/1","category":"listing"}},` +
		`{"item":{"title":"u","url":"https://site/x/2","category":"listing"},"queued_at":"2025-03-01T03:00:00Z"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocDeferred+".json"), []byte(doc), 0o600))

	loadedAt := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	q := LoadDeferralQueue(ctx, NewFileBackend(dir), 10, loadedAt)
	require.Equal(t, 2, q.Len())
	items := q.Items()
	assert.Equal(t, loadedAt, items[0].QueuedAt, "missing queue time set to load time")
	assert.Equal(t, time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC), items[1].QueuedAt.UTC())

	oldest, ok := q.Oldest()
	require.True(t, ok)
	assert.False(t, oldest.IsZero())
}
