package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "orbit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbit.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening must not reapply anything.
	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, len(Migrations), n)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "graph neural networks", NormalizeQuery("  Graph\tNeural   NETWORKS \n"))
	assert.Equal(t, "", NormalizeQuery("   "))
}

func TestSearchCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss returns ErrNotFound", func(t *testing.T) {
		s := newTestStorage(t)

		_, err := s.GetSearch(ctx, "nothing", time.Hour)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("hit ignores case and spacing", func(t *testing.T) {
		s := newTestStorage(t)
		payload := json.RawMessage(`[{"title":"a"}]`)
		require.NoError(t, s.SaveSearch(ctx, "Go  Generics", payload))

		got, err := s.GetSearch(ctx, "go generics", time.Hour)

		require.NoError(t, err)
		assert.JSONEq(t, string(payload), string(got))
	})

	t.Run("expired entries miss", func(t *testing.T) {
		s := newTestStorage(t)
		clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return clock }
		require.NoError(t, s.SaveSearch(ctx, "q", json.RawMessage(`[]`)))

		clock = clock.Add(2 * time.Hour)

		_, err := s.GetSearch(ctx, "q", time.Hour)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetSearch(ctx, "q", 0)
		assert.NoError(t, err)
	})

	t.Run("purge removes old rows", func(t *testing.T) {
		s := newTestStorage(t)
		clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return clock }
		require.NoError(t, s.SaveSearch(ctx, "old", json.RawMessage(`[]`)))
		clock = clock.Add(time.Hour)
		require.NoError(t, s.SaveSearch(ctx, "new", json.RawMessage(`[]`)))

		n, err := s.PurgeSearchesBefore(ctx, clock.Add(-time.Minute))

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = s.GetSearch(ctx, "old", 0)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetSearch(ctx, "new", 0)
		assert.NoError(t, err)
	})
}

func TestAnalyses(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetAnalysis(ctx, "abc")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveAnalysis(ctx, &Analysis{
		Checksum:  "abc",
		Name:      "notes.md",
		Hierarchy: json.RawMessage(`{"layer1":["x"],"layer2":[],"layer3":[]}`),
	}))

	a, err := s.GetAnalysis(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "notes.md", a.Name)
	assert.JSONEq(t, `{"layer1":["x"],"layer2":[],"layer3":[]}`, string(a.Hierarchy))
	assert.False(t, a.CreatedAt.IsZero())
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Searches)
	assert.Nil(t, stats.OldestSearch)
	assert.Equal(t, SchemaVersion, stats.SchemaVersion)

	require.NoError(t, s.SaveSearch(ctx, "a", json.RawMessage(`[]`)))
	require.NoError(t, s.SaveSearch(ctx, "b", json.RawMessage(`[]`)))
	require.NoError(t, s.SaveAnalysis(ctx, &Analysis{Checksum: "c", Hierarchy: json.RawMessage(`{}`)}))

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Searches)
	assert.Equal(t, 1, stats.Analyses)
	assert.NotNil(t, stats.OldestSearch)
}
