package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/orbit/internal/storage"
)

type countingProvider struct {
	calls   int
	results []Result
	err     error
}

func (p *countingProvider) Name() string { return "fake" }

func (p *countingProvider) Search(ctx context.Context, query string, n int) ([]Result, error) {
	p.calls++
	return p.results, p.err
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]json.RawMessage
}

func (c *memCache) GetSearch(ctx context.Context, key string, maxAge time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (c *memCache) SaveSearch(ctx context.Context, key string, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]json.RawMessage{}
	}
	c.entries[key] = payload
	return nil
}

func TestCached(t *testing.T) {
	ctx := context.Background()

	t.Run("second identical query is served from cache", func(t *testing.T) {
		inner := &countingProvider{results: []Result{{Title: "a", URL: "https://a.io"}}}
		c := NewCached(inner, &memCache{}, time.Hour)

		first, err := c.Search(ctx, "Rust  async", 5)
		require.NoError(t, err)
		second, err := c.Search(ctx, "rust async", 5)
		require.NoError(t, err)

		assert.Equal(t, 1, inner.calls)
		assert.Equal(t, first, second)
		assert.Equal(t, "fake+cache", c.Name())
	})

	t.Run("result count is part of the key", func(t *testing.T) {
		inner := &countingProvider{}
		c := NewCached(inner, &memCache{}, time.Hour)

		c.Search(ctx, "q", 5)
		c.Search(ctx, "q", 8)

		assert.Equal(t, 2, inner.calls)
	})

	t.Run("provider errors are not cached", func(t *testing.T) {
		inner := &countingProvider{err: errors.New("boom")}
		cache := &memCache{}
		c := NewCached(inner, cache, time.Hour)

		_, err := c.Search(ctx, "q", 5)

		assert.EqualError(t, err, "boom")
		assert.Empty(t, cache.entries)
	})

	t.Run("works against the sqlite store", func(t *testing.T) {
		store, err := storage.New(t.TempDir() + "/cache.db")
		require.NoError(t, err)
		defer store.Close()
		inner := &countingProvider{results: []Result{{Title: "t", Domain: "d.io"}}}
		c := NewCached(inner, store, time.Hour)

		_, err = c.Search(ctx, "q", 0)
		require.NoError(t, err)
		got, err := c.Search(ctx, "q", DefaultNumResults)
		require.NoError(t, err)

		assert.Equal(t, 1, inner.calls)
		assert.Equal(t, inner.results, got)
	})
}
