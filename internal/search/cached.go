package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vyuha/orbit/internal/storage"
)

// Cache is the slice of the response store the cached provider needs.
// *storage.Storage satisfies it.
type Cache interface {
	GetSearch(ctx context.Context, key string, maxAge time.Duration) (json.RawMessage, error)
	SaveSearch(ctx context.Context, key string, payload json.RawMessage) error
}

// Cached serves repeated queries from the response store.
type Cached struct {
	inner Provider
	cache Cache
	ttl   time.Duration
}

// NewCached wraps inner. A ttl of zero or less keeps entries forever.
func NewCached(inner Provider, cache Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, cache: cache, ttl: ttl}
}

// Name implements Provider.
func (c *Cached) Name() string { return c.inner.Name() + "+cache" }

// Search implements Provider. Cache failures are logged and bypassed;
// only the inner provider's errors are returned.
func (c *Cached) Search(ctx context.Context, query string, numResults int) ([]Result, error) {
	if numResults <= 0 {
		numResults = DefaultNumResults
	}
	key := cacheKey(query, numResults)

	payload, err := c.cache.GetSearch(ctx, key, c.ttl)
	switch {
	case err == nil:
		var results []Result
		if err := json.Unmarshal(payload, &results); err == nil {
			slog.Debug("search cache hit", "query", query)
			return results, nil
		}
		slog.Warn("search cache entry unreadable", "query", query)
	case !errors.Is(err, storage.ErrNotFound):
		slog.Warn("search cache lookup failed", "query", query, "error", err)
	}

	results, err := c.inner.Search(ctx, query, numResults)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(results); err == nil {
		if err := c.cache.SaveSearch(ctx, key, encoded); err != nil {
			slog.Warn("search cache store failed", "query", query, "error", err)
		}
	}
	return results, nil
}

func cacheKey(query string, n int) string {
	return fmt.Sprintf("%s#%d", storage.NormalizeQuery(query), n)
}
