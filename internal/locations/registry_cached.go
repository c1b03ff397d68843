package locations

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

type cachedLookup struct {
	match Match
	ok    bool
}

// CachedRegistry memoizes lookups of a slower registry, misses included.
// Errors are not cached.
type CachedRegistry struct {
	next  Registry
	cache *cache.Cache
}

// NewCachedRegistry wraps next with a TTL cache.
func NewCachedRegistry(next Registry, ttl time.Duration) *CachedRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedRegistry{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedRegistry) Lookup(ctx context.Context, normalized string) (Match, bool, error) {
	if v, found := c.cache.Get(normalized); found {
		hit := v.(cachedLookup)
		return hit.match, hit.ok, nil
	}
	m, ok, err := c.next.Lookup(ctx, normalized)
	if err != nil {
		return Match{}, false, err
	}
	c.cache.SetDefault(normalized, cachedLookup{match: m, ok: ok})
	return m, ok, nil
}

// Len returns the number of cached lookups.
func (c *CachedRegistry) Len() int { return c.cache.ItemCount() }

// Flush empties the cache.
func (c *CachedRegistry) Flush() { c.cache.Flush() }
