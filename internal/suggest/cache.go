package suggest

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const defaultCacheTTL = 2 * time.Minute

// Cached memoizes a Completer by prompt context for a short TTL, so
// repeated requests for the same surroundings do not hit the provider.
type Cached struct {
	next  Completer
	cache *ttlcache.Cache[string, string]
}

// NewCached wraps next. A ttl of zero uses the default.
func NewCached(next Completer, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &Cached{next: next, cache: c}
}

// Close stops the cache expiration loop.
func (c *Cached) Close() {
	c.cache.Stop()
}

// Complete implements Completer. Errors are not cached.
func (c *Cached) Complete(ctx context.Context, content string, cursor int) (string, error) {
	key := PromptContext(content, cursor)
	if item := c.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	completion, err := c.next.Complete(ctx, content, cursor)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, completion, ttlcache.DefaultTTL)
	return completion, nil
}

// Len returns the number of cached completions.
func (c *Cached) Len() int {
	return c.cache.Len()
}
