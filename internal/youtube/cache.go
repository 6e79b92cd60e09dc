package youtube

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
)

// CacheStats receives hit and miss events from a CachedClient.
type CacheStats interface {
	IncCacheHits()
	IncCacheMisses()
}

// CachedClient serves video and channel lookups by ID from an in-memory
// freecache. Only single-page ID lookups are cached; everything else goes
// straight to the wrapped Client.
type CachedClient struct {
	Client
	cache *freecache.Cache
	ttl   int
	stats CacheStats
}

// NewCachedClient wraps next with a cache of sizeMB megabytes whose entries
// live for ttl. freecache enforces a 512KB minimum.
func NewCachedClient(next Client, sizeMB int, ttl time.Duration, stats CacheStats) *CachedClient {
	return &CachedClient{
		Client: next,
		cache:  freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:    max(int(ttl.Seconds()), 1),
		stats:  stats,
	}
}

func (c *CachedClient) hit() {
	if c.stats != nil {
		c.stats.IncCacheHits()
	}
}

func (c *CachedClient) miss() {
	if c.stats != nil {
		c.stats.IncCacheMisses()
	}
}

// ListVideos answers from the cache when every requested ID is cached.
func (c *CachedClient) ListVideos(ctx context.Context, f VideoFilter, cursor string) (Page[Video], error) {
	if cursor != "" || len(f.IDs) == 0 {
		return c.Client.ListVideos(ctx, f, cursor)
	}
	if items, ok := lookupAll[Video](c, "video:", f.IDs); ok {
		c.hit()
		return Page[Video]{Items: items}, nil
	}
	c.miss()

	page, err := c.Client.ListVideos(ctx, f, cursor)
	if err != nil {
		return page, err
	}
	for _, v := range page.Items {
		store(c, "video:"+v.ID, v)
	}
	return page, nil
}

// ListChannels answers ID lookups from the cache when every ID is cached.
func (c *CachedClient) ListChannels(ctx context.Context, f ChannelFilter, cursor string) (Page[Channel], error) {
	if cursor != "" || len(f.IDs) == 0 {
		return c.Client.ListChannels(ctx, f, cursor)
	}
	if items, ok := lookupAll[Channel](c, "channel:", f.IDs); ok {
		c.hit()
		return Page[Channel]{Items: items}, nil
	}
	c.miss()

	page, err := c.Client.ListChannels(ctx, f, cursor)
	if err != nil {
		return page, err
	}
	for _, ch := range page.Items {
		store(c, "channel:"+ch.ID, ch)
	}
	return page, nil
}

func lookupAll[T any](c *CachedClient, prefix string, ids []string) ([]T, bool) {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		raw, err := c.cache.Get([]byte(prefix + id))
		if err != nil {
			return nil, false
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func store[T any](c *CachedClient, key string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.cache.Set([]byte(key), raw, c.ttl)
}
