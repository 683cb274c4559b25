package feed

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheTTL bounds how stale a cached quote may be before CachedClient
// re-fetches it. Fee computation and feed-method calldata both need a
// reasonably fresh rate, not a byte-for-byte real-time one.
const cacheTTL = 5 * time.Second

type cacheEntry struct {
	data    AssetData
	fetched time.Time
}

// CachedClient wraps a Client with a short-lived LRU cache keyed by pair id,
// so a tick that fires many subscriptions against the same pair (or the fee
// bridge re-reading a chain's symbol rate every loop iteration) doesn't
// re-hit the external feed for each one.
type CachedClient struct {
	inner Client
	cache *lru.Cache[string, cacheEntry]
}

// NewCachedClient wraps inner with an LRU cache of the given size.
func NewCachedClient(inner Client, size int) (*CachedClient, error) {
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &CachedClient{inner: inner, cache: cache}, nil
}

func (c *CachedClient) IsPairExists(ctx context.Context, pairID string) (bool, error) {
	return c.inner.IsPairExists(ctx, pairID)
}

func (c *CachedClient) GetAssetData(ctx context.Context, pairID string) (AssetData, error) {
	if entry, ok := c.cache.Get(pairID); ok && time.Since(entry.fetched) < cacheTTL {
		return entry.data, nil
	}

	data, err := c.inner.GetAssetData(ctx, pairID)
	if err != nil {
		return AssetData{}, err
	}
	c.cache.Add(pairID, cacheEntry{data: data, fetched: time.Now()})
	return data, nil
}
