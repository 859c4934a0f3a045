package catalog

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/syftblob/internal/server/metrics"
)

const DefaultCacheSize = 4096

// CachedCatalog memoizes FindByDigest hits. Confirmed objects never change,
// so a hit only goes stale when the object is deleted through this catalog.
type CachedCatalog struct {
	Catalog
	cache *lru.Cache[string, *Object]
}

func NewCachedCatalog(inner Catalog, size int) (*CachedCatalog, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Object](size)
	if err != nil {
		return nil, err
	}
	return &CachedCatalog{Catalog: inner, cache: cache}, nil
}

func digestCacheKey(bucketID, digest string) string {
	return bucketID + "\x00" + digest
}

func (c *CachedCatalog) FindByDigest(ctx context.Context, bucketID, digest string) (*Object, error) {
	key := digestCacheKey(bucketID, digest)
	if obj, ok := c.cache.Get(key); ok {
		metrics.CatalogCache.WithLabelValues("hit").Inc()
		copied := *obj
		return &copied, nil
	}
	metrics.CatalogCache.WithLabelValues("miss").Inc()

	obj, err := c.Catalog.FindByDigest(ctx, bucketID, digest)
	if err != nil {
		return nil, err
	}
	cached := *obj
	c.cache.Add(key, &cached)
	return obj, nil
}

func (c *CachedCatalog) Delete(ctx context.Context, bucketID, id string) (*Object, error) {
	obj, err := c.Catalog.Delete(ctx, bucketID, id)
	if err != nil {
		return nil, err
	}
	c.cache.Remove(digestCacheKey(obj.BucketID, obj.Digest))
	return obj, nil
}

var _ Catalog = (*CachedCatalog)(nil)
