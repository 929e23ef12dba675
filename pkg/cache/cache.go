package cache

import (
	"context"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	cache "github.com/go-pkgz/expirable-cache/v3"
)

// Cache caches successful results by URL. Failed results are never cached, so they are retried on the next request.
type Cache[T any] struct {
	cache cache.Cache[string, T]
}

func New[T any](ttl time.Duration, maxKeys int) *Cache[T] {
	c := cache.NewCache[string, T]()
	if ttl > 0 {
		c = c.WithTTL(ttl)
	}
	if maxKeys > 0 {
		c = c.WithMaxKeys(maxKeys).WithLRU()
	}
	return &Cache[T]{cache: c}
}

func (c *Cache[T]) Cached(
	ctx context.Context, url string,
	fetch func(ctx context.Context, url string) (T, error),
) (T, error) {
	if value, ok := c.cache.Get(url); ok {
		logging.L(ctx).Debugf("Got %s from cache.", url)
		return value, nil
	}

	value, err := fetch(ctx, url)
	if err == nil {
		logging.L(ctx).Debugf("Add %s to cache.", url)
		c.cache.Add(url, value)
	}

	return value, err
}

// Cleanup drops all entries except the specified URLs.
func (c *Cache[T]) Cleanup(ctx context.Context, urls map[string]struct{}) {
	c.cache.InvalidateFn(func(url string) bool {
		if _, ok := urls[url]; ok {
			return false
		}

		logging.L(ctx).Debugf("Drop %s from cache.", url)
		return true
	})
}

func (c *Cache[T]) Len() int {
	return c.cache.Len()
}
