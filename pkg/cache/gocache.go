package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper go-cache包装器
type goCacheWrapper struct {
	cache *gocache.Cache
}

// NewGoCache 创建基于go-cache的本地缓存
func NewGoCache(config LocalConfig) Cache {
	return &goCacheWrapper{
		cache: gocache.New(config.DefaultExpiration, config.CleanupInterval),
	}
}

func (gc *goCacheWrapper) Get(ctx context.Context, key string) (interface{}, bool) {
	return gc.cache.Get(key)
}

func (gc *goCacheWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	gc.cache.Set(key, value, ttlOrDefault(expiration))
	return nil
}

// SetNX go-cache Add 在键存在时返回错误
func (gc *goCacheWrapper) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) bool {
	return gc.cache.Add(key, value, ttlOrDefault(expiration)) == nil
}

func (gc *goCacheWrapper) Delete(ctx context.Context, key string) error {
	gc.cache.Delete(key)
	return nil
}

func (gc *goCacheWrapper) Exists(ctx context.Context, key string) bool {
	_, found := gc.cache.Get(key)
	return found
}

func (gc *goCacheWrapper) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	value, expiration, found := gc.cache.GetWithExpiration(key)
	if !found {
		return nil, 0, false
	}
	var ttl time.Duration
	if !expiration.IsZero() {
		ttl = time.Until(expiration)
		if ttl < 0 {
			ttl = 0
		}
	}
	return value, ttl, true
}

func (gc *goCacheWrapper) Clear(ctx context.Context) error {
	gc.cache.Flush()
	return nil
}

func (gc *goCacheWrapper) Len() int { return gc.cache.ItemCount() }

// Close go-cache不需要关闭连接
func (gc *goCacheWrapper) Close() error { return nil }

// go-cache treats 0 as "use default"; keep negative as NoExpiration.
func ttlOrDefault(d time.Duration) time.Duration {
	if d < 0 {
		return gocache.NoExpiration
	}
	if d == 0 {
		return gocache.DefaultExpiration
	}
	return d
}
