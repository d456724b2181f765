package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localCache 本地缓存实现: bounded LRU with per-entry expiry checked on access
type localCache struct {
	config LocalConfig
	lru    *lru.Cache[string, cacheItem]
	// guards SetNX check-then-add
	mu   sync.Mutex
	stop chan struct{}
	once sync.Once
}

// cacheItem 缓存项
type cacheItem struct {
	value      interface{}
	expiration time.Time
}

func (it cacheItem) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) (Cache, error) {
	l, err := lru.New[string, cacheItem](config.MaxSize)
	if err != nil {
		return nil, err
	}
	lc := &localCache{config: config, lru: l, stop: make(chan struct{})}
	go lc.startCleanup()
	return lc, nil
}

func (lc *localCache) itemFor(value interface{}, expiration time.Duration) cacheItem {
	if expiration == 0 {
		expiration = lc.config.DefaultExpiration
	}
	it := cacheItem{value: value}
	if expiration > 0 {
		it.expiration = time.Now().Add(expiration)
	}
	return it
}

func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	it, ok := lc.lru.Get(key)
	if !ok {
		return nil, false
	}
	if it.expired(time.Now()) {
		lc.lru.Remove(key)
		return nil, false
	}
	return it.value, true
}

func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.lru.Add(key, lc.itemFor(value, expiration))
	return nil
}

func (lc *localCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if it, ok := lc.lru.Peek(key); ok && !it.expired(time.Now()) {
		return false
	}
	lc.lru.Add(key, lc.itemFor(value, expiration))
	return true
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.lru.Remove(key)
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.Get(ctx, key)
	return ok
}

func (lc *localCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	it, ok := lc.lru.Get(key)
	if !ok {
		return nil, 0, false
	}
	now := time.Now()
	if it.expired(now) {
		lc.lru.Remove(key)
		return nil, 0, false
	}
	var ttl time.Duration
	if !it.expiration.IsZero() {
		ttl = it.expiration.Sub(now)
	}
	return it.value, ttl, true
}

func (lc *localCache) Clear(ctx context.Context) error {
	lc.lru.Purge()
	return nil
}

func (lc *localCache) Len() int { return lc.lru.Len() }

func (lc *localCache) Close() error {
	lc.once.Do(func() { close(lc.stop) })
	return nil
}

// startCleanup 定期清理过期项
func (lc *localCache) startCleanup() {
	interval := lc.config.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-lc.stop:
			return
		case <-ticker.C:
			lc.cleanup()
		}
	}
}

func (lc *localCache) cleanup() {
	now := time.Now()
	for _, key := range lc.lru.Keys() {
		if it, ok := lc.lru.Peek(key); ok && it.expired(now) {
			lc.lru.Remove(key)
		}
	}
}
