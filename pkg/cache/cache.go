package cache

import (
	"context"
	"time"
)

// Cache 缓存接口
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores value; a zero expiration uses the cache default.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// SetNX stores value only when key is absent or expired. It reports whether it stored.
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) bool

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) bool

	// GetWithTTL 获取值并返回剩余TTL
	GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool)

	Clear(ctx context.Context) error

	Len() int

	Close() error
}

// Config 缓存配置
type Config struct {
	// "local" (bounded LRU), "gocache" or "redis"
	Type  string      `json:"type" env:"CACHE_TYPE" default:"gocache"`
	Local LocalConfig `json:"local"`
	Redis RedisConfig `json:"redis"`
}

// LocalConfig 本地缓存配置
type LocalConfig struct {
	// 最大缓存项数, only honoured by the LRU implementation
	MaxSize int `json:"max_size" env:"LOCAL_CACHE_MAX_SIZE" default:"10000"`

	DefaultExpiration time.Duration `json:"default_expiration" env:"LOCAL_CACHE_DEFAULT_EXPIRATION" default:"10m"`

	// 清理间隔
	CleanupInterval time.Duration `json:"cleanup_interval" env:"LOCAL_CACHE_CLEANUP_INTERVAL" default:"1m"`
}

func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		MaxSize:           10000,
		DefaultExpiration: 10 * time.Minute,
		CleanupInterval:   time.Minute,
	}
}
