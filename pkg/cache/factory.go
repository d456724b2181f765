package cache

import (
	"fmt"
	"strings"
)

// NewCache 创建缓存实例
func NewCache(config Config) (Cache, error) {
	local := config.Local
	def := DefaultLocalConfig()
	if local.MaxSize <= 0 {
		local.MaxSize = def.MaxSize
	}
	if local.DefaultExpiration <= 0 {
		local.DefaultExpiration = def.DefaultExpiration
	}
	if local.CleanupInterval <= 0 {
		local.CleanupInterval = def.CleanupInterval
	}

	switch strings.ToLower(config.Type) {
	case "", "gocache":
		return NewGoCache(local), nil
	case "local", "lru":
		return NewLocalCache(local)
	case "redis":
		c, err := NewRedisCache(config.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
