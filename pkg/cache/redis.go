package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig Redis缓存配置
type RedisConfig struct {
	Addr        string        `json:"addr" env:"REDIS_ADDR"`
	Password    string        `json:"password" env:"REDIS_PASSWORD"`
	DB          int           `json:"db" env:"REDIS_DB"`
	PoolSize    int           `json:"pool_size"`
	DialTimeout time.Duration `json:"dial_timeout"`
	// Prefix namespaces every key so several deployments can share one database.
	Prefix string `json:"prefix"`
}

// redisCache Redis缓存实现. Values are stored as JSON, so a time.Time reads back as its RFC 3339 string.
type redisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache 创建Redis缓存
func NewRedisCache(config RedisConfig) (Cache, error) {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		PoolSize:    config.PoolSize,
		DialTimeout: config.DialTimeout,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisCache{client: client, prefix: config.Prefix}, nil
}

func (rc *redisCache) key(k string) string { return rc.prefix + k }

func (rc *redisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	raw, err := rc.client.Get(ctx, rc.key(key)).Result()
	if err != nil {
		return nil, false
	}
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw, true
	}
	return value, true
}

func (rc *redisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return rc.client.Set(ctx, rc.key(key), data, redisTTL(expiration)).Err()
}

func (rc *redisCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	ok, err := rc.client.SetNX(ctx, rc.key(key), data, redisTTL(expiration)).Result()
	return err == nil && ok
}

func (rc *redisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, rc.key(key)).Err()
}

func (rc *redisCache) Exists(ctx context.Context, key string) bool {
	return rc.client.Exists(ctx, rc.key(key)).Val() > 0
}

// GetWithTTL 获取值并返回剩余TTL
func (rc *redisCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	value, ok := rc.Get(ctx, key)
	if !ok {
		return nil, 0, false
	}
	ttl, err := rc.client.TTL(ctx, rc.key(key)).Result()
	if err != nil || ttl < 0 {
		return value, 0, true
	}
	return value, ttl, true
}

// Clear removes only this cache's keys when a prefix is set, else flushes the database.
func (rc *redisCache) Clear(ctx context.Context) error {
	if rc.prefix == "" {
		return rc.client.FlushDB(ctx).Err()
	}
	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (rc *redisCache) Len() int {
	n, err := rc.client.DBSize(context.Background()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close 关闭缓存连接
func (rc *redisCache) Close() error {
	return rc.client.Close()
}

// zero means the default here too; redis itself treats 0 as no expiry.
func redisTTL(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultLocalConfig().DefaultExpiration
	}
	if d < 0 {
		return 0
	}
	return d
}
