package services

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ResolveCache fronts provenance lookups during bulk re-ingestion:
// (sourceType, sourceId) → canonical id. A miss falls through to the
// store; the cache is a read accelerator, never the source of truth.
type ResolveCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, canonicalID string) error
	Close() error
}

// LRUResolveCache is the in-process L1.
type LRUResolveCache struct {
	cache *lru.Cache[string, string]
}

// NewLRUResolveCache builds an L1 cache of the given size.
func NewLRUResolveCache(size int) (*LRUResolveCache, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create LRU cache: %w", err)
	}
	return &LRUResolveCache{cache: cache}, nil
}

func (c *LRUResolveCache) Get(ctx context.Context, key string) (string, bool, error) {
	id, ok := c.cache.Get(key)
	return id, ok, nil
}

func (c *LRUResolveCache) Set(ctx context.Context, key string, canonicalID string) error {
	c.cache.Add(key, canonicalID)
	return nil
}

func (c *LRUResolveCache) Close() error { return nil }

// RedisResolveCache is the shared L2, useful when several workers
// ingest shards of the same sources.
type RedisResolveCache struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisResolveCache connects and pings.
func NewRedisResolveCache(redisURL string, logger *zap.Logger) (*RedisResolveCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisResolveCache{
		client: client,
		logger: logger,
		prefix: "complex_registry:resolve:",
		ttl:    24 * time.Hour,
	}, nil
}

func (c *RedisResolveCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisResolveCache) Set(ctx context.Context, key string, canonicalID string) error {
	if err := c.client.Set(ctx, c.prefix+key, canonicalID, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisResolveCache) Close() error { return c.client.Close() }

// HybridResolveCache chains L1 LRU over L2 Redis. Redis failures are
// logged and absorbed; the L1 keeps serving.
type HybridResolveCache struct {
	l1     *LRUResolveCache
	l2     *RedisResolveCache
	logger *zap.Logger
}

// NewHybridResolveCache combines the two layers.
func NewHybridResolveCache(l1 *LRUResolveCache, l2 *RedisResolveCache, logger *zap.Logger) *HybridResolveCache {
	return &HybridResolveCache{l1: l1, l2: l2, logger: logger}
}

func (c *HybridResolveCache) Get(ctx context.Context, key string) (string, bool, error) {
	if id, ok, _ := c.l1.Get(ctx, key); ok {
		return id, true, nil
	}
	id, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		c.logger.Warn("redis resolve-cache read failed", zap.Error(err))
		return "", false, nil
	}
	if ok {
		_ = c.l1.Set(ctx, key, id)
	}
	return id, ok, nil
}

func (c *HybridResolveCache) Set(ctx context.Context, key string, canonicalID string) error {
	_ = c.l1.Set(ctx, key, canonicalID)
	if err := c.l2.Set(ctx, key, canonicalID); err != nil {
		c.logger.Warn("redis resolve-cache write failed", zap.Error(err))
	}
	return nil
}

func (c *HybridResolveCache) Close() error {
	_ = c.l1.Close()
	return c.l2.Close()
}

var (
	_ ResolveCache = (*LRUResolveCache)(nil)
	_ ResolveCache = (*RedisResolveCache)(nil)
	_ ResolveCache = (*HybridResolveCache)(nil)
)
