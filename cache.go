package hgt

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// A Cache memoizes computed elevations. It is an accelerator only: a failing
// cache never fails a query.
type Cache interface {
	Get(ctx context.Context, key string) (float64, bool, error)
	Set(ctx context.Context, key string, value float64) error
}

// CacheKey returns the cache key for an elevation computed from ref at the
// raw fractional position fracRow, fracCol with method. The tile version is
// part of the key so replacing a tile in the archive never serves values
// computed from the old file.
func CacheKey(ref TileRef, fracRow, fracCol float64, method Method) string {
	var sb strings.Builder
	sb.WriteString(ref.Filename)
	if ref.Version != "" {
		sb.WriteByte('@')
		sb.WriteString(ref.Version)
	}
	sb.WriteByte('_')
	sb.WriteString(formatValue(fracRow))
	sb.WriteByte('_')
	sb.WriteString(formatValue(fracCol))
	sb.WriteByte('_')
	sb.WriteString(method.String())
	return sb.String()
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}

func parseValue(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// An LRUCache is an in-process Cache.
type LRUCache struct {
	cache *lru.Cache[string, string]
}

// NewLRUCache returns a new LRUCache holding at most size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{
		cache: cache,
	}, nil
}

func (c *LRUCache) Get(ctx context.Context, key string) (float64, bool, error) {
	s, ok := c.cache.Get(key)
	if !ok {
		return 0, false, nil
	}
	value, err := parseValue(s)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (c *LRUCache) Set(ctx context.Context, key string, value float64) error {
	c.cache.Add(key, formatValue(value))
	return nil
}

// Len returns the number of entries in c.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// A RedisCache is a Cache backed by a Redis server. Values are stored as
// text.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// A RedisCacheOption sets an option on a RedisCache.
type RedisCacheOption func(*RedisCache)

// NewRedisCache returns a new RedisCache using client. The client is owned by
// the caller.
func NewRedisCache(client redis.UniversalClient, options ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// WithKeyPrefix prefixes every key with prefix.
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// WithTTL sets the expiry of new entries. Zero, the default, means entries
// never expire and are only removed by the server's eviction policy.
func WithTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (float64, bool, error) {
	switch s, err := c.client.Get(ctx, c.prefix+key).Result(); {
	case errors.Is(err, redis.Nil):
		return 0, false, nil
	case err != nil:
		return 0, false, errors.Wrap(err, "redis get")
	default:
		value, err := parseValue(s)
		if err != nil {
			return 0, false, errors.Wrapf(err, "redis get %q", key)
		}
		return value, true, nil
	}
}

func (c *RedisCache) Set(ctx context.Context, key string, value float64) error {
	if err := c.client.Set(ctx, c.prefix+key, formatValue(value), c.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}
