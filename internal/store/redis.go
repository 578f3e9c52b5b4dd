// redis.go -- go-redis client for exchange result caching.
//
// Authorization codes are single-use at the provider. When the same return leg
// hits us twice (double submit, reload before cookies landed, another instance
// behind the load balancer), the second exchange would fail. Caching the
// backend's response for a few minutes, keyed by a hash of the exchange
// request, lets the duplicate reuse the first result.
//
// This is not session storage: identities still live only in cookies.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resultKeyPrefix = "wx_exchange:"

// NewRedisClient parses redisURL, connects, and pings to verify connectivity.
// Call once at startup; the returned client is safe for concurrent use.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// RedisResultCache stores raw exchange responses with a TTL.
type RedisResultCache struct {
	rdb *redis.Client
}

// NewRedisResultCache wraps an existing client. The caller owns rdb and closes it.
func NewRedisResultCache(rdb *redis.Client) *RedisResultCache {
	return &RedisResultCache{rdb: rdb}
}

// SetResult caches result under key for ttl.
func (s *RedisResultCache) SetResult(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, resultKeyPrefix+key, result, ttl).Err(); err != nil {
		return fmt.Errorf("caching exchange result: %w", err)
	}
	return nil
}

// GetResult returns the cached result for key.
// Returns ErrCacheMiss if the key is absent or expired.
func (s *RedisResultCache) GetResult(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, resultKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("fetching exchange result: %w", err)
	}
	return raw, nil
}

// CheckHealth pings Redis.
func (s *RedisResultCache) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// NoopResultCache is used when REDIS_URL is empty. Every lookup misses and
// writes are dropped, so only in-process deduplication applies.
type NoopResultCache struct{}

func (NoopResultCache) GetResult(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NoopResultCache) SetResult(context.Context, string, []byte, time.Duration) error {
	return nil
}

// CheckHealth always returns ErrCacheDisabled.
func (NoopResultCache) CheckHealth(context.Context) error {
	return ErrCacheDisabled
}
