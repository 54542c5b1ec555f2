package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.QualityStore = (*QualityCache)(nil)

const (
	qualityPrefix     = "sercha-catalog:dq:"
	defaultQualityTTL = time.Minute
)

// QualityCache memoizes HasTestCaseFailure answers of another QualityStore
// for a short TTL.
type QualityCache struct {
	client *redis.Client
	next   driven.QualityStore
	ttl    time.Duration
	logger *slog.Logger
}

// QualityCacheConfig configures a QualityCache.
type QualityCacheConfig struct {
	TTL    time.Duration // Entry lifetime (default: 1m)
	Logger *slog.Logger
}

// NewQualityCache wraps next with a Redis cache.
func NewQualityCache(client *redis.Client, next driven.QualityStore, cfg QualityCacheConfig) *QualityCache {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultQualityTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &QualityCache{client: client, next: next, ttl: cfg.TTL, logger: cfg.Logger}
}

// HasTestCaseFailure answers from the cache and falls through to the
// backing store on a miss. Cache errors never fail the lookup.
func (c *QualityCache) HasTestCaseFailure(ctx context.Context, fqn string) (bool, error) {
	key := qualityPrefix + fqn
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached == "1", nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("quality cache read failed", "fqn", fqn, "error", err)
	}

	failed, err := c.next.HasTestCaseFailure(ctx, fqn)
	if err != nil {
		return false, err
	}
	value := "0"
	if failed {
		value = "1"
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("quality cache write failed", "fqn", fqn, "error", err)
	}
	return failed, nil
}
