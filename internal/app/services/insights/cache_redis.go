package insights

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chainsight-labs/chainsight/internal/app/domain/insight"
	"github.com/chainsight-labs/chainsight/pkg/logger"
)

const (
	cacheKey = "chainsight:insights:summary"

	// DefaultCacheTTL keeps provider results warm between dashboard
	// refreshes without serving stale analytics for long.
	DefaultCacheTTL = 5 * time.Minute
)

// RedisCache stores the most recent provider summary in Redis. Cache
// failures are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.NewDefault("insights-cache")
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached summary if present and decodable.
func (c *RedisCache) Get(ctx context.Context) (insight.Summary, bool) {
	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("insights cache read failed")
		}
		return insight.Summary{}, false
	}

	var summary insight.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		c.log.WithError(err).Warn("insights cache entry corrupt, ignoring")
		return insight.Summary{}, false
	}
	normalize(&summary)
	return summary, true
}

// Set stores the summary for the configured TTL.
func (c *RedisCache) Set(ctx context.Context, summary insight.Summary) {
	data, err := json.Marshal(summary)
	if err != nil {
		c.log.WithError(err).Warn("insights cache encode failed")
		return
	}
	if err := c.client.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("insights cache write failed")
	}
}
