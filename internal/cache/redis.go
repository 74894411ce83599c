package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// Redis adapts a Redis client to the Cache interface for multi-instance
// deployments. Failures are logged and treated as misses so an unreachable
// Redis never blocks scoring.
type Redis struct {
	client *redis.Client
	log    *logger.Logger
}

var _ Cache = (*Redis)(nil)

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewDefault("cache-redis")
	}
	return &Redis{client: client, log: log}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("redis get failed")
		return nil, false
	}
	return v, true
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("redis set failed")
	}
}

func (c *Redis) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("redis delete failed")
	}
}

func (c *Redis) Keys(ctx context.Context, pattern string) []string {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.log.WithError(err).WithField("pattern", pattern).Warn("redis scan failed")
			return keys
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys
		}
		cursor = next
	}
}
