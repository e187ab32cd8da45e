package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orgfinder/internal/config"
	"orgfinder/internal/model"
)

// missMarker is stored for lookups the provider could not answer
const missMarker = "-"

// Geocoder is the provider interface the cache decorates
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*model.Coordinates, error)
}

// NewRedis creates a Redis client for the shared geocode cache
func NewRedis(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})
}

// RedisCache shares geocoding results across sessions and restarts.
// Provider errors are not cached; a lookup that found nothing is.
type RedisCache struct {
	client *redis.Client
	next   Geocoder
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisCache wraps next with a Redis-backed cache
func NewRedisCache(client *redis.Client, next Geocoder, ttl time.Duration, prefix string, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		client: client,
		next:   next,
		ttl:    ttl,
		prefix: prefix,
		logger: logger.With(zap.String("component", "geocode_cache")),
	}
}

// Ping tests the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisCache) key(query string) string {
	return c.prefix + strings.ToLower(strings.TrimSpace(query))
}

// Geocode implements Geocoder
func (c *RedisCache) Geocode(ctx context.Context, query string) (*model.Coordinates, error) {
	key := c.key(query)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == missMarker {
			return nil, nil
		}
		var coords model.Coordinates
		if err := json.Unmarshal([]byte(val), &coords); err == nil {
			return &coords, nil
		}
		c.logger.Warn("Dropping corrupt cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}

	coords, err := c.next.Geocode(ctx, query)
	if err != nil {
		return nil, err
	}

	value := missMarker
	if coords != nil {
		data, err := json.Marshal(coords)
		if err != nil {
			return coords, nil
		}
		value = string(data)
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return coords, nil
}
