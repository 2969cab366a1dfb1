package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imgen"
)

// RedisConfig configures the optional shared cache tier.
type RedisConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultRedisConfig returns defaults matching a local Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:    "localhost:6379",
		TTL:     1 * time.Hour,
		Timeout: 2 * time.Second,
	}
}

// RedisCache layers a best-effort Redis tier over a local ResultCache.
// Local stays authoritative: Redis errors read as misses and writes are
// fire-and-forget. A populated Redis lets a fresh process reuse results
// from before a restart, but nothing depends on that surviving.
type RedisCache struct {
	local  *ResultCache
	client *redis.Client
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedis wraps local with a Redis tier.
func NewRedis(local *ResultCache, cfg RedisConfig, logger *zap.Logger) *RedisCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRedisConfig().TTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRedisConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisCache{local: local, client: client, cfg: cfg, logger: logger}
}

// Get checks the local tier first, then Redis. A Redis hit is promoted
// into the local tier.
func (c *RedisCache) Get(req *imgen.GenerationRequest) (*imgen.GenerationResult, bool) {
	if result, ok := c.local.Get(req); ok {
		return result, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	fp := imgen.Fingerprint(req)
	data, err := c.client.Get(ctx, fp).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("redis cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var result imgen.GenerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("discarding undecodable redis cache entry",
			zap.String("fingerprint", fp), zap.Error(err))
		return nil, false
	}

	c.local.Set(req, &result)
	return &result, true
}

// Set writes through to both tiers.
func (c *RedisCache) Set(req *imgen.GenerationRequest, result *imgen.GenerationResult) {
	c.local.Set(req, result)
	if result == nil || !result.Success {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("failed to encode result for redis cache", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	if err := c.client.Set(ctx, imgen.Fingerprint(req), data, c.cfg.TTL).Err(); err != nil {
		c.logger.Debug("redis cache write failed", zap.Error(err))
	}
}

// Stats exposes the local tier's counters.
func (c *RedisCache) Stats() Stats { return c.local.Stats() }

// HitRate exposes the local tier's hit rate.
func (c *RedisCache) HitRate() float64 { return c.local.HitRate() }

// FormattedUsage exposes the local tier's footprint.
func (c *RedisCache) FormattedUsage() string { return c.local.FormattedUsage() }

// Close releases the Redis client.
func (c *RedisCache) Close() error { return c.client.Close() }
