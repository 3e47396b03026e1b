package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/task-manager/internal/config"
)

// ErrRedisNotConfigured is returned when no REDIS_ADDR was supplied.
var ErrRedisNotConfigured = errors.New("redis client not configured")

// Redis holds the client backing the statistics cache.
type Redis struct {
	Client *redis.Client
	cfg    config.RedisConfig
}

// NewRedis builds a client for cfg.Addr. An empty address leaves the client
// nil. An unreachable server is logged but not fatal: the cache degrades to
// recomputing statistics.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not provided; statistics cache disabled")
		return &Redis{cfg: cfg}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable; statistics will be recomputed until it recovers",
			zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return &Redis{Client: client, cfg: cfg}
}

// StatsCache returns the statistics cache over this client, or false when
// Redis is not configured.
func (r *Redis) StatsCache() (*TaskStatsCache, bool) {
	if r == nil || r.Client == nil {
		return nil, false
	}
	return NewTaskStatsCache(r.Client, r.cfg.StatsCacheTTL()), true
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping is used by the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return ErrRedisNotConfigured
	}
	return r.Client.Ping(ctx).Err()
}
