package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/task-manager/internal/domain"
)

const statsKeyPrefix = "task-manager:stats:"

// TaskStatsCache stores per-user task statistics in Redis as JSON.
type TaskStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTaskStatsCache builds a cache over client. Entries expire after ttl.
func NewTaskStatsCache(client *redis.Client, ttl time.Duration) *TaskStatsCache {
	return &TaskStatsCache{client: client, ttl: ttl}
}

func statsKey(userID string) string {
	return statsKeyPrefix + userID
}

// Get returns the cached statistics; ok is false on a miss.
func (c *TaskStatsCache) Get(ctx context.Context, userID string) (*domain.TaskStatistics, bool, error) {
	raw, err := c.client.Get(ctx, statsKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read stats cache: %w", err)
	}

	var stats domain.TaskStatistics
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false, fmt.Errorf("decode stats cache: %w", err)
	}
	return &stats, true, nil
}

// Set stores stats for userID.
func (c *TaskStatsCache) Set(ctx context.Context, userID string, stats domain.TaskStatistics) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats cache: %w", err)
	}
	if err := c.client.Set(ctx, statsKey(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write stats cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry for userID.
func (c *TaskStatsCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, statsKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate stats cache: %w", err)
	}
	return nil
}
