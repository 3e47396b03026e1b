package service

import (
	"context"

	"github.com/spec-kit/task-manager/internal/domain"
)

// StatsCache stores computed task statistics per user.
type StatsCache interface {
	Get(ctx context.Context, userID string) (*domain.TaskStatistics, bool, error)
	Set(ctx context.Context, userID string, stats domain.TaskStatistics) error
	Invalidate(ctx context.Context, userID string) error
}

// NoopStatsCache never stores anything.
type NoopStatsCache struct{}

func (NoopStatsCache) Get(context.Context, string) (*domain.TaskStatistics, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(context.Context, string, domain.TaskStatistics) error { return nil }

func (NoopStatsCache) Invalidate(context.Context, string) error { return nil }
