package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/task-manager/internal/events"
)

// TaskEventService reacts to task events: it records them in the log and
// drops the owner's cached statistics.
type TaskEventService struct {
	dispatcher events.Dispatcher
	stats      StatsCache
	logger     *zap.Logger
}

// NewTaskEventService creates the service.
func NewTaskEventService(dispatcher events.Dispatcher, stats StatsCache, logger *zap.Logger) *TaskEventService {
	if stats == nil {
		stats = NoopStatsCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskEventService{dispatcher: dispatcher, stats: stats, logger: logger}
}

// RegisterHandlers subscribes to every task event.
func (s *TaskEventService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(s.handle)
}

func (s *TaskEventService) handle(ctx context.Context, event events.Event) error {
	s.logger.Info("task event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("task_id", event.TaskID),
		zap.String("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return s.stats.Invalidate(ctx, event.UserID)
}
