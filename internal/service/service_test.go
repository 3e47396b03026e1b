package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/task-manager/internal/domain"
	"github.com/spec-kit/task-manager/internal/events"
	"github.com/spec-kit/task-manager/internal/repository"
	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memoryStatsCache records cache traffic.
type memoryStatsCache struct {
	mu          sync.Mutex
	entries     map[string]domain.TaskStatistics
	hits        int
	invalidated []string
	getErr      error
}

func newMemoryStatsCache() *memoryStatsCache {
	return &memoryStatsCache{entries: make(map[string]domain.TaskStatistics)}
}

func (c *memoryStatsCache) Get(_ context.Context, userID string) (*domain.TaskStatistics, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	stats, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &stats, true, nil
}

func (c *memoryStatsCache) Set(_ context.Context, userID string, stats domain.TaskStatistics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = stats
	return nil
}

func (c *memoryStatsCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

type taskFixture struct {
	svc       *TaskService
	clock     *testClock
	cache     *memoryStatsCache
	published []events.Event
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	f := &taskFixture{clock: newTestClock(), cache: newMemoryStatsCache()}
	store := repository.NewMemoryStoreWithClock(f.clock.Now)

	dispatcher := events.NewInMemoryDispatcher()
	NewTaskEventService(dispatcher, f.cache, nil).RegisterHandlers()
	dispatcher.Subscribe(func(_ context.Context, e events.Event) error {
		f.published = append(f.published, e)
		return nil
	})

	f.svc = NewTaskService(TaskDependencies{
		TaskRepo:   store.Tasks(),
		StatsCache: f.cache,
		Dispatcher: dispatcher,
		Clock:      f.clock.Now,
	})
	return f
}

func (f *taskFixture) create(t *testing.T, userID, title string, priority domain.TaskPriority, due *time.Time) *domain.Task {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), userID, TaskCreateInput{Title: title, Priority: priority, DueDate: due})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return task
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	require.Equal(t, code, de.Code, "error: %v", err)
	return de
}
