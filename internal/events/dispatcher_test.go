package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/task-manager/internal/domain"
)

func TestDispatcher_PublishInvokesSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []string

	d.Subscribe(func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.TaskID)
		return errors.New("boom")
	}, EventTaskCreated)
	d.Subscribe(func(_ context.Context, e Event) error {
		panic("handler exploded")
	}, EventTaskCreated)
	d.Subscribe(func(_ context.Context, e Event) error {
		seen = append(seen, "third:"+e.TaskID)
		return nil
	}, EventTaskCreated)
	d.Subscribe(func(context.Context, Event) error {
		t.Fatal("unrelated handler invoked")
		return nil
	}, EventTaskDeleted)

	task := &domain.Task{ID: "t1", UserID: "u1"}
	err := d.Publish(context.Background(), NewTaskEvent(EventTaskCreated, task, nil, time.Now()))

	assert.Equal(t, []string{"first:t1", "third:t1"}, seen)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task_created handler: boom")
	assert.Contains(t, err.Error(), "panic: handler exploded")
}

func TestDispatcher_SubscribeAllTaskEvents(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []EventType
	d.Subscribe(func(_ context.Context, e Event) error {
		seen = append(seen, e.Type)
		return nil
	})
	d.Subscribe(nil)

	for _, eventType := range TaskEventTypes {
		require.NoError(t, d.Publish(context.Background(), Event{Type: eventType}))
	}
	assert.Equal(t, TaskEventTypes, seen)
}

func TestDispatcher_StopsOnCancelledContext(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	d.Subscribe(func(context.Context, Event) error {
		calls++
		return nil
	}, EventTaskUpdated)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Publish(ctx, Event{Type: EventTaskUpdated})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTaskUpdated}))
}

func TestNewTaskEvent(t *testing.T) {
	at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	task := &domain.Task{ID: "t1", UserID: "u1"}
	e := NewTaskEvent(EventTaskStatusChanged, task, TaskStatusChangedPayload{
		OldStatus: domain.TaskStatusPending,
		NewStatus: domain.TaskStatusInProgress,
	}, at)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "t1", e.TaskID)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, at, e.Timestamp)
	assert.IsType(t, TaskStatusChangedPayload{}, e.Payload)
}
