package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/task-manager/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTaskCreated         EventType = "task_created"
	EventTaskUpdated         EventType = "task_updated"
	EventTaskStatusChanged   EventType = "task_status_changed"
	EventTaskPriorityChanged EventType = "task_priority_changed"
	EventTaskDeleted         EventType = "task_deleted"
)

// TaskEventTypes lists every task event.
var TaskEventTypes = []EventType{
	EventTaskCreated,
	EventTaskUpdated,
	EventTaskStatusChanged,
	EventTaskPriorityChanged,
	EventTaskDeleted,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewTaskEvent stamps an event for task with a fresh id.
func NewTaskEvent(eventType EventType, task *domain.Task, payload any, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TaskID:    task.ID,
		UserID:    task.UserID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TaskCreatedPayload payload.
type TaskCreatedPayload struct {
	Title    string              `json:"title"`
	Priority domain.TaskPriority `json:"priority"`
	DueDate  *time.Time          `json:"due_date,omitempty"`
}

// TaskUpdatedPayload lists the fields a partial update touched.
type TaskUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// TaskStatusChangedPayload payload.
type TaskStatusChangedPayload struct {
	OldStatus domain.TaskStatus `json:"old_status"`
	NewStatus domain.TaskStatus `json:"new_status"`
}

// TaskPriorityChangedPayload payload.
type TaskPriorityChangedPayload struct {
	OldPriority domain.TaskPriority `json:"old_priority"`
	NewPriority domain.TaskPriority `json:"new_priority"`
}
