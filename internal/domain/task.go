package domain

import (
	"strings"
	"time"
)

// TaskStatus enumerates lifecycle states for tasks.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// TaskStatuses lists every status in declaration order.
var TaskStatuses = []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled}

var statusTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusCancelled, TaskStatusPending},
	TaskStatusCompleted:  nil,
	TaskStatusCancelled:  {TaskStatusPending, TaskStatusInProgress},
}

// ParseTaskStatus accepts a status name in any case. The result never shares
// memory with raw.
func ParseTaskStatus(raw string) (TaskStatus, bool) {
	s := TaskStatus(strings.Clone(strings.ToUpper(strings.TrimSpace(raw))))
	return s, s.Valid()
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Closed reports whether the task no longer counts towards overdue work.
func (s TaskStatus) Closed() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// Transitions returns the statuses reachable from s.
func (s TaskStatus) Transitions() []TaskStatus {
	return append([]TaskStatus(nil), statusTransitions[s]...)
}

// CanTransitionTo reports whether s may move to next. Staying put is always allowed.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TaskPriority enumerates urgency.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

// TaskPriorities lists every priority from least to most urgent.
var TaskPriorities = []TaskPriority{TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent}

// ParseTaskPriority accepts a priority name in any case. The result never
// shares memory with raw.
func ParseTaskPriority(raw string) (TaskPriority, bool) {
	p := TaskPriority(strings.Clone(strings.ToUpper(strings.TrimSpace(raw))))
	return p, p.Valid()
}

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities for display: URGENT first. Unknown values rank 0.
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityUrgent:
		return 1
	case TaskPriorityHigh:
		return 2
	case TaskPriorityMedium:
		return 3
	case TaskPriorityLow:
		return 4
	default:
		return 0
	}
}

// Task is a unit of work owned by a single user.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *time.Time
	Deleted     bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overdue reports whether the task is open and past its due date at now.
func (t *Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && !t.Status.Closed()
}

// TaskStatistics aggregates a user's live tasks.
type TaskStatistics struct {
	Total                int64                  `json:"total_tasks"`
	Completed            int64                  `json:"completed_tasks"`
	Pending              int64                  `json:"pending_tasks"`
	InProgress           int64                  `json:"in_progress_tasks"`
	Cancelled            int64                  `json:"cancelled_tasks"`
	Overdue              int64                  `json:"overdue_tasks"`
	ByStatus             map[TaskStatus]int64   `json:"tasks_by_status"`
	ByPriority           map[TaskPriority]int64 `json:"tasks_by_priority"`
	CompletionPercentage float64                `json:"completion_percentage"`
}

// NewTaskStatistics derives totals from per-status and per-priority counts.
// Missing keys are filled with zero.
func NewTaskStatistics(byStatus map[TaskStatus]int64, byPriority map[TaskPriority]int64, overdue int64) TaskStatistics {
	stats := TaskStatistics{
		Overdue:    overdue,
		ByStatus:   make(map[TaskStatus]int64, len(TaskStatuses)),
		ByPriority: make(map[TaskPriority]int64, len(TaskPriorities)),
	}
	for _, s := range TaskStatuses {
		stats.ByStatus[s] = byStatus[s]
		stats.Total += byStatus[s]
	}
	for _, p := range TaskPriorities {
		stats.ByPriority[p] = byPriority[p]
	}
	stats.Completed = stats.ByStatus[TaskStatusCompleted]
	stats.Pending = stats.ByStatus[TaskStatusPending]
	stats.InProgress = stats.ByStatus[TaskStatusInProgress]
	stats.Cancelled = stats.ByStatus[TaskStatusCancelled]
	if stats.Total > 0 {
		stats.CompletionPercentage = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats
}
