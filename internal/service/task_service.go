package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/task-manager/internal/domain"
	"github.com/spec-kit/task-manager/internal/events"
	"github.com/spec-kit/task-manager/internal/repository"
	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

const (
	maxTitleLength       = 255
	maxDescriptionLength = 1000
)

// TaskService coordinates task workflows. Every operation is scoped to the
// owning user's id; tasks of other users behave as if they did not exist.
type TaskService struct {
	tasks      repository.TaskRepository
	stats      StatsCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TaskDependencies bundles collaborators for the task service.
type TaskDependencies struct {
	TaskRepo   repository.TaskRepository
	StatsCache StatsCache
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// TaskCreateInput describes task creation payload.
type TaskCreateInput struct {
	Title       string
	Description string
	Priority    domain.TaskPriority
	DueDate     *time.Time
}

// TaskUpdateInput describes a partial update. Nil fields are left unchanged.
type TaskUpdateInput struct {
	Title        *string
	Description  *string
	Status       *domain.TaskStatus
	Priority     *domain.TaskPriority
	DueDate      *time.Time
	ClearDueDate bool
	// Version, when set, must match the stored version.
	Version *int64
}

// TaskListQuery filters ListTasks.
type TaskListQuery struct {
	Statuses   []domain.TaskStatus
	Priorities []domain.TaskPriority
	Limit      int
	Offset     int
}

// NewTaskService constructs the service.
func NewTaskService(deps TaskDependencies) *TaskService {
	svc := &TaskService{
		tasks:      deps.TaskRepo,
		stats:      deps.StatsCache,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Clock,
	}
	if svc.stats == nil {
		svc.stats = NoopStatsCache{}
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// CreateTask stores a new PENDING task for userID.
func (s *TaskService) CreateTask(ctx context.Context, userID string, input TaskCreateInput) (*domain.Task, error) {
	details := map[string]any{}
	title := strings.TrimSpace(input.Title)
	validateTitle(title, details)
	validateDescription(input.Description, details)
	if input.Priority == "" {
		details["priority"] = "priority is required"
	} else if !input.Priority.Valid() {
		details["priority"] = fmt.Sprintf("unknown priority %q", input.Priority)
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid task", details)
	}

	task := &domain.Task{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TaskStatusPending,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, mapRepoError(err, "")
	}

	s.publish(ctx, events.EventTaskCreated, task, events.TaskCreatedPayload{
		Title:    task.Title,
		Priority: task.Priority,
		DueDate:  task.DueDate,
	})
	return task, nil
}

// GetTask fetches one live task owned by userID. Ids that are not UUIDs
// cannot exist and report not found without reaching the repository.
func (s *TaskService) GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	if !canonicalUUID(taskID) {
		return nil, apperrors.NewNotFound("task", map[string]any{"id": taskID})
	}
	task, err := s.tasks.GetByID(ctx, userID, taskID)
	if err != nil {
		return nil, mapRepoError(err, taskID)
	}
	return task, nil
}

// ListTasks returns the user's tasks, most recently updated first.
func (s *TaskService) ListTasks(ctx context.Context, userID string, query TaskListQuery) ([]domain.Task, error) {
	return s.list(ctx, repository.TaskFilter{
		UserID:     userID,
		Statuses:   query.Statuses,
		Priorities: query.Priorities,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
}

// UpdateTask applies a partial update.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID string, input TaskUpdateInput) (*domain.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if input.Version != nil && *input.Version != task.Version {
		return nil, versionConflict(taskID)
	}

	details := map[string]any{}
	var changed []string

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		validateTitle(title, details)
		if title != task.Title {
			task.Title = title
			changed = append(changed, "title")
		}
	}
	if input.Description != nil {
		validateDescription(*input.Description, details)
		if desc := strings.TrimSpace(*input.Description); desc != task.Description {
			task.Description = desc
			changed = append(changed, "description")
		}
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			details["priority"] = fmt.Sprintf("unknown priority %q", *input.Priority)
		} else if *input.Priority != task.Priority {
			task.Priority = *input.Priority
			changed = append(changed, "priority")
		}
	}
	if input.Status != nil {
		switch {
		case !input.Status.Valid():
			details["status"] = fmt.Sprintf("unknown status %q", *input.Status)
		case !task.Status.CanTransitionTo(*input.Status):
			return nil, transitionError(task.Status, *input.Status)
		case *input.Status != task.Status:
			task.Status = *input.Status
			changed = append(changed, "status")
		}
	}
	switch {
	case input.ClearDueDate && task.DueDate != nil:
		task.DueDate = nil
		changed = append(changed, "due_date")
	case input.DueDate != nil && (task.DueDate == nil || !task.DueDate.Equal(*input.DueDate)):
		task.DueDate = input.DueDate
		changed = append(changed, "due_date")
	}

	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid task update", details)
	}
	if len(changed) == 0 {
		return task, nil
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, mapRepoError(err, taskID)
	}
	s.publish(ctx, events.EventTaskUpdated, task, events.TaskUpdatedPayload{Fields: changed})
	return task, nil
}

// DeleteTask soft-deletes a task.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID string) error {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := s.tasks.SoftDelete(ctx, userID, taskID); err != nil {
		return mapRepoError(err, taskID)
	}
	s.publish(ctx, events.EventTaskDeleted, task, nil)
	return nil
}

// TasksByStatus lists tasks in a single status.
func (s *TaskService) TasksByStatus(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.Task, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": string(status)})
	}
	return s.list(ctx, repository.TaskFilter{UserID: userID, Statuses: []domain.TaskStatus{status}})
}

// TasksByPriority lists tasks with a single priority.
func (s *TaskService) TasksByPriority(ctx context.Context, userID string, priority domain.TaskPriority) ([]domain.Task, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(priority)})
	}
	return s.list(ctx, repository.TaskFilter{UserID: userID, Priorities: []domain.TaskPriority{priority}})
}

// OverdueTasks lists open tasks whose due date has passed, most urgent first.
func (s *TaskService) OverdueTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	now := s.now()
	return s.list(ctx, repository.TaskFilter{
		UserID:          userID,
		DueBefore:       &now,
		ExcludeStatuses: []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusCancelled},
		OrderBy:         repository.OrderPriorityDue,
	})
}

// SearchByTitle matches a case-insensitive substring of the title.
func (s *TaskService) SearchByTitle(ctx context.Context, userID, query string) ([]domain.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("search term must not be empty", map[string]any{"title": "required"})
	}
	return s.list(ctx, repository.TaskFilter{UserID: userID, TitleContains: &query})
}

// TasksCreatedBetween lists tasks created in [start, end].
func (s *TaskService) TasksCreatedBetween(ctx context.Context, userID string, start, end time.Time) ([]domain.Task, error) {
	if start.After(end) {
		return nil, apperrors.NewValidationError("start date must not be after end date", map[string]any{
			"startDate": start,
			"endDate":   end,
		})
	}
	return s.list(ctx, repository.TaskFilter{UserID: userID, CreatedFrom: &start, CreatedTo: &end})
}

// TasksOrdered lists tasks by priority rank, then due date with undated tasks last.
func (s *TaskService) TasksOrdered(ctx context.Context, userID string) ([]domain.Task, error) {
	return s.list(ctx, repository.TaskFilter{UserID: userID, OrderBy: repository.OrderPriorityDue})
}

// ChangeStatus moves a task through the status lifecycle. Requesting the
// current status succeeds without writing.
func (s *TaskService) ChangeStatus(ctx context.Context, userID, taskID string, status domain.TaskStatus) (*domain.Task, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": string(status)})
	}
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == status {
		return task, nil
	}
	if !task.Status.CanTransitionTo(status) {
		return nil, transitionError(task.Status, status)
	}

	old := task.Status
	task.Status = status
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, mapRepoError(err, taskID)
	}
	s.publish(ctx, events.EventTaskStatusChanged, task, events.TaskStatusChangedPayload{OldStatus: old, NewStatus: status})
	return task, nil
}

// ChangePriority sets a new priority.
func (s *TaskService) ChangePriority(ctx context.Context, userID, taskID string, priority domain.TaskPriority) (*domain.Task, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(priority)})
	}
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Priority == priority {
		return task, nil
	}

	old := task.Priority
	task.Priority = priority
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, mapRepoError(err, taskID)
	}
	s.publish(ctx, events.EventTaskPriorityChanged, task, events.TaskPriorityChangedPayload{OldPriority: old, NewPriority: priority})
	return task, nil
}

// Statistics aggregates the user's live tasks. Results are served from the
// stats cache when present; cache failures fall back to the repository.
func (s *TaskService) Statistics(ctx context.Context, userID string) (*domain.TaskStatistics, error) {
	cached, ok, err := s.stats.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("stats cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	byStatus, err := s.tasks.CountByStatus(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	byPriority, err := s.tasks.CountByPriority(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	overdue, err := s.tasks.CountOverdue(ctx, userID, s.now())
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	stats := domain.NewTaskStatistics(byStatus, byPriority, overdue)
	if err := s.stats.Set(ctx, userID, stats); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return &stats, nil
}

func (s *TaskService) list(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	tasks, err := s.tasks.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

func (s *TaskService) publish(ctx context.Context, eventType events.EventType, task *domain.Task, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.NewTaskEvent(eventType, task, payload, s.now())
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(eventType)),
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}

func validateTitle(title string, details map[string]any) {
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleLength {
		details["title"] = "title must be between 1 and 255 characters"
	}
}

func validateDescription(description string, details map[string]any) {
	if utf8.RuneCountInString(strings.TrimSpace(description)) > maxDescriptionLength {
		details["description"] = "description cannot exceed 1000 characters"
	}
}

func transitionError(from, to domain.TaskStatus) error {
	allowed := make([]string, 0, 3)
	for _, s := range from.Transitions() {
		allowed = append(allowed, string(s))
	}
	return apperrors.NewValidationError(
		fmt.Sprintf("invalid status transition from %s to %s", from, to),
		map[string]any{"from": string(from), "to": string(to), "allowed": allowed},
	)
}

func versionConflict(taskID string) error {
	return apperrors.NewConflict("task was modified concurrently", map[string]any{"id": taskID})
}

// canonicalUUID accepts only the hyphenated 36-character form that the
// tasks.id column produces; uuid.Parse alone also takes urn and braced forms.
func canonicalUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func mapRepoError(err error, taskID string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("task", map[string]any{"id": taskID})
	case errors.Is(err, repository.ErrVersionConflict):
		return versionConflict(taskID)
	default:
		return apperrors.NewInternalError(err)
	}
}
