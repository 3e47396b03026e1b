package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/task-manager/internal/api/dto"
	"github.com/spec-kit/task-manager/internal/auth"
	"github.com/spec-kit/task-manager/internal/domain"
	"github.com/spec-kit/task-manager/internal/service"
	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

const maxPageSize = 100

// localDateTime is accepted alongside RFC 3339 and read as UTC.
const localDateTime = "2006-01-02T15:04:05"

// TasksHandler manages the caller's tasks.
type TasksHandler struct {
	service *service.TaskService
	now     func() time.Time
}

// NewTasksHandler constructs handler.
func NewTasksHandler(taskService *service.TaskService) *TasksHandler {
	return &TasksHandler{service: taskService, now: time.Now}
}

// CreateTask POST /api/tasks.
func (h *TasksHandler) CreateTask(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	priority, ok := domain.ParseTaskPriority(req.Priority)
	if !ok && strings.TrimSpace(req.Priority) != "" {
		return apperrors.NewValidationError("invalid task", map[string]any{"priority": "unknown priority " + strconv.Quote(req.Priority)})
	}

	task, err := h.service.CreateTask(c.UserContext(), owner, service.TaskCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTaskResponse(task, h.now())})
}

// ListTasks GET /api/tasks.
func (h *TasksHandler) ListTasks(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	query, err := parseListQuery(c)
	if err != nil {
		return err
	}
	tasks, err := h.service.ListTasks(c.UserContext(), owner, query)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

// GetTask GET /api/tasks/:id.
func (h *TasksHandler) GetTask(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	task, err := h.service.GetTask(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return err
	}
	return h.single(c, task)
}

// UpdateTask PUT /api/tasks/:id.
func (h *TasksHandler) UpdateTask(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TaskUpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      req.DueDate,
		ClearDueDate: req.ClearDueDate,
		Version:      req.Version,
	}
	if req.Status != nil {
		status, ok := domain.ParseTaskStatus(*req.Status)
		if !ok {
			return apperrors.NewValidationError("invalid status", map[string]any{"status": *req.Status})
		}
		input.Status = &status
	}
	if req.Priority != nil {
		priority, ok := domain.ParseTaskPriority(*req.Priority)
		if !ok {
			return apperrors.NewValidationError("invalid priority", map[string]any{"priority": *req.Priority})
		}
		input.Priority = &priority
	}

	task, err := h.service.UpdateTask(c.UserContext(), owner, c.Params("id"), input)
	if err != nil {
		return err
	}
	return h.single(c, task)
}

// DeleteTask DELETE /api/tasks/:id.
func (h *TasksHandler) DeleteTask(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteTask(c.UserContext(), owner, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// TasksByStatus GET /api/tasks/status/:status.
func (h *TasksHandler) TasksByStatus(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	status, ok := domain.ParseTaskStatus(c.Params("status"))
	if !ok {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": c.Params("status")})
	}
	tasks, err := h.service.TasksByStatus(c.UserContext(), owner, status)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

// TasksByPriority GET /api/tasks/priority/:priority.
func (h *TasksHandler) TasksByPriority(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	priority, ok := domain.ParseTaskPriority(c.Params("priority"))
	if !ok {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": c.Params("priority")})
	}
	tasks, err := h.service.TasksByPriority(c.UserContext(), owner, priority)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

// OverdueTasks GET /api/tasks/overdue.
func (h *TasksHandler) OverdueTasks(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	tasks, err := h.service.OverdueTasks(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

// SearchTasks GET /api/tasks/search?title=.
func (h *TasksHandler) SearchTasks(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	tasks, err := h.service.SearchByTitle(c.UserContext(), owner, c.Query("title"))
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

// TasksCreatedBetween GET /api/tasks/created-between?startDate=&endDate=.
func (h *TasksHandler) TasksCreatedBetween(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	start, err := parseTimeParam(c, "startDate")
	if err != nil {
		return err
	}
	end, err := parseTimeParam(c, "endDate")
	if err != nil {
		return err
	}
	tasks, err := h.service.TasksCreatedBetween(c.UserContext(), owner, start, end)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

// TasksOrdered GET /api/tasks/ordered.
func (h *TasksHandler) TasksOrdered(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	tasks, err := h.service.TasksOrdered(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return h.list(c, tasks)
}

// ChangeStatus PATCH /api/tasks/:id/status?status=.
func (h *TasksHandler) ChangeStatus(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	status, ok := domain.ParseTaskStatus(c.Query("status"))
	if !ok {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": c.Query("status")})
	}
	task, err := h.service.ChangeStatus(c.UserContext(), owner, c.Params("id"), status)
	if err != nil {
		return err
	}
	return h.single(c, task)
}

// ChangePriority PATCH /api/tasks/:id/priority?priority=.
func (h *TasksHandler) ChangePriority(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	priority, ok := domain.ParseTaskPriority(c.Query("priority"))
	if !ok {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": c.Query("priority")})
	}
	task, err := h.service.ChangePriority(c.UserContext(), owner, c.Params("id"), priority)
	if err != nil {
		return err
	}
	return h.single(c, task)
}

// Statistics GET /api/tasks/statistics.
func (h *TasksHandler) Statistics(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	stats, err := h.service.Statistics(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

func (h *TasksHandler) single(c *fiber.Ctx, task *domain.Task) error {
	return c.JSON(fiber.Map{"data": dto.NewTaskResponse(task, h.now())})
}

func (h *TasksHandler) list(c *fiber.Ctx, tasks []domain.Task) error {
	return c.JSON(fiber.Map{"data": dto.NewTaskList(tasks, h.now())})
}

func ownerID(c *fiber.Ctx) (string, error) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok || identity.UserID == "" {
		return "", apperrors.NewUnauthorized("authentication required")
	}
	return identity.UserID, nil
}

func parseListQuery(c *fiber.Ctx) (service.TaskListQuery, error) {
	var query service.TaskListQuery
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, ok := domain.ParseTaskStatus(part)
			if !ok {
				return query, apperrors.NewValidationError("invalid status", map[string]any{"status": part})
			}
			query.Statuses = append(query.Statuses, status)
		}
	}
	if raw := c.Query("priority"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			priority, ok := domain.ParseTaskPriority(part)
			if !ok {
				return query, apperrors.NewValidationError("invalid priority", map[string]any{"priority": part})
			}
			query.Priorities = append(query.Priorities, priority)
		}
	}

	limit, err := intParam(c, "limit")
	if err != nil {
		return query, err
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return query, err
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	query.Limit, query.Offset = limit, offset
	return query, nil
}

func intParam(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError("invalid "+name, map[string]any{name: raw})
	}
	return v, nil
}

func parseTimeParam(c *fiber.Ctx, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, apperrors.NewValidationError(name+" is required", map[string]any{name: "required"})
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(localDateTime, raw, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, apperrors.NewValidationError("invalid "+name, map[string]any{name: "expected RFC 3339 timestamp"})
}
