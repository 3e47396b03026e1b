package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/task-manager/internal/domain"
)

// TaskOrder selects the sort applied by ListWithFilter.
type TaskOrder string

const (
	// OrderUpdated lists most recently modified tasks first.
	OrderUpdated TaskOrder = "updated"
	// OrderPriorityDue lists by priority rank, then due date with undated tasks last.
	OrderPriorityDue TaskOrder = "priority_due"
)

// TaskFilter captures list parameters. UserID is mandatory; soft-deleted
// tasks are never returned.
type TaskFilter struct {
	UserID          string
	Statuses        []domain.TaskStatus
	ExcludeStatuses []domain.TaskStatus
	Priorities      []domain.TaskPriority
	TitleContains   *string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	DueBefore       *time.Time
	OrderBy         TaskOrder
	// Limit <= 0 returns every match.
	Limit  int
	Offset int
}

// TaskRepository encapsulates task persistence.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	// Update persists task if its Version still matches the stored row and
	// bumps Version on success.
	Update(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, userID, id string) (*domain.Task, error)
	SoftDelete(ctx context.Context, userID, id string) error
	ListWithFilter(ctx context.Context, filter TaskFilter) ([]domain.Task, error)
	CountByStatus(ctx context.Context, userID string) (map[domain.TaskStatus]int64, error)
	CountByPriority(ctx context.Context, userID string) (map[domain.TaskPriority]int64, error)
	CountOverdue(ctx context.Context, userID string, now time.Time) (int64, error)
}

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository instantiates repository.
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

const taskColumns = `id, user_id, title, description, status, priority, due_date, is_deleted, version, created_at, updated_at`

const priorityRankSQL = `CASE priority WHEN 'URGENT' THEN 1 WHEN 'HIGH' THEN 2 WHEN 'MEDIUM' THEN 3 WHEN 'LOW' THEN 4 ELSE 5 END`

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	const query = `
        INSERT INTO tasks (user_id, title, description, status, priority, due_date)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, version, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		task.UserID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
	).Scan(&task.ID, &task.Version, &task.CreatedAt, &task.UpdatedAt)
	return translate(err)
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	const query = `
        UPDATE tasks SET title=$1, description=$2, status=$3, priority=$4, due_date=$5,
            version=version+1, updated_at=NOW()
        WHERE id=$6 AND user_id=$7 AND is_deleted=FALSE AND version=$8
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.ID,
		task.UserID,
		task.Version,
	).Scan(&task.Version, &task.UpdatedAt)
	if err == nil {
		return nil
	}
	if err = translate(err); err != ErrNotFound {
		return err
	}
	if _, lookupErr := r.GetByID(ctx, task.UserID, task.ID); lookupErr != nil {
		return lookupErr
	}
	return ErrVersionConflict
}

func (r *taskRepository) GetByID(ctx context.Context, userID, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1 AND user_id=$2 AND is_deleted=FALSE`
	rows, err := r.pool.Query(ctx, query, id, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return &tasks[0], nil
}

func (r *taskRepository) SoftDelete(ctx context.Context, userID, id string) error {
	const query = `
        UPDATE tasks SET is_deleted=TRUE, version=version+1, updated_at=NOW()
        WHERE id=$1 AND user_id=$2 AND is_deleted=FALSE`
	cmd, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepository) ListWithFilter(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	clauses, args := whereClauses(filter)

	order := "updated_at DESC, id"
	if filter.OrderBy == OrderPriorityDue {
		order = priorityRankSQL + ", due_date ASC NULLS LAST, created_at ASC, id"
	}

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY %s`,
		taskColumns, strings.Join(clauses, " AND "), order)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *taskRepository) CountByStatus(ctx context.Context, userID string) (map[domain.TaskStatus]int64, error) {
	const query = `SELECT status, COUNT(*) FROM tasks WHERE user_id=$1 AND is_deleted=FALSE GROUP BY status`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int64)
	for rows.Next() {
		var status domain.TaskStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *taskRepository) CountByPriority(ctx context.Context, userID string) (map[domain.TaskPriority]int64, error) {
	const query = `SELECT priority, COUNT(*) FROM tasks WHERE user_id=$1 AND is_deleted=FALSE GROUP BY priority`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskPriority]int64)
	for rows.Next() {
		var priority domain.TaskPriority
		var n int64
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, err
		}
		counts[priority] = n
	}
	return counts, rows.Err()
}

func (r *taskRepository) CountOverdue(ctx context.Context, userID string, now time.Time) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM tasks
        WHERE user_id=$1 AND is_deleted=FALSE AND due_date < $2 AND status NOT IN ('COMPLETED','CANCELLED')`
	var n int64
	if err := r.pool.QueryRow(ctx, query, userID, now).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func whereClauses(filter TaskFilter) ([]string, []any) {
	args := []any{filter.UserID}
	clauses := []string{"user_id=$1", "is_deleted=FALSE"}

	in := func(column string, negate bool, values []string) {
		placeholders := make([]string, len(values))
		for i, v := range values {
			args = append(args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		op := "IN"
		if negate {
			op = "NOT IN"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s (%s)", column, op, strings.Join(placeholders, ",")))
	}

	if len(filter.Statuses) > 0 {
		in("status", false, statusStrings(filter.Statuses))
	}
	if len(filter.ExcludeStatuses) > 0 {
		in("status", true, statusStrings(filter.ExcludeStatuses))
	}
	if len(filter.Priorities) > 0 {
		values := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			values[i] = string(p)
		}
		in("priority", false, values)
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		clauses = append(clauses, fmt.Sprintf("due_date < $%d", len(args)))
	}
	if filter.TitleContains != nil && strings.TrimSpace(*filter.TitleContains) != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(strings.TrimSpace(*filter.TitleContains)))+"%")
		clauses = append(clauses, fmt.Sprintf(`LOWER(title) LIKE $%d ESCAPE '\'`, len(args)))
	}
	return clauses, args
}

func statusStrings(statuses []domain.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanTasks(rows pgx.Rows) ([]domain.Task, error) {
	var result []domain.Task
	for rows.Next() {
		var task domain.Task
		if err := rows.Scan(
			&task.ID,
			&task.UserID,
			&task.Title,
			&task.Description,
			&task.Status,
			&task.Priority,
			&task.DueDate,
			&task.Deleted,
			&task.Version,
			&task.CreatedAt,
			&task.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}
