package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/task-manager/internal/domain"
)

// MemoryStore keeps users and tasks in process memory. It backs the service
// when no database is configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	users map[string]domain.User
	tasks map[string]domain.Task
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:   time.Now,
		users: make(map[string]domain.User),
		tasks: make(map[string]domain.Task),
	}
}

// NewMemoryStoreWithClock creates an empty store stamping records with now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	if now != nil {
		s.now = now
	}
	return s
}

// Users returns a UserRepository view of the store.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Tasks returns a TaskRepository view of the store.
func (s *MemoryStore) Tasks() TaskRepository { return memoryTasks{s} }

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return ErrConflict
		}
	}
	now := r.s.now()
	user.ID = uuid.NewString()
	user.Version = 0
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	stored.Authorities = append([]string(nil), user.Authorities...)
	r.s.users[user.ID] = stored
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r memoryUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r memoryUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	return err == nil, nil
}

func (r memoryUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

type memoryTasks struct{ s *MemoryStore }

func (r memoryTasks) Create(_ context.Context, task *domain.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	task.ID = uuid.NewString()
	task.Version = 0
	task.Deleted = false
	task.CreatedAt, task.UpdatedAt = now, now
	r.s.tasks[task.ID] = copyTask(*task)
	return nil
}

func (r memoryTasks) Update(_ context.Context, task *domain.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tasks[task.ID]
	if !ok || stored.Deleted || stored.UserID != task.UserID {
		return ErrNotFound
	}
	if stored.Version != task.Version {
		return ErrVersionConflict
	}
	task.Version++
	task.UpdatedAt = r.s.now()
	task.CreatedAt = stored.CreatedAt
	r.s.tasks[task.ID] = copyTask(*task)
	return nil
}

func (r memoryTasks) GetByID(_ context.Context, userID, id string) (*domain.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tasks[id]
	if !ok || t.Deleted || t.UserID != userID {
		return nil, ErrNotFound
	}
	t = copyTask(t)
	return &t, nil
}

func (r memoryTasks) SoftDelete(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.Deleted || t.UserID != userID {
		return ErrNotFound
	}
	t.Deleted = true
	t.Version++
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = t
	return nil
}

func (r memoryTasks) ListWithFilter(_ context.Context, filter TaskFilter) ([]domain.Task, error) {
	r.s.mu.RLock()
	var result []domain.Task
	for _, t := range r.s.tasks {
		if matches(t, filter) {
			result = append(result, copyTask(t))
		}
	}
	r.s.mu.RUnlock()

	if filter.OrderBy == OrderPriorityDue {
		sort.Slice(result, func(i, j int) bool { return lessPriorityDue(result[i], result[j]) })
	} else {
		sort.Slice(result, func(i, j int) bool {
			if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
				return result[i].UpdatedAt.After(result[j].UpdatedAt)
			}
			return result[i].ID < result[j].ID
		})
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r memoryTasks) CountByStatus(_ context.Context, userID string) (map[domain.TaskStatus]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[domain.TaskStatus]int64)
	for _, t := range r.s.tasks {
		if t.UserID == userID && !t.Deleted {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func (r memoryTasks) CountByPriority(_ context.Context, userID string) (map[domain.TaskPriority]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[domain.TaskPriority]int64)
	for _, t := range r.s.tasks {
		if t.UserID == userID && !t.Deleted {
			counts[t.Priority]++
		}
	}
	return counts, nil
}

func (r memoryTasks) CountOverdue(_ context.Context, userID string, now time.Time) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, t := range r.s.tasks {
		if t.UserID == userID && !t.Deleted && t.Overdue(now) {
			n++
		}
	}
	return n, nil
}

func matches(t domain.Task, f TaskFilter) bool {
	if t.Deleted || t.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.ExcludeStatuses) > 0 && containsStatus(f.ExcludeStatuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 {
		found := false
		for _, p := range f.Priorities {
			if p == t.Priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*f.DueBefore)) {
		return false
	}
	if f.TitleContains != nil {
		needle := strings.ToLower(strings.TrimSpace(*f.TitleContains))
		if needle != "" && !strings.Contains(strings.ToLower(t.Title), needle) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TaskStatus, s domain.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func lessPriorityDue(a, b domain.Task) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	switch {
	case a.DueDate == nil && b.DueDate != nil:
		return false
	case a.DueDate != nil && b.DueDate == nil:
		return true
	case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func copyTask(t domain.Task) domain.Task {
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	return t
}
