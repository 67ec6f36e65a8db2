// Package testutil provides in-memory Metadata Store fakes and task
// factories shared by package tests and the end-to-end suite. The
// fakes implement the same repository interfaces the pgx-backed
// adapters do, so the engine wires together identically in tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/internal/models"
)

// MemoryTaskRepository is an in-memory database.TaskRepository.
type MemoryTaskRepository struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

// NewMemoryTaskRepository creates an empty task repository.
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[uuid.UUID]*models.Task)}
}

func copyTask(task *models.Task) *models.Task {
	dup := *task
	return &dup
}

func (r *MemoryTaskRepository) Create(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task.ID == uuid.Nil {
		task.ID = models.NewID()
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *MemoryTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, database.ErrTaskNotFound
	}
	return copyTask(task), nil
}

func (r *MemoryTaskRepository) Update(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; !ok {
		return database.ErrTaskNotFound
	}
	task.UpdatedAt = time.Now()
	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *MemoryTaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return database.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryTaskRepository) sortedLocked() []*models.Task {
	all := make([]*models.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		all = append(all, copyTask(task))
	}
	// newest first, matching the SQL listing order
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (r *MemoryTaskRepository) GetByStatus(ctx context.Context, status models.TaskStatus, limit, offset int) ([]*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.Task
	for _, task := range r.sortedLocked() {
		if task.Status == status {
			matched = append(matched, task)
		}
	}
	return paginate(matched, limit, offset), nil
}

func (r *MemoryTaskRepository) List(ctx context.Context, limit, offset int) ([]*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(r.sortedLocked(), limit, offset), nil
}

func (r *MemoryTaskRepository) ListCursor(ctx context.Context, req database.CursorPaginationRequest) ([]*models.Task, database.CursorPaginationResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	database.ValidatePaginationRequest(&req)
	encoder := database.NewCursorEncoder()

	all := r.sortedLocked()
	if req.Cursor != nil {
		cursor, err := encoder.DecodeTaskCursor(*req.Cursor)
		if err != nil {
			return nil, database.CursorPaginationResponse{}, database.ErrInvalidCursor
		}
		var after []*models.Task
		for _, task := range all {
			if task.CreatedAt.Before(cursor.CreatedAt) {
				after = append(after, task)
			}
		}
		all = after
	}

	resp := database.CursorPaginationResponse{}
	if len(all) > req.Limit {
		all = all[:req.Limit]
		resp.HasMore = true
		last := all[len(all)-1]
		next, err := encoder.EncodeTaskCursor(database.CreateTaskCursor(last.ID, last.CreatedAt))
		if err == nil {
			resp.NextCursor = &next
		}
	}
	return all, resp, nil
}

func (r *MemoryTaskRepository) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.tasks)), nil
}

func (r *MemoryTaskRepository) CountByStatus(ctx context.Context, status models.TaskStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, task := range r.tasks {
		if task.Status == status {
			n++
		}
	}
	return n, nil
}

// MemoryAttemptRepository is an in-memory database.AttemptRepository.
type MemoryAttemptRepository struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*models.Attempt
}

// NewMemoryAttemptRepository creates an empty attempt repository.
func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{attempts: make(map[uuid.UUID]*models.Attempt)}
}

func copyAttempt(attempt *models.Attempt) *models.Attempt {
	dup := *attempt
	return &dup
}

func (r *MemoryAttemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if attempt.ID == uuid.Nil {
		attempt.ID = models.NewID()
	}
	attempt.CreatedAt = time.Now()
	r.attempts[attempt.ID] = copyAttempt(attempt)
	return nil
}

func (r *MemoryAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[id]
	if !ok {
		return nil, database.ErrAttemptNotFound
	}
	return copyAttempt(attempt), nil
}

func (r *MemoryAttemptRepository) byTaskLocked(taskID uuid.UUID) []*models.Attempt {
	var matched []*models.Attempt
	for _, attempt := range r.attempts {
		if attempt.TaskID == taskID {
			matched = append(matched, copyAttempt(attempt))
		}
	}
	// newest first
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AttemptNumber > matched[j].AttemptNumber
	})
	return matched
}

func (r *MemoryAttemptRepository) GetLatestByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := r.byTaskLocked(taskID)
	if len(matched) == 0 {
		return nil, database.ErrAttemptNotFound
	}
	return matched[0], nil
}

func (r *MemoryAttemptRepository) GetByTaskID(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(r.byTaskLocked(taskID), limit, offset), nil
}

func (r *MemoryAttemptRepository) GetByTaskIDCursor(ctx context.Context, taskID uuid.UUID, req database.CursorPaginationRequest) ([]*models.Attempt, database.CursorPaginationResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	database.ValidatePaginationRequest(&req)
	matched := r.byTaskLocked(taskID)

	resp := database.CursorPaginationResponse{}
	if len(matched) > req.Limit {
		matched = matched[:req.Limit]
		resp.HasMore = true
	}
	return matched, resp, nil
}

func (r *MemoryAttemptRepository) CountByTaskID(ctx context.Context, taskID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.byTaskLocked(taskID))), nil
}
