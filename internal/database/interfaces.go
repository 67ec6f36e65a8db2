package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/riftworks/taskqueue/internal/models"
)

// Common errors
var (
	ErrProducerNotFound = errors.New("producer not found")
	ErrProducerExists   = errors.New("producer already exists")
	ErrTaskNotFound     = errors.New("task not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrInvalidCursor    = errors.New("invalid cursor")
)

// CursorPaginationRequest represents a cursor-based pagination request
type CursorPaginationRequest struct {
	Limit     int     `json:"limit"`
	Cursor    *string `json:"cursor,omitempty"`
	SortOrder string  `json:"sort_order"` // "asc" or "desc"
}

// CursorPaginationResponse represents a cursor-based pagination response
type CursorPaginationResponse struct {
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor,omitempty"`
	PrevCursor *string `json:"prev_cursor,omitempty"`
}

// TaskCursor represents a cursor for task listing pagination.
type TaskCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        uuid.UUID `json:"id"`
}

// AttemptCursor represents a cursor for per-task attempt pagination.
type AttemptCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        uuid.UUID `json:"id"`
}

// ProducerRepository stores the credentials of task producers, the
// authenticated callers of the submission surface.
type ProducerRepository interface {
	Create(ctx context.Context, producer *models.Producer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Producer, error)
	GetByEmail(ctx context.Context, email string) (*models.Producer, error)
	Update(ctx context.Context, producer *models.Producer) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*models.Producer, error)
	Count(ctx context.Context) (int64, error)
}

// TaskRepository is the Metadata Store adapter for the durable Task
// Record. It holds no ownership/tenancy fields: the
// engine's unit of work is the task itself.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)

	// Update persists every mutable field of task as-is; used by the
	// Queue Manager's claim_next/complete/fail/promote_delayed
	// transitions, each of which sets task's fields before calling it.
	Update(ctx context.Context, task *models.Task) error

	Delete(ctx context.Context, id uuid.UUID) error

	GetByStatus(ctx context.Context, status models.TaskStatus, limit, offset int) ([]*models.Task, error)
	List(ctx context.Context, limit, offset int) ([]*models.Task, error)
	ListCursor(ctx context.Context, req CursorPaginationRequest) ([]*models.Task, CursorPaginationResponse, error)

	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status models.TaskStatus) (int64, error)
}

// AttemptRepository is the Metadata Store adapter for the
// per-attempt execution history.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Attempt, error)
	GetLatestByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Attempt, error)

	GetByTaskID(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*models.Attempt, error)
	GetByTaskIDCursor(ctx context.Context, taskID uuid.UUID, req CursorPaginationRequest) ([]*models.Attempt, CursorPaginationResponse, error)

	CountByTaskID(ctx context.Context, taskID uuid.UUID) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Producers ProducerRepository
	Tasks     TaskRepository
	Attempts  AttemptRepository
}

// NewRepositories creates a new repositories instance
func NewRepositories(conn *Connection) *Repositories {
	return &Repositories{
		Producers: NewProducerRepository(conn),
		Tasks:     NewTaskRepository(conn),
		Attempts:  NewAttemptRepository(conn),
	}
}
