package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riftworks/taskqueue/internal/models"
)

// Querier interface for both *pgxpool.Pool and pgx.Tx
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// taskRepository implements TaskRepository interface
type taskRepository struct {
	querier       Querier
	cursorEncoder *CursorEncoder
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(conn *Connection) TaskRepository {
	return &taskRepository{querier: conn.Pool, cursorEncoder: NewCursorEncoder()}
}

// NewTaskRepositoryWithTx creates a new task repository bound to a transaction
func NewTaskRepositoryWithTx(tx pgx.Tx) TaskRepository {
	return &taskRepository{querier: tx, cursorEncoder: NewCursorEncoder()}
}

const taskColumns = `id, task_name, args, kwargs, priority, status, result, error_message,
	retry_count, max_retries, retry_delay, timeout, queue_name,
	started_at, completed_at, next_retry_at, created_at, updated_at`

// Create inserts a new Task Record in the PENDING state.
func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if task.ID == uuid.Nil {
		task.ID = models.NewID()
	}

	query := `
		INSERT INTO tasks (id, task_name, args, kwargs, priority, status, result, error_message,
			retry_count, max_retries, retry_delay, timeout, queue_name,
			started_at, completed_at, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.querier.QueryRow(ctx, query,
		task.ID,
		task.TaskName,
		task.Args,
		task.Kwargs,
		task.Priority,
		task.Status,
		task.Result,
		task.ErrorMessage,
		task.RetryCount,
		task.MaxRetries,
		task.RetryDelay,
		task.Timeout,
		task.QueueName,
		task.StartedAt,
		task.CompletedAt,
		task.NextRetryAt,
	).Scan(&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return fmt.Errorf("task with ID %s already exists", task.ID)
			case "23514":
				return fmt.Errorf("task validation failed: %s", pgErr.Detail)
			}
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by ID
func (r *taskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := r.scanTaskRow(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task by ID: %w", err)
	}
	return task, nil
}

// Update persists every mutable field of task, as set by the caller.
func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	query := `
		UPDATE tasks
		SET task_name = $2, args = $3, kwargs = $4, priority = $5, status = $6,
			result = $7, error_message = $8, retry_count = $9, max_retries = $10,
			retry_delay = $11, timeout = $12, queue_name = $13,
			started_at = $14, completed_at = $15, next_retry_at = $16, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.querier.QueryRow(ctx, query,
		task.ID,
		task.TaskName,
		task.Args,
		task.Kwargs,
		task.Priority,
		task.Status,
		task.Result,
		task.ErrorMessage,
		task.RetryCount,
		task.MaxRetries,
		task.RetryDelay,
		task.Timeout,
		task.QueueName,
		task.StartedAt,
		task.CompletedAt,
		task.NextRetryAt,
	).Scan(&task.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTaskNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return fmt.Errorf("task validation failed: %s", pgErr.Detail)
		}
		return fmt.Errorf("failed to update task: %w", err)
	}

	return nil
}

// Delete deletes a task
func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.querier.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// GetByStatus retrieves tasks by status with offset pagination, most
// recently created first.
func (r *taskRepository) GetByStatus(ctx context.Context, status models.TaskStatus, limit, offset int) ([]*models.Task, error) {
	limit, offset = normalizeLimitOffset(limit, offset)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.querier.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks by status: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// List retrieves tasks with offset pagination, most recently created first.
func (r *taskRepository) List(ctx context.Context, limit, offset int) ([]*models.Task, error) {
	limit, offset = normalizeLimitOffset(limit, offset)

	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.querier.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// ListCursor retrieves tasks using cursor-based pagination (for
// supplemented feature).
func (r *taskRepository) ListCursor(ctx context.Context, req CursorPaginationRequest) ([]*models.Task, CursorPaginationResponse, error) {
	ValidatePaginationRequest(&req)

	var cursor *TaskCursor
	if req.Cursor != nil {
		decoded, err := r.cursorEncoder.DecodeTaskCursor(*req.Cursor)
		if err != nil {
			return nil, CursorPaginationResponse{}, fmt.Errorf("invalid cursor: %w", err)
		}
		cursor = &decoded
	}

	whereClause, args := BuildTaskCursorWhere(cursor, req.SortOrder, nil)
	direction := "DESC"
	if req.SortOrder == "asc" {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM tasks %s ORDER BY created_at %s, id %s LIMIT $%d`,
		taskColumns, whereClause, direction, direction, len(args)+1)
	args = append(args, req.Limit+1)

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		return nil, CursorPaginationResponse{}, fmt.Errorf("failed to list tasks with cursor: %w", err)
	}
	defer rows.Close()

	tasks, err := r.scanTasks(rows)
	if err != nil {
		return nil, CursorPaginationResponse{}, err
	}

	response := CursorPaginationResponse{HasMore: len(tasks) > req.Limit}
	if response.HasMore {
		tasks = tasks[:req.Limit]
	}
	if response.HasMore && len(tasks) > 0 {
		last := tasks[len(tasks)-1]
		encoded, err := r.cursorEncoder.EncodeTaskCursor(CreateTaskCursor(last.ID, last.CreatedAt))
		if err != nil {
			return nil, CursorPaginationResponse{}, fmt.Errorf("failed to encode next cursor: %w", err)
		}
		response.NextCursor = &encoded
	}

	return tasks, response, nil
}

// Count returns the total number of tasks
func (r *taskRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// CountByStatus returns the total number of tasks with a specific status
func (r *taskRepository) CountByStatus(ctx context.Context, status models.TaskStatus) (int64, error) {
	var count int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE status = $1`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	return count, nil
}

func (r *taskRepository) scanTaskRow(row pgx.Row) (*models.Task, error) {
	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.TaskName,
		&task.Args,
		&task.Kwargs,
		&task.Priority,
		&task.Status,
		&task.Result,
		&task.ErrorMessage,
		&task.RetryCount,
		&task.MaxRetries,
		&task.RetryDelay,
		&task.Timeout,
		&task.QueueName,
		&task.StartedAt,
		&task.CompletedAt,
		&task.NextRetryAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) scanTasks(rows pgx.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		task, err := r.scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

func normalizeLimitOffset(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
