package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riftworks/taskqueue/internal/models"
)

// attemptRepository implements AttemptRepository, the Metadata Store
// adapter for the per-attempt execution history.
type attemptRepository struct {
	querier       Querier
	cursorEncoder *CursorEncoder
}

// NewAttemptRepository creates a new attempt repository
func NewAttemptRepository(conn *Connection) AttemptRepository {
	return &attemptRepository{querier: conn.Pool, cursorEncoder: NewCursorEncoder()}
}

// NewAttemptRepositoryWithTx creates a new attempt repository bound to a transaction
func NewAttemptRepositoryWithTx(tx pgx.Tx) AttemptRepository {
	return &attemptRepository{querier: tx, cursorEncoder: NewCursorEncoder()}
}

const attemptColumns = `id, task_id, attempt_number, worker_id, outcome, result,
	error_message, execution_time_ms, started_at, completed_at, created_at`

// Create appends a new attempt record.
func (r *attemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	if attempt == nil {
		return fmt.Errorf("attempt cannot be nil")
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = models.NewID()
	}

	query := `
		INSERT INTO attempts (id, task_id, attempt_number, worker_id, outcome, result,
			error_message, execution_time_ms, started_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at
	`

	err := r.querier.QueryRow(ctx, query,
		attempt.ID,
		attempt.TaskID,
		attempt.AttemptNumber,
		attempt.WorkerID,
		attempt.Outcome,
		attempt.Result,
		attempt.ErrorMessage,
		attempt.ExecutionTimeMs,
		attempt.StartedAt,
		attempt.CompletedAt,
	).Scan(&attempt.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

// GetByID retrieves an attempt by ID
func (r *attemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1`

	attempt, err := r.scanAttemptRow(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt by ID: %w", err)
	}
	return attempt, nil
}

// GetLatestByTaskID returns the most recent attempt for a task.
func (r *attemptRepository) GetLatestByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE task_id = $1 ORDER BY attempt_number DESC LIMIT 1`

	attempt, err := r.scanAttemptRow(r.querier.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get latest attempt: %w", err)
	}
	return attempt, nil
}

// GetByTaskID retrieves a task's attempts, newest first, with offset pagination.
func (r *attemptRepository) GetByTaskID(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*models.Attempt, error) {
	limit, offset = normalizeLimitOffset(limit, offset)

	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE task_id = $1 ORDER BY attempt_number DESC LIMIT $2 OFFSET $3`

	rows, err := r.querier.Query(ctx, query, taskID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts by task ID: %w", err)
	}
	defer rows.Close()

	return r.scanAttempts(rows)
}

// GetByTaskIDCursor retrieves a task's attempts using cursor-based pagination.
func (r *attemptRepository) GetByTaskIDCursor(ctx context.Context, taskID uuid.UUID, req CursorPaginationRequest) ([]*models.Attempt, CursorPaginationResponse, error) {
	ValidatePaginationRequest(&req)

	var cursor *AttemptCursor
	if req.Cursor != nil {
		decoded, err := r.cursorEncoder.DecodeAttemptCursor(*req.Cursor)
		if err != nil {
			return nil, CursorPaginationResponse{}, fmt.Errorf("invalid cursor: %w", err)
		}
		cursor = &decoded
	}

	whereClause, args := BuildAttemptCursorWhere(cursor, req.SortOrder, taskID)
	direction := "DESC"
	if req.SortOrder == "asc" {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM attempts %s ORDER BY created_at %s, id %s LIMIT $%d`,
		attemptColumns, whereClause, direction, direction, len(args)+1)
	args = append(args, req.Limit+1)

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		return nil, CursorPaginationResponse{}, fmt.Errorf("failed to list attempts with cursor: %w", err)
	}
	defer rows.Close()

	attempts, err := r.scanAttempts(rows)
	if err != nil {
		return nil, CursorPaginationResponse{}, err
	}

	response := CursorPaginationResponse{HasMore: len(attempts) > req.Limit}
	if response.HasMore {
		attempts = attempts[:req.Limit]
	}
	if response.HasMore && len(attempts) > 0 {
		last := attempts[len(attempts)-1]
		encoded, err := r.cursorEncoder.EncodeAttemptCursor(CreateAttemptCursor(last.ID, last.CreatedAt))
		if err != nil {
			return nil, CursorPaginationResponse{}, fmt.Errorf("failed to encode next cursor: %w", err)
		}
		response.NextCursor = &encoded
	}

	return attempts, response, nil
}

// CountByTaskID returns the number of attempts recorded for a task.
func (r *attemptRepository) CountByTaskID(ctx context.Context, taskID uuid.UUID) (int64, error) {
	var count int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM attempts WHERE task_id = $1`, taskID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count attempts by task ID: %w", err)
	}
	return count, nil
}

func (r *attemptRepository) scanAttemptRow(row pgx.Row) (*models.Attempt, error) {
	var attempt models.Attempt
	err := row.Scan(
		&attempt.ID,
		&attempt.TaskID,
		&attempt.AttemptNumber,
		&attempt.WorkerID,
		&attempt.Outcome,
		&attempt.Result,
		&attempt.ErrorMessage,
		&attempt.ExecutionTimeMs,
		&attempt.StartedAt,
		&attempt.CompletedAt,
		&attempt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) scanAttempts(rows pgx.Rows) ([]*models.Attempt, error) {
	var attempts []*models.Attempt
	for rows.Next() {
		attempt, err := r.scanAttemptRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt rows: %w", err)
	}
	return attempts, nil
}
