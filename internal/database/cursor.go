package database

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CursorEncoder handles encoding and decoding of cursors
type CursorEncoder struct{}

// NewCursorEncoder creates a new cursor encoder
func NewCursorEncoder() *CursorEncoder {
	return &CursorEncoder{}
}

// EncodeTaskCursor encodes a task cursor to a base64 string
func (ce *CursorEncoder) EncodeTaskCursor(cursor TaskCursor) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeTaskCursor decodes a base64 string to a task cursor
func (ce *CursorEncoder) DecodeTaskCursor(encoded string) (TaskCursor, error) {
	if encoded == "" {
		return TaskCursor{}, ErrInvalidCursor
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return TaskCursor{}, fmt.Errorf("failed to decode cursor: %w", err)
	}

	var cursor TaskCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return TaskCursor{}, fmt.Errorf("failed to unmarshal task cursor: %w", err)
	}

	if cursor.ID == uuid.Nil || cursor.CreatedAt.IsZero() {
		return TaskCursor{}, ErrInvalidCursor
	}

	return cursor, nil
}

// EncodeAttemptCursor encodes an attempt cursor to a base64 string
func (ce *CursorEncoder) EncodeAttemptCursor(cursor AttemptCursor) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attempt cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeAttemptCursor decodes a base64 string to an attempt cursor
func (ce *CursorEncoder) DecodeAttemptCursor(encoded string) (AttemptCursor, error) {
	if encoded == "" {
		return AttemptCursor{}, ErrInvalidCursor
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return AttemptCursor{}, fmt.Errorf("failed to decode cursor: %w", err)
	}

	var cursor AttemptCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return AttemptCursor{}, fmt.Errorf("failed to unmarshal attempt cursor: %w", err)
	}

	if cursor.ID == uuid.Nil || cursor.CreatedAt.IsZero() {
		return AttemptCursor{}, ErrInvalidCursor
	}

	return cursor, nil
}

// CreateTaskCursor creates a task cursor from a task's id/created_at.
func CreateTaskCursor(id uuid.UUID, createdAt time.Time) TaskCursor {
	return TaskCursor{ID: id, CreatedAt: createdAt}
}

// CreateAttemptCursor creates an attempt cursor from an attempt's id/created_at.
func CreateAttemptCursor(id uuid.UUID, createdAt time.Time) AttemptCursor {
	return AttemptCursor{ID: id, CreatedAt: createdAt}
}

// ValidatePaginationRequest validates and sets defaults for pagination request
func ValidatePaginationRequest(req *CursorPaginationRequest) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}
	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		req.SortOrder = "desc"
	}
}

// BuildTaskCursorWhere builds the WHERE clause for cursor-based task
// listing, ordered by (created_at, id), optionally filtered by status.
func BuildTaskCursorWhere(cursor *TaskCursor, sortOrder string, status *string) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *status)
		argIndex++
	}

	if cursor != nil {
		primaryOp, secondaryOp := "<", "<"
		if sortOrder == "asc" {
			primaryOp, secondaryOp = ">", ">"
		}
		condition := fmt.Sprintf("(created_at %s $%d OR (created_at = $%d AND id %s $%d))",
			primaryOp, argIndex, argIndex, secondaryOp, argIndex+1)
		conditions = append(conditions, condition)
		args = append(args, cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		argIndex += 2
	}

	if len(conditions) == 0 {
		return "", args
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}
	return whereClause, args
}

// BuildAttemptCursorWhere builds the WHERE clause for cursor-based
// attempt listing scoped to a single task.
func BuildAttemptCursorWhere(cursor *AttemptCursor, sortOrder string, taskID uuid.UUID) (string, []interface{}) {
	conditions := []string{"task_id = $1"}
	args := []interface{}{taskID}
	argIndex := 2

	if cursor != nil {
		primaryOp, secondaryOp := "<", "<"
		if sortOrder == "asc" {
			primaryOp, secondaryOp = ">", ">"
		}
		condition := fmt.Sprintf("(created_at %s $%d OR (created_at = $%d AND id %s $%d))",
			primaryOp, argIndex, argIndex, secondaryOp, argIndex+1)
		conditions = append(conditions, condition)
		args = append(args, cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		argIndex += 2
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}
	return whereClause, args
}
