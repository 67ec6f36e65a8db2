package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents where a task sits in its lifecycle.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusSuccess    TaskStatus = "SUCCESS"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusRetry      TaskStatus = "RETRY"
)

// TaskPriority ranks tasks for dispatch ordering. Lower value means
// higher priority: HIGH is drained before NORMAL before LOW.
type TaskPriority int

const (
	TaskPriorityHigh   TaskPriority = 0
	TaskPriorityNormal TaskPriority = 1
	TaskPriorityLow    TaskPriority = 2
)

// String renders the wire form of a priority ("high"|"normal"|"low").
func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityHigh:
		return "high"
	case TaskPriorityNormal:
		return "normal"
	case TaskPriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// ParseTaskPriority accepts the wire string form and returns the numeric
// enum. The API accepts the string form; the stored/serialized form is
// always numeric (spec open question: resolved in favor of accepting
// string on input, emitting numeric on output).
func ParseTaskPriority(s string) (TaskPriority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return TaskPriorityNormal, nil
	case "high":
		return TaskPriorityHigh, nil
	case "low":
		return TaskPriorityLow, nil
	default:
		return 0, fmt.Errorf("invalid priority: %s", s)
	}
}

const (
	DefaultQueueName   = "default"
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 60 // seconds
	DefaultTimeout     = 300 // seconds
	MaxTimeoutSeconds  = 3600
	MaxRetryDelaySecs  = 3600
)

// Task is the durable Task Record: one row per submitted unit of work,
// mutated exclusively by the Queue Manager over its lifecycle.
type Task struct {
	BaseModel
	TaskName     string       `json:"task_name" db:"task_name"`
	Args         JSONArray    `json:"args" db:"args"`
	Kwargs       JSONB        `json:"kwargs" db:"kwargs"`
	Priority     TaskPriority `json:"priority" db:"priority"`
	Status       TaskStatus   `json:"status" db:"status"`
	Result       RawJSON      `json:"result" db:"result"`
	ErrorMessage *string      `json:"error_message,omitempty" db:"error_message"`
	RetryCount   int          `json:"retry_count" db:"retry_count"`
	MaxRetries   int          `json:"max_retries" db:"max_retries"`
	RetryDelay   int          `json:"retry_delay" db:"retry_delay"`
	Timeout      int          `json:"timeout" db:"timeout"`
	QueueName    string       `json:"queue_name" db:"queue_name"`
	StartedAt    *time.Time   `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	NextRetryAt  *time.Time   `json:"next_retry_at,omitempty" db:"next_retry_at"`
}

// EnqueueTaskRequest is the payload accepted by the producer HTTP API
// to create a new Task Record.
type EnqueueTaskRequest struct {
	TaskName   string    `json:"task_name" validate:"required,task_name,min=1,max=255"`
	Args       JSONArray `json:"args,omitempty"`
	Kwargs     JSONB     `json:"kwargs,omitempty"`
	Priority   string    `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`
	MaxRetries *int      `json:"max_retries,omitempty" validate:"omitempty,min=0"`
	RetryDelay *int      `json:"retry_delay,omitempty" validate:"omitempty,min=0"`
	Timeout    *int      `json:"timeout,omitempty" validate:"omitempty,min=1,max=3600"`
	QueueName  string    `json:"queue_name,omitempty" validate:"omitempty,min=1,max=255"`
}

// TaskResponse is the wire representation of a Task Record; priority is
// always serialized back as its numeric enum.
type TaskResponse struct {
	ID           string       `json:"id"`
	TaskName     string       `json:"task_name"`
	Args         JSONArray    `json:"args"`
	Kwargs       JSONB        `json:"kwargs"`
	Priority     TaskPriority `json:"priority"`
	Status       TaskStatus   `json:"status"`
	Result       RawJSON      `json:"result,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	RetryCount   int          `json:"retry_count"`
	MaxRetries   int          `json:"max_retries"`
	RetryDelay   int          `json:"retry_delay"`
	Timeout      int          `json:"timeout"`
	QueueName    string       `json:"queue_name"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
	StartedAt    *string      `json:"started_at,omitempty"`
	CompletedAt  *string      `json:"completed_at,omitempty"`
	NextRetryAt  *string      `json:"next_retry_at,omitempty"`
}

// ToResponse converts a Task to its wire representation.
func (t *Task) ToResponse() TaskResponse {
	resp := TaskResponse{
		ID:           t.ID.String(),
		TaskName:     t.TaskName,
		Args:         t.Args,
		Kwargs:       t.Kwargs,
		Priority:     t.Priority,
		Status:       t.Status,
		Result:       t.Result,
		ErrorMessage: t.ErrorMessage,
		RetryCount:   t.RetryCount,
		MaxRetries:   t.MaxRetries,
		RetryDelay:   t.RetryDelay,
		Timeout:      t.Timeout,
		QueueName:    t.QueueName,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
	}

	if t.StartedAt != nil {
		s := t.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if t.CompletedAt != nil {
		s := t.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	if t.NextRetryAt != nil {
		s := t.NextRetryAt.Format(time.RFC3339)
		resp.NextRetryAt = &s
	}

	return resp
}

// ValidateTaskName validates the task name.
func ValidateTaskName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("task name is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("task name is too long (max 255 characters)")
	}
	return nil
}

// ValidateTaskStatus validates a task status value.
func ValidateTaskStatus(status TaskStatus) error {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusSuccess, TaskStatusFailed, TaskStatusRetry:
		return nil
	default:
		return fmt.Errorf("invalid task status: %s", status)
	}
}

// ValidatePriority validates a numeric priority value.
func ValidatePriority(priority TaskPriority) error {
	switch priority {
	case TaskPriorityHigh, TaskPriorityNormal, TaskPriorityLow:
		return nil
	default:
		return fmt.Errorf("priority must be one of high(0), normal(1), low(2)")
	}
}

// ValidateTimeout validates the per-attempt timeout value.
func ValidateTimeout(timeout int) error {
	if timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if timeout > MaxTimeoutSeconds {
		return fmt.Errorf("timeout cannot exceed %d seconds", MaxTimeoutSeconds)
	}
	return nil
}

// IsTerminal reports whether the task has reached a terminal status.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusSuccess || t.Status == TaskStatusFailed
}

// AttemptsUsed returns the number of attempts that have already failed
// plus the one currently in flight or about to be made.
func (t *Task) AttemptsUsed() int {
	return t.RetryCount + 1
}

// TaskListResponse is the response envelope for the listing endpoint.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
