package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome is the tagged outcome of a single handler invocation,
// replacing exceptions-for-control-flow with Ok(value) | Err(message)
// per the re-architecture guidance for handler dispatch.
type AttemptOutcome string

const (
	AttemptOutcomeSuccess AttemptOutcome = "success"
	AttemptOutcomeFailed  AttemptOutcome = "failed"
	AttemptOutcomeTimeout AttemptOutcome = "timeout"
)

// Attempt is a per-invocation record supplementing the base Task Record:
// every claim+dispatch+outcome cycle appends one, giving operators a
// full attempt trail beyond the task's single current-state fields.
type Attempt struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	TaskID          uuid.UUID      `json:"task_id" db:"task_id"`
	AttemptNumber   int            `json:"attempt_number" db:"attempt_number"`
	WorkerID        string         `json:"worker_id" db:"worker_id"`
	Outcome         AttemptOutcome `json:"outcome" db:"outcome"`
	Result          RawJSON        `json:"result,omitempty" db:"result"`
	ErrorMessage    *string        `json:"error_message,omitempty" db:"error_message"`
	ExecutionTimeMs *int           `json:"execution_time_ms,omitempty" db:"execution_time_ms"`
	StartedAt       time.Time      `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// AttemptResponse is the wire representation of an Attempt.
type AttemptResponse struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	AttemptNumber   int            `json:"attempt_number"`
	WorkerID        string         `json:"worker_id"`
	Outcome         AttemptOutcome `json:"outcome"`
	Result          RawJSON        `json:"result,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	ExecutionTimeMs *int           `json:"execution_time_ms,omitempty"`
	StartedAt       string         `json:"started_at"`
	CompletedAt     *string        `json:"completed_at,omitempty"`
}

// ToResponse converts an Attempt to its wire representation.
func (a *Attempt) ToResponse() AttemptResponse {
	resp := AttemptResponse{
		ID:              a.ID.String(),
		TaskID:          a.TaskID.String(),
		AttemptNumber:   a.AttemptNumber,
		WorkerID:        a.WorkerID,
		Outcome:         a.Outcome,
		Result:          a.Result,
		ErrorMessage:    a.ErrorMessage,
		ExecutionTimeMs: a.ExecutionTimeMs,
		StartedAt:       a.StartedAt.Format(time.RFC3339),
	}
	if a.CompletedAt != nil {
		s := a.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// ValidateAttemptOutcome validates an attempt outcome value.
func ValidateAttemptOutcome(outcome AttemptOutcome) error {
	switch outcome {
	case AttemptOutcomeSuccess, AttemptOutcomeFailed, AttemptOutcomeTimeout:
		return nil
	default:
		return fmt.Errorf("invalid attempt outcome: %s", outcome)
	}
}

// Duration returns the attempt's wall-clock duration, if it completed.
func (a *Attempt) Duration() *int {
	if a.CompletedAt != nil {
		ms := int(a.CompletedAt.Sub(a.StartedAt).Milliseconds())
		return &ms
	}
	return a.ExecutionTimeMs
}
