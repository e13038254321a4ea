// Package models provides shared types for the engine, memory tiers, the HTTP API and external tools.
// These types mirror the API JSON and are stable for use by pkg/client and other consumers.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects which agent capability handles a task.
type Mode string

// ParseMode normalizes s and rejects unknown modes.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
	return m, nil
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeBrowser || m == ModeCode
}

func (m Mode) String() string { return string(m) }

// Task is a unit of work submitted by a user. It is immutable after submission.
type Task struct {
	ID          string    `json:"task_id"`
	Text        string    `json:"text"`
	Mode        Mode      `json:"mode"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewTask returns a task with a fresh identifier and submission time.
func NewTask(text string, mode Mode) Task {
	return Task{
		ID:          uuid.NewString(),
		Text:        text,
		Mode:        mode,
		SubmittedAt: time.Now().UTC(),
	}
}

// Outcome is the single result produced for a task.
type Outcome struct {
	TaskID       string    `json:"task_id"`
	Mode         Mode      `json:"mode"`
	Text         string    `json:"text,omitempty"`
	Status       string    `json:"status"`
	Result       *string   `json:"result,omitempty"`
	ErrorKind    ErrorKind `json:"error,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Event is a lifecycle or agent activity notification for a task.
type Event struct {
	Type      string         `json:"type"`
	TaskID    string         `json:"task_id,omitempty"`
	Mode      Mode           `json:"mode,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// MemoryRecord is a promoted outcome as stored in long-term memory.
type MemoryRecord struct {
	Outcome
	PromotedAt time.Time `json:"promoted_at"`
}

// SubmitTaskRequest is the body of POST /tasks.
type SubmitTaskRequest struct {
	Text string `json:"text" validate:"required"`
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=browser code"`
}

// SubmitTaskResponse is returned once a task has been admitted.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Mode   Mode   `json:"mode"`
}

// BatchRequest is the body of POST /tasks/batch.
type BatchRequest struct {
	Tasks []SubmitTaskRequest `json:"tasks" validate:"required,min=1,dive"`
}

// TaskResult pairs an outcome with a memory write failure, if any.
type TaskResult struct {
	Outcome     Outcome `json:"outcome"`
	MemoryError string  `json:"memory_error,omitempty"`
}

// BatchResponse lists outcomes in submission order.
type BatchResponse struct {
	Results []TaskResult `json:"results"`
}

// TaskStatus is returned by GET /tasks/{id}.
type TaskStatus struct {
	TaskID  string      `json:"task_id"`
	Pending bool        `json:"pending"`
	Result  *TaskResult `json:"result,omitempty"`
}

// PromoteResponse is returned by POST /memory/{id}/promote.
type PromoteResponse struct {
	TaskID   string `json:"task_id"`
	Promoted bool   `json:"promoted"`
}

// RecallResponse is returned by GET /memory/{id}.
type RecallResponse struct {
	Tier    string  `json:"tier"`
	Outcome Outcome `json:"outcome"`
}

// SweepResponse is returned by POST /memory/sweep.
type SweepResponse struct {
	Removed int `json:"removed"`
}
