package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed outcome.
type ErrorKind string

const (
	KindUnsupportedMode    ErrorKind = "unsupported_mode"
	KindAgentFailure       ErrorKind = "agent_failure"
	KindMemoryWriteFailure ErrorKind = "memory_write_failure"
	KindConfiguration      ErrorKind = "configuration_error"
	// KindCancelled marks a task whose submitter gave up before a slot was free.
	KindCancelled ErrorKind = "cancelled"
)

var (
	ErrUnsupportedMode = errors.New("unsupported mode")
	ErrAgentFailure    = errors.New("agent failure")
	ErrMemoryWrite     = errors.New("memory write failure")
	ErrConfiguration   = errors.New("configuration error")
	ErrEngineClosed    = errors.New("engine is shut down")
)

// MemoryWriteError reports that an outcome could not be persisted to a memory tier.
// The outcome itself is still valid and is returned alongside this error.
type MemoryWriteError struct {
	TaskID string
	Tier   string
	Err    error
}

func (e *MemoryWriteError) Error() string {
	return fmt.Sprintf("memory write failure (%s) for task %s: %v", e.Tier, e.TaskID, e.Err)
}

func (e *MemoryWriteError) Unwrap() []error { return []error{ErrMemoryWrite, e.Err} }
