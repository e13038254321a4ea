package engine

import (
	"context"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Handle tracks one submitted task until its outcome is recorded.
type Handle struct {
	Task models.Task

	done    chan struct{}
	outcome models.Outcome
	err     error
}

func newHandle(t models.Task) *Handle {
	return &Handle{Task: t, done: make(chan struct{})}
}

// Done is closed once the outcome has been recorded.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks for the outcome. The error is the memory write failure, if
// any, or ctx's error when ctx ends first.
func (h *Handle) Wait(ctx context.Context) (models.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	case <-ctx.Done():
		return models.Outcome{}, ctx.Err()
	}
}

// Result returns the outcome without blocking; it is zero while Pending.
func (h *Handle) Result() (models.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	default:
		return models.Outcome{}, nil
	}
}

// Pending reports whether the task is still running.
func (h *Handle) Pending() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *Handle) complete(o models.Outcome, err error) {
	h.outcome = o
	h.err = err
	close(h.done)
}
