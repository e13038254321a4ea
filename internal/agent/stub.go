package agent

import (
	"context"
	"time"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

const stubOutput = "stub: ok"

// StubAgent is a deterministic local agent that emits plausible events
// without calling any model or spawning processes.
type StubAgent struct {
	// Delay is slept between events; zero means no sleeping.
	Delay time.Duration
}

// NewStubAgent returns a stub that pauses briefly between events.
func NewStubAgent() StubAgent { return StubAgent{Delay: 150 * time.Millisecond} }

func (StubAgent) Name() string { return "stub" }

func (s StubAgent) Execute(ctx context.Context, task models.Task, emit func(models.Event)) (Result, error) {
	emit(activity(task, s.Name(), map[string]any{"phase": "started"}))

	sleep(ctx, s.Delay)
	emit(activity(task, s.Name(), map[string]any{
		"phase":   "activity",
		"tool":    "think",
		"summary": "Stub agent simulated a " + task.Mode.String() + " task",
	}))

	sleep(ctx, s.Delay)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	emit(activity(task, s.Name(), map[string]any{"phase": "ended"}))
	return Result{Output: stubOutput}, nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
