// Package engine admits tasks under a fixed concurrency bound, dispatches each
// to the agent registered for its mode, and records every outcome in memory
// before reporting it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shahincodev/Sofware-AI-English/internal/agent"
	"github.com/shahincodev/Sofware-AI-English/internal/memory"
	"github.com/shahincodev/Sofware-AI-English/internal/otel"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Resolver finds the agent for a mode.
type Resolver interface {
	Resolve(mode models.Mode) (agent.Agent, bool)
}

// Recorder receives every outcome before its handle completes.
type Recorder interface {
	Record(ctx context.Context, o models.Outcome) error
}

// Engine runs tasks with at most N agent executions in flight.
type Engine struct {
	router   Resolver
	recorder Recorder
	sem      *semaphore.Weighted
	size     int
	timeout  time.Duration
	clock    memory.Clock
	logger   *slog.Logger
	events   func(models.Event)

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency sets the admission bound. Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.size = max(n, 1) }
}

// WithTimeout bounds each agent execution. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithClock sets the clock used for outcome timestamps.
func WithClock(c memory.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEvents sets a sink for lifecycle and agent events. It is called from
// task goroutines and must be safe for concurrent use.
func WithEvents(fn func(models.Event)) Option {
	return func(e *Engine) { e.events = fn }
}

// New returns an engine dispatching through router and recording through recorder.
func New(router Resolver, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		router:   router,
		recorder: recorder,
		size:     models.DefaultConcurrency,
		clock:    memory.SystemClock{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	e.sem = semaphore.NewWeighted(int64(e.size))
	return e
}

// Concurrency returns the admission bound.
func (e *Engine) Concurrency() int { return e.size }

// Closed reports whether Shutdown has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// InFlight returns the number of tasks currently holding a slot.
func (e *Engine) InFlight() int { return int(e.inFlight.Load()) }

// Submit blocks until a slot is free, then starts task in its own goroutine.
// If ctx ends before admission the task is completed with a cancelled outcome.
// After Shutdown it returns ErrEngineClosed.
func (e *Engine) Submit(ctx context.Context, task models.Task) (*Handle, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, models.ErrEngineClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	h := newHandle(task)
	e.emit(lifecycle(models.EventTaskSubmitted, task, e.clock.Now(), nil))

	if err := e.sem.Acquire(ctx, 1); err != nil {
		defer e.wg.Done()
		now := e.clock.Now().UTC()
		o := failure(task, models.KindCancelled, err, now, now)
		e.logger.Warn("task not admitted", "task_id", task.ID, "err", err)
		e.finish(context.WithoutCancel(ctx), h, o)
		return h, nil
	}
	e.inFlight.Add(1)
	go e.run(context.WithoutCancel(ctx), h)
	return h, nil
}

// RunAll submits tasks in order and waits for all of them. Outcomes are
// index-aligned with tasks and always complete. The error joins any memory
// write failures. If the engine shuts down partway through, the tasks it never
// admitted get cancelled outcomes that are not recorded, and the error also
// carries ErrEngineClosed.
func (e *Engine) RunAll(ctx context.Context, tasks []models.Task) ([]models.Outcome, error) {
	handles := make([]*Handle, 0, len(tasks))
	var submitErr error
	for _, t := range tasks {
		h, err := e.Submit(ctx, t)
		if err != nil {
			submitErr = err
			break
		}
		handles = append(handles, h)
	}
	outcomes := make([]models.Outcome, len(tasks))
	var errs []error
	for i, h := range handles {
		<-h.Done()
		o, err := h.Result()
		outcomes[i] = o
		if err != nil {
			errs = append(errs, err)
		}
	}
	if submitErr != nil {
		now := e.clock.Now().UTC()
		for i := len(handles); i < len(tasks); i++ {
			outcomes[i] = failure(tasks[i], models.KindCancelled, submitErr, now, now)
		}
		errs = append(errs, submitErr)
	}
	return outcomes, errors.Join(errs...)
}

// Shutdown refuses new submissions and waits for every admitted task to
// finish and be recorded, or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context, h *Handle) {
	defer e.wg.Done()
	defer func() {
		e.inFlight.Add(-1)
		e.sem.Release(1)
	}()

	task := h.Task
	start := e.clock.Now().UTC()
	e.emit(lifecycle(models.EventTaskStarted, task, start, nil))

	var o models.Outcome
	a, ok := e.router.Resolve(task.Mode)
	if !ok {
		o = failure(task, models.KindUnsupportedMode,
			fmt.Errorf("%w: no agent registered for mode %q", models.ErrUnsupportedMode, task.Mode),
			start, e.clock.Now().UTC())
	} else {
		res, err := e.execute(ctx, a, task)
		end := e.clock.Now().UTC()
		otel.RecordAgentExecution(ctx, task.Mode.String(), a.Name(), end.Sub(start))
		if err != nil {
			o = failure(task, models.KindAgentFailure, err, start, end)
			e.logger.Warn("agent failed", "task_id", task.ID, "mode", task.Mode, "agent", a.Name(), "err", err)
		} else {
			o = success(task, res.Output, start, end)
		}
	}
	e.finish(ctx, h, o)
}

func (e *Engine) execute(ctx context.Context, a agent.Agent, task models.Task) (res agent.Result, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()
	return a.Execute(ctx, task, e.emit)
}

func (e *Engine) finish(ctx context.Context, h *Handle, o models.Outcome) {
	err := e.recorder.Record(ctx, o)
	if err != nil {
		e.logger.Error("memory write failed", "task_id", o.TaskID, "err", err)
	}
	otel.RecordTask(ctx, o.Mode.String(), o.Status, string(o.ErrorKind))
	e.logger.Info("task completed", "task_id", o.TaskID, "mode", o.Mode, "status", o.Status,
		"error", o.ErrorKind, "duration", o.FinishedAt.Sub(o.StartedAt))
	data := map[string]any{"status": o.Status}
	if o.ErrorKind != "" {
		data["error"] = string(o.ErrorKind)
	}
	e.emit(lifecycle(models.EventTaskCompleted, h.Task, o.FinishedAt, data))
	h.complete(o, err)
}

func (e *Engine) emit(ev models.Event) {
	if e.events != nil {
		e.events(ev)
	}
}

func lifecycle(typ string, task models.Task, at time.Time, data map[string]any) models.Event {
	return models.Event{
		Type:      typ,
		TaskID:    task.ID,
		Mode:      task.Mode,
		Timestamp: at.UTC(),
		Data:      data,
	}
}

func success(task models.Task, output string, start, end time.Time) models.Outcome {
	return models.Outcome{
		TaskID:     task.ID,
		Mode:       task.Mode,
		Text:       task.Text,
		Status:     models.StatusSuccess,
		Result:     &output,
		StartedAt:  start,
		FinishedAt: end,
	}
}

func failure(task models.Task, kind models.ErrorKind, err error, start, end time.Time) models.Outcome {
	return models.Outcome{
		TaskID:       task.ID,
		Mode:         task.Mode,
		Text:         task.Text,
		Status:       models.StatusFailure,
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
		StartedAt:    start,
		FinishedAt:   end,
	}
}
