package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shahincodev/Sofware-AI-English/internal/agent"
	"github.com/shahincodev/Sofware-AI-English/internal/memory"
	"github.com/shahincodev/Sofware-AI-English/internal/store"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// gauge is an agent that records the peak number of concurrent executions.
type gauge struct {
	hold    time.Duration
	current atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (g *gauge) Name() string { return "gauge" }

func (g *gauge) Execute(ctx context.Context, task models.Task, emit func(models.Event)) (agent.Result, error) {
	g.calls.Add(1)
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	emit(models.Event{Type: models.EventAgentActivity, TaskID: task.ID})
	select {
	case <-time.After(g.hold):
	case <-ctx.Done():
		return agent.Result{}, ctx.Err()
	}
	return agent.Result{Output: "done:" + task.Text}, nil
}

type agentFunc func(ctx context.Context, task models.Task) (agent.Result, error)

func (f agentFunc) Name() string { return "func" }

func (f agentFunc) Execute(ctx context.Context, task models.Task, _ func(models.Event)) (agent.Result, error) {
	return f(ctx, task)
}

// recorder keeps outcomes in memory and fails for selected task ids.
type recorder struct {
	mu       sync.Mutex
	outcomes []models.Outcome
	failFor  map[string]bool
}

func (r *recorder) Record(_ context.Context, o models.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	if r.failFor[o.TaskID] {
		return &models.MemoryWriteError{TaskID: o.TaskID, Tier: models.TierLongTerm, Err: errors.New("disk full")}
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

func tasks(mode models.Mode, n int) []models.Task {
	out := make([]models.Task, n)
	for i := range out {
		out[i] = models.Task{ID: fmt.Sprintf("task-%02d", i), Text: fmt.Sprintf("t%d", i), Mode: mode}
	}
	return out
}

func TestRunAll_boundAndOrder(t *testing.T) {
	for _, tc := range []struct{ n, m int }{{1, 4}, {2, 5}, {3, 10}, {8, 3}} {
		t.Run(fmt.Sprintf("N=%d/M=%d", tc.n, tc.m), func(t *testing.T) {
			g := &gauge{hold: 30 * time.Millisecond}
			r := agent.NewRouter()
			r.Register(models.ModeBrowser, g)
			rec := &recorder{}
			e := New(r, rec, WithConcurrency(tc.n), WithLogger(quiet))

			in := tasks(models.ModeBrowser, tc.m)
			out, err := e.RunAll(context.Background(), in)
			require.NoError(t, err)
			require.Len(t, out, tc.m)
			for i, o := range out {
				assert.Equal(t, in[i].ID, o.TaskID, "outcome %d out of order", i)
				require.NotNil(t, o.Result)
				assert.Equal(t, "done:"+in[i].Text, *o.Result)
				assert.True(t, o.Succeeded())
			}
			assert.LessOrEqual(t, int(g.peak.Load()), tc.n)
			assert.Equal(t, tc.m, rec.count(), "every outcome recorded")
			assert.Equal(t, 0, e.InFlight())
		})
	}
}

func TestRunAll_fiveTasksConcurrencyTwo(t *testing.T) {
	g := &gauge{hold: 50 * time.Millisecond}
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, g)
	e := New(r, &recorder{}, WithConcurrency(2), WithLogger(quiet))

	out, err := e.RunAll(context.Background(), tasks(models.ModeBrowser, 5))
	require.NoError(t, err)
	assert.Len(t, out, 5)
	assert.Equal(t, int32(2), g.peak.Load())
	assert.Equal(t, int32(5), g.calls.Load())
}

func TestRunAll_unsupportedModeIsolated(t *testing.T) {
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, agent.StubAgent{})
	e := New(r, &recorder{}, WithConcurrency(2), WithLogger(quiet))

	in := []models.Task{
		{ID: "a", Mode: models.ModeBrowser},
		{ID: "b", Mode: models.ModeCode},
		{ID: "c", Mode: models.ModeBrowser},
	}
	out, err := e.RunAll(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[0].Succeeded())
	assert.Equal(t, models.StatusFailure, out[1].Status)
	assert.Equal(t, models.KindUnsupportedMode, out[1].ErrorKind)
	assert.Nil(t, out[1].Result)
	assert.True(t, out[2].Succeeded())
	assert.Equal(t, 0, e.InFlight(), "slot released for the unsupported task")
}

func TestRunAll_agentErrorAndPanic(t *testing.T) {
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, agentFunc(func(_ context.Context, task models.Task) (agent.Result, error) {
		switch task.Text {
		case "fail":
			return agent.Result{}, errors.New("page not found")
		case "panic":
			panic("nil map")
		}
		return agent.Result{Output: "ok"}, nil
	}))
	e := New(r, &recorder{}, WithConcurrency(3), WithLogger(quiet))

	out, err := e.RunAll(context.Background(), []models.Task{
		{ID: "1", Text: "fail", Mode: models.ModeBrowser},
		{ID: "2", Text: "panic", Mode: models.ModeBrowser},
		{ID: "3", Text: "fine", Mode: models.ModeBrowser},
	})
	require.NoError(t, err)
	assert.Equal(t, models.KindAgentFailure, out[0].ErrorKind)
	assert.Equal(t, "page not found", out[0].ErrorMessage)
	assert.Equal(t, models.KindAgentFailure, out[1].ErrorKind)
	assert.Contains(t, out[1].ErrorMessage, "nil map")
	assert.True(t, out[2].Succeeded())
}

func TestRunAll_timeout(t *testing.T) {
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, &gauge{hold: time.Minute})
	e := New(r, &recorder{}, WithTimeout(50*time.Millisecond), WithLogger(quiet))

	out, err := e.RunAll(context.Background(), tasks(models.ModeBrowser, 1))
	require.NoError(t, err)
	assert.Equal(t, models.KindAgentFailure, out[0].ErrorKind)
	assert.Contains(t, out[0].ErrorMessage, "deadline")
}

func TestRunAll_memoryWriteErrorSurfaced(t *testing.T) {
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, agent.StubAgent{})
	rec := &recorder{failFor: map[string]bool{"task-01": true}}
	e := New(r, rec, WithConcurrency(2), WithLogger(quiet))

	out, err := e.RunAll(context.Background(), tasks(models.ModeBrowser, 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMemoryWrite)
	var mwe *models.MemoryWriteError
	require.ErrorAs(t, err, &mwe)
	assert.Equal(t, "task-01", mwe.TaskID)
	require.Len(t, out, 3)
	assert.True(t, out[1].Succeeded(), "outcome still reported")
}

func TestSubmit_waitAndEvents(t *testing.T) {
	r := agent.NewRouter()
	r.Register(models.ModeCode, agent.StubAgent{})
	var mu sync.Mutex
	var types []string
	e := New(r, &recorder{}, WithLogger(quiet), WithEvents(func(ev models.Event) {
		mu.Lock()
		types = append(types, ev.Type)
		mu.Unlock()
	}))

	h, err := e.Submit(context.Background(), models.Task{ID: "x", Mode: models.ModeCode})
	require.NoError(t, err)
	o, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, o.Succeeded())
	assert.False(t, h.Pending())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, types)
	assert.Equal(t, models.EventTaskSubmitted, types[0])
	assert.Equal(t, models.EventTaskStarted, types[1])
	assert.Equal(t, models.EventTaskCompleted, types[len(types)-1])
	assert.Contains(t, types, models.EventAgentActivity)
}

func TestSubmit_cancelledBeforeAdmission(t *testing.T) {
	release := make(chan struct{})
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, agentFunc(func(context.Context, models.Task) (agent.Result, error) {
		<-release
		return agent.Result{Output: "ok"}, nil
	}))
	rec := &recorder{}
	e := New(r, rec, WithConcurrency(1), WithLogger(quiet))

	first, err := e.Submit(context.Background(), models.Task{ID: "first", Mode: models.ModeBrowser})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	second, err := e.Submit(ctx, models.Task{ID: "second", Mode: models.ModeBrowser})
	require.NoError(t, err)
	o, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.KindCancelled, o.ErrorKind)

	close(release)
	o, err = first.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, o.Succeeded())
	assert.Equal(t, 2, rec.count())
}

func TestShutdown(t *testing.T) {
	g := &gauge{hold: 100 * time.Millisecond}
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, g)
	rec := &recorder{}
	e := New(r, rec, WithConcurrency(2), WithLogger(quiet))

	for _, task := range tasks(models.ModeBrowser, 2) {
		_, err := e.Submit(context.Background(), task)
		require.NoError(t, err)
	}
	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, 2, rec.count(), "in-flight tasks drained")

	_, err := e.Submit(context.Background(), models.Task{ID: "late", Mode: models.ModeBrowser})
	assert.ErrorIs(t, err, models.ErrEngineClosed)
	_, err = e.RunAll(context.Background(), tasks(models.ModeBrowser, 1))
	assert.ErrorIs(t, err, models.ErrEngineClosed)
}

func TestRunAll_shutdownPartway(t *testing.T) {
	g := &gauge{hold: 80 * time.Millisecond}
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, g)
	rec := &recorder{}
	e := New(r, rec, WithConcurrency(1), WithLogger(quiet))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = e.Shutdown(context.Background())
	}()
	in := tasks(models.ModeBrowser, 3)
	out, err := e.RunAll(context.Background(), in)
	require.ErrorIs(t, err, models.ErrEngineClosed)
	require.Len(t, out, 3)
	assert.True(t, e.Closed())

	// The first task was admitted before shutdown and the second was already
	// waiting for its slot; both run and are recorded.
	for i := 0; i < 2; i++ {
		assert.Equal(t, in[i].ID, out[i].TaskID)
		assert.True(t, out[i].Succeeded(), "task %d", i)
	}
	assert.Equal(t, in[2].ID, out[2].TaskID)
	assert.Equal(t, models.KindCancelled, out[2].ErrorKind)
	assert.Contains(t, out[2].ErrorMessage, models.ErrEngineClosed.Error())
	assert.Equal(t, 2, rec.count(), "never-admitted task is not recorded")
}

func TestShutdown_contextDeadline(t *testing.T) {
	r := agent.NewRouter()
	r.Register(models.ModeBrowser, &gauge{hold: time.Second})
	e := New(r, &recorder{}, WithLogger(quiet))
	_, err := e.Submit(context.Background(), models.Task{ID: "slow", Mode: models.ModeBrowser})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)
	require.NoError(t, e.Shutdown(context.Background()))
}

func TestNew_concurrencyFloor(t *testing.T) {
	e := New(agent.NewRouter(), &recorder{}, WithConcurrency(0))
	assert.Equal(t, 1, e.Concurrency())
}

// End to end with the real memory manager: a successful outcome is
// recallable from long-term memory after its short-term TTL passes.
func TestEngine_withMemory(t *testing.T) {
	ctx := context.Background()
	clock := memory.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	stm, err := memory.NewShortTerm(memory.STMConfig{TTL: time.Minute, MaxEntries: 16, Clock: clock, Logger: quiet})
	require.NoError(t, err)
	ltm, err := store.Open(ctx, filepath.Join(t.TempDir(), "home"))
	require.NoError(t, err)
	mgr := memory.NewManager(stm, ltm, memory.WithClock(clock), memory.WithLogger(quiet))
	defer func() { _ = mgr.Close() }()

	r := agent.NewRouter()
	r.Register(models.ModeBrowser, agent.StubAgent{})
	e := New(r, mgr, WithConcurrency(2), WithClock(clock), WithLogger(quiet))

	out, err := e.RunAll(ctx, []models.Task{
		{ID: "ok", Text: "search", Mode: models.ModeBrowser},
		{ID: "bad", Text: "compile", Mode: models.ModeCode},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	clock.Advance(time.Minute)
	got, ok, err := mgr.Recall(ctx, "ok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.TierLongTerm, got.Tier)

	_, ok, err = mgr.Recall(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}
