// Package agent defines the capability contract the engine dispatches to and
// the mode-keyed router that selects an implementation.
package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Result is what an agent produced for a task.
type Result struct {
	Output string
}

// Agent executes a task for one mode. emit must not be retained after
// Execute returns.
type Agent interface {
	Name() string
	Execute(ctx context.Context, task models.Task, emit func(models.Event)) (Result, error)
}

// Router is the mode to agent lookup table.
type Router struct {
	mu     sync.RWMutex
	agents map[models.Mode]Agent
}

func NewRouter() *Router {
	return &Router{agents: make(map[models.Mode]Agent)}
}

// Register binds a to mode, replacing any previous agent.
func (r *Router) Register(mode models.Mode, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[mode] = a
}

// Resolve returns the agent for mode.
func (r *Router) Resolve(mode models.Mode) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[mode]
	return a, ok
}

// Modes lists the registered modes, sorted.
func (r *Router) Modes() []models.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Mode, 0, len(r.agents))
	for m := range r.agents {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func activity(task models.Task, agent string, data map[string]any) models.Event {
	return models.Event{
		Type:      models.EventAgentActivity,
		TaskID:    task.ID,
		Mode:      task.Mode,
		Agent:     agent,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
