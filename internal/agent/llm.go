package agent

import (
	"context"
	"fmt"

	"github.com/shahincodev/Sofware-AI-English/internal/brain"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Selector hands out model clients by purpose.
type Selector interface {
	ForPurpose(ctx context.Context, purpose string) (brain.Client, error)
}

// LLMAgent answers a task with a single model completion. Browser tasks use
// the "browse" purpose and code tasks the "analyze" purpose.
type LLMAgent struct {
	Brain Selector
}

func (LLMAgent) Name() string { return "llm" }

// PurposeFor maps a mode to a model-selection purpose.
func PurposeFor(mode models.Mode) string {
	switch mode {
	case models.ModeBrowser:
		return brain.PurposeBrowse
	case models.ModeCode:
		return brain.PurposeAnalyze
	default:
		return brain.PurposeDefault
	}
}

var systemPrompts = map[models.Mode]string{
	models.ModeBrowser: "You are a web research assistant. Describe the steps you would take in a browser " +
		"to complete the user's request, then give the answer you would expect to find.",
	models.ModeCode: "You are a coding assistant. Answer with working code and a short explanation.",
}

func (a LLMAgent) Execute(ctx context.Context, task models.Task, emit func(models.Event)) (Result, error) {
	if a.Brain == nil {
		return Result{}, fmt.Errorf("%w: no model selector", models.ErrConfiguration)
	}
	purpose := PurposeFor(task.Mode)
	c, err := a.Brain.ForPurpose(ctx, purpose)
	if err != nil {
		return Result{}, err
	}
	emit(activity(task, a.Name(), map[string]any{"phase": "started", "purpose": purpose, "model": c.Name()}))
	out, err := c.Complete(ctx, brain.Request{System: systemPrompts[task.Mode], Prompt: task.Text})
	if err != nil {
		return Result{}, err
	}
	emit(activity(task, a.Name(), map[string]any{"phase": "ended", "chars": len(out)}))
	return Result{Output: out}, nil
}
