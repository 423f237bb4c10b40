package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/agentlab/internal/llm"
	"github.com/rahul/agentlab/internal/observability"
	"github.com/rahul/agentlab/internal/tools"
	"github.com/rahul/agentlab/internal/workflow"
)

// Plan is the structured answer requested from the planner model.
type Plan struct {
	Steps []string `json:"steps" jsonschema:"description=Ordered step descriptions"`
}

// Planner decomposes a task into steps with one structured model call.
type Planner struct {
	LLM      llm.Structurer
	Prompts  *PromptManager
	Registry *tools.Registry
	MinSteps int
	MaxSteps int
}

func NewPlanner(s llm.Structurer, prompts *PromptManager, registry *tools.Registry, minSteps, maxSteps int) *Planner {
	return &Planner{
		LLM:      s,
		Prompts:  prompts,
		Registry: registry,
		MinSteps: minSteps,
		MaxSteps: maxSteps,
	}
}

var _ workflow.Decomposer = (*Planner)(nil)

func (p *Planner) Decompose(ctx context.Context, task string) ([]string, error) {
	observability.Planning(task)

	tmpl, err := p.Prompts.PlannerTemplate()
	if err != nil {
		return nil, err
	}
	data := PlannerData{Task: task, MinSteps: p.MinSteps, MaxSteps: p.MaxSteps}
	if p.Registry != nil {
		data.Tools = p.Registry.Describe()
	}
	var prompt strings.Builder
	if err := tmpl.Execute(&prompt, data); err != nil {
		return nil, fmt.Errorf("render planner prompt: %w", err)
	}

	var plan Plan
	if err := p.LLM.Generate(ctx, prompt.String(), &plan); err != nil {
		return nil, err
	}

	steps := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if p.MaxSteps > 0 && len(steps) > p.MaxSteps {
		log.Printf("[Planner] Model proposed %d steps, keeping the first %d", len(steps), p.MaxSteps)
		steps = steps[:p.MaxSteps]
	}
	return steps, nil
}
