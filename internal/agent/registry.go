package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/rahul/agentlab/internal/workflow"
)

// DefaultAgent is used when a request names no agent.
const DefaultAgent = "plan-execute"

// ErrUnknownAgent is returned for agent keys that are not registered.
var ErrUnknownAgent = errors.New("agent: unknown agent")

// Runner answers a request end to end.
type Runner interface {
	Invoke(ctx context.Context, input string) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, input string) (string, error)

func (f RunnerFunc) Invoke(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

type Agent struct {
	Key         string
	Description string
	Runner      Runner
}

// Info is the public description of an agent.
type Info struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Registry manages the set of available agents.
type Registry struct {
	Agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{Agents: make(map[string]Agent)}
}

func (r *Registry) Register(a Agent) {
	r.Agents[a.Key] = a
}

// Get returns the agent for key, or the default agent when key is empty.
func (r *Registry) Get(key string) (Agent, error) {
	if key == "" {
		key = DefaultAgent
	}
	a, ok := r.Agents[key]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %q", ErrUnknownAgent, key)
	}
	return a, nil
}

// Info lists the registered agents sorted by key.
func (r *Registry) Info() []Info {
	infos := make([]Info, 0, len(r.Agents))
	for _, a := range r.Agents {
		infos = append(infos, Info{Key: a.Key, Description: a.Description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

type chatIDKey struct{}

// WithChatID tags ctx with the chat a request came from.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

func ChatIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(chatIDKey{}).(string)
	return id
}

// PlanExecute runs the input as a task through the sequencer.
type PlanExecute struct {
	Sequencer *workflow.Sequencer
	Active    *ActiveRuns
	NewRunID  func() string
}

func NewPlanExecute(seq *workflow.Sequencer, active *ActiveRuns) *PlanExecute {
	return &PlanExecute{Sequencer: seq, Active: active, NewRunID: uuid.NewString}
}

func (p *PlanExecute) Invoke(ctx context.Context, input string) (string, error) {
	run, err := p.Start(ctx, input)
	if err != nil {
		return "", err
	}
	return run.Result(), nil
}

// Start is Invoke returning the whole run record.
func (p *PlanExecute) Start(ctx context.Context, input string) (*workflow.Run, error) {
	id := p.NewRunID()
	if p.Active != nil {
		p.Active.Begin(id)
		defer p.Active.End(id)
	}
	run, err := p.Sequencer.RunWithID(ctx, id, ChatIDFromContext(ctx), input)
	if err != nil {
		return run, fmt.Errorf("run %s: %w", id, err)
	}
	return run, nil
}

// Research answers the input with a single executor call, without planning.
type Research struct {
	Executor workflow.Executor
}

func (r *Research) Invoke(ctx context.Context, input string) (string, error) {
	return r.Executor.Execute(workflow.WithTask(ctx, input), input)
}
