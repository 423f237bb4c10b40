// Package workflow implements the linear plan -> execute state machine.
//
// A run decomposes a task into an ordered list of steps once, then feeds each
// step to an executor in order. The cursor only moves forward and the run ends
// after the last step. Reasoning is delegated to the Decomposer and Executor
// collaborators; this package owns sequencing, cursor bookkeeping and
// checkpoint hand-off only.
package workflow

import (
	"context"
	"errors"
	"time"
)

// State is the position of a run in the plan -> execute machine.
type State string

const (
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateDone      State = "done"
	// StateFailed marks a run stopped by an error. Only used for checkpoint records.
	StateFailed State = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ErrEmptyPlan is returned when the decomposer produced zero steps.
var ErrEmptyPlan = errors.New("workflow: decomposer returned an empty plan")

// ErrInvalidSnapshot is returned by Resume for snapshots that break the cursor invariant.
var ErrInvalidSnapshot = errors.New("workflow: invalid snapshot")

// Decomposer turns a task into an ordered list of step descriptions.
type Decomposer interface {
	Decompose(ctx context.Context, task string) ([]string, error)
}

// Executor produces the textual result for a single step.
type Executor interface {
	Execute(ctx context.Context, step string) (string, error)
}

// DecomposerFunc adapts a function to Decomposer.
type DecomposerFunc func(ctx context.Context, task string) ([]string, error)

func (f DecomposerFunc) Decompose(ctx context.Context, task string) ([]string, error) {
	return f(ctx, task)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, step string) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, step string) (string, error) {
	return f(ctx, step)
}

// Snapshot is everything needed to restore a run after a restart.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Agent     string    `json:"agent,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	Task      string    `json:"task"`
	Steps     []string  `json:"steps"`
	Cursor    int       `json:"cursor"`
	Result    string    `json:"result"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Checkpointer durably records snapshots. Save is called after every
// transition and before every step.
type Checkpointer interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Observer is notified of run progress. Implementations must not block.
type Observer interface {
	OnTransition(from, to State, snap Snapshot)
	OnStep(cursor int, step string, snap Snapshot)
}

type (
	taskKey   struct{}
	resultKey struct{}
)

// WithTask stores the overall task in ctx for executors that need it.
func WithTask(ctx context.Context, task string) context.Context {
	return context.WithValue(ctx, taskKey{}, task)
}

// TaskFromContext returns the task stored by WithTask.
func TaskFromContext(ctx context.Context) (string, bool) {
	task, ok := ctx.Value(taskKey{}).(string)
	return task, ok
}

// PreviousResult returns the result of the step executed before the current
// one. It is empty for the first step.
func PreviousResult(ctx context.Context) string {
	r, _ := ctx.Value(resultKey{}).(string)
	return r
}
