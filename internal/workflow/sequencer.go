package workflow

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Options configures a Sequencer.
type Options struct {
	// CallTimeout bounds each delegated call. Zero means no per-call timeout.
	CallTimeout time.Duration
	// Agent is recorded on snapshots so resumed runs can be routed back.
	Agent        string
	Checkpointer Checkpointer
	Observers    []Observer
	// NewRunID generates run identifiers. Defaults to a timestamp based ID.
	NewRunID func() string
	// Now is the clock used for snapshot timestamps.
	Now func() time.Time
}

// Sequencer drives one run at a time through Planning -> Executing -> Done.
// A Sequencer holds no per-run state and may be shared.
type Sequencer struct {
	decomposer Decomposer
	executor   Executor
	opts       Options
}

// NewSequencer wires a decomposer and an executor into a sequencer.
func NewSequencer(decomposer Decomposer, executor Executor, opts Options) *Sequencer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string {
			return fmt.Sprintf("run-%d", time.Now().UnixNano())
		}
	}
	return &Sequencer{
		decomposer: decomposer,
		executor:   executor,
		opts:       opts,
	}
}

// Run is the in-memory record of a single workflow execution.
type Run struct {
	snap Snapshot
}

// Snapshot returns a copy of the run's current state.
func (r *Run) Snapshot() Snapshot {
	s := r.snap
	s.Steps = append([]string(nil), r.snap.Steps...)
	return s
}

func (r *Run) ID() string      { return r.snap.RunID }
func (r *Run) State() State    { return r.snap.State }
func (r *Run) Steps() []string { return append([]string(nil), r.snap.Steps...) }
func (r *Run) Cursor() int     { return r.snap.Cursor }

// Result is the output of the last executed step.
func (r *Run) Result() string { return r.snap.Result }

// Run plans the task and executes every step in order.
func (s *Sequencer) Run(ctx context.Context, task string) (*Run, error) {
	return s.RunWithID(ctx, s.opts.NewRunID(), "", task)
}

// RunWithID is Run with a caller-chosen run ID and originating chat.
func (s *Sequencer) RunWithID(ctx context.Context, runID, chatID, task string) (*Run, error) {
	now := s.opts.Now()
	run := &Run{snap: Snapshot{
		RunID:     runID,
		Agent:     s.opts.Agent,
		ChatID:    chatID,
		Task:      task,
		State:     StatePlanning,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	if err := s.save(ctx, run); err != nil {
		return run, err
	}
	return s.drive(ctx, run)
}

// Resume continues a run from a stored snapshot. Planning snapshots are
// re-planned, Executing snapshots re-run the step at the cursor and terminal
// snapshots are returned unchanged.
func (s *Sequencer) Resume(ctx context.Context, snap Snapshot) (*Run, error) {
	run := &Run{snap: snap}
	run.snap.Steps = append([]string(nil), snap.Steps...)
	switch snap.State {
	case StateDone, StateFailed:
		return run, nil
	case StatePlanning:
		run.snap.Steps = nil
		run.snap.Cursor = 0
	case StateExecuting:
		if snap.Cursor < 0 || snap.Cursor >= len(snap.Steps) {
			return run, fmt.Errorf("%w: cursor %d outside %d steps", ErrInvalidSnapshot, snap.Cursor, len(snap.Steps))
		}
	default:
		return run, fmt.Errorf("%w: unknown state %q", ErrInvalidSnapshot, snap.State)
	}
	log.Printf("[Sequencer] Resuming run %s in state %s at step %d", snap.RunID, snap.State, snap.Cursor+1)
	return s.drive(ctx, run)
}

func (s *Sequencer) drive(ctx context.Context, run *Run) (*Run, error) {
	ctx = WithTask(ctx, run.snap.Task)

	if run.snap.State == StatePlanning {
		steps, err := s.decompose(ctx, run.snap.Task)
		if err != nil {
			return run, s.fail(ctx, run, fmt.Errorf("decompose: %w", err))
		}
		if len(steps) == 0 {
			return run, s.fail(ctx, run, ErrEmptyPlan)
		}
		run.snap.Steps = steps
		run.snap.Cursor = 0
		if err := s.transition(ctx, run, StateExecuting); err != nil {
			return run, err
		}
	}

	for run.snap.State == StateExecuting {
		if err := ctx.Err(); err != nil {
			return run, s.fail(ctx, run, err)
		}

		step := run.snap.Steps[run.snap.Cursor]
		s.notifyStep(run)
		if err := s.save(ctx, run); err != nil {
			return run, err
		}

		result, err := s.execute(context.WithValue(ctx, resultKey{}, run.snap.Result), step)
		if err != nil {
			return run, s.fail(ctx, run, fmt.Errorf("step %d %q: %w", run.snap.Cursor+1, step, err))
		}
		run.snap.Result = result

		// Guard: loop back only while steps remain.
		if run.snap.Cursor+1 < len(run.snap.Steps) {
			run.snap.Cursor++
			continue
		}
		if err := s.transition(ctx, run, StateDone); err != nil {
			return run, err
		}
	}

	return run, nil
}

func (s *Sequencer) decompose(ctx context.Context, task string) ([]string, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.decomposer.Decompose(callCtx, task)
}

func (s *Sequencer) execute(ctx context.Context, step string) (string, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.executor.Execute(callCtx, step)
}

func (s *Sequencer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Sequencer) transition(ctx context.Context, run *Run, to State) error {
	from := run.snap.State
	run.snap.State = to
	run.snap.UpdatedAt = s.opts.Now()
	snap := run.Snapshot()
	for _, o := range s.opts.Observers {
		o.OnTransition(from, to, snap)
	}
	return s.save(ctx, run)
}

// fail records the run as failed and returns cause unchanged. A run whose
// parent context ended is interrupted instead: it keeps its Planning or
// Executing state at the current cursor so Resume can pick it up.
func (s *Sequencer) fail(ctx context.Context, run *Run, cause error) error {
	if ctx.Err() != nil {
		log.Printf("[Sequencer] Run %s interrupted at step %d: %v", run.snap.RunID, run.snap.Cursor+1, cause)
		if err := s.save(context.WithoutCancel(ctx), run); err != nil {
			log.Printf("[Sequencer] Failed to checkpoint run %s: %v", run.snap.RunID, err)
		}
		return cause
	}
	run.snap.Error = cause.Error()
	// The checkpoint must still be written when ctx itself is what failed.
	if err := s.transition(context.WithoutCancel(ctx), run, StateFailed); err != nil {
		log.Printf("[Sequencer] Failed to checkpoint run %s: %v", run.snap.RunID, err)
	}
	return cause
}

func (s *Sequencer) notifyStep(run *Run) {
	snap := run.Snapshot()
	for _, o := range s.opts.Observers {
		o.OnStep(run.snap.Cursor, run.snap.Steps[run.snap.Cursor], snap)
	}
}

func (s *Sequencer) save(ctx context.Context, run *Run) error {
	if s.opts.Checkpointer == nil {
		return nil
	}
	run.snap.UpdatedAt = s.opts.Now()
	if err := s.opts.Checkpointer.Save(ctx, run.Snapshot()); err != nil {
		return fmt.Errorf("checkpoint run %s: %w", run.snap.RunID, err)
	}
	return nil
}
