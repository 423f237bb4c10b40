package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu          sync.Mutex
	transitions []string
	steps       []string
	violations  []string
}

func (r *recorder) OnTransition(from, to State, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, fmt.Sprintf("%s->%s", from, to))
	r.check(snap)
}

func (r *recorder) OnStep(cursor int, step string, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
	if cursor != snap.Cursor {
		r.violations = append(r.violations, fmt.Sprintf("cursor arg %d != snapshot cursor %d", cursor, snap.Cursor))
	}
	r.check(snap)
}

func (r *recorder) check(snap Snapshot) {
	if snap.State != StateExecuting {
		return
	}
	if snap.Cursor < 0 || snap.Cursor >= len(snap.Steps) {
		r.violations = append(r.violations, fmt.Sprintf("cursor %d outside [0,%d)", snap.Cursor, len(snap.Steps)))
	}
}

type memCheckpointer struct {
	mu    sync.Mutex
	saved []Snapshot
}

func (m *memCheckpointer) Save(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memCheckpointer) last() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[len(m.saved)-1]
}

func staticPlan(steps ...string) Decomposer {
	return DecomposerFunc(func(ctx context.Context, task string) ([]string, error) {
		return steps, nil
	})
}

func echoExecutor(calls *[]string) Executor {
	return ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		*calls = append(*calls, step)
		return "result of " + step, nil
	})
}

func TestSequencer_ExecutesEveryStepOnce(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d steps", n), func(t *testing.T) {
			var steps []string
			for i := 0; i < n; i++ {
				steps = append(steps, fmt.Sprintf("step %d", i+1))
			}
			var calls []string
			rec := &recorder{}
			seq := NewSequencer(staticPlan(steps...), echoExecutor(&calls), Options{Observers: []Observer{rec}})

			run, err := seq.Run(context.Background(), "task")
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if len(calls) != n {
				t.Errorf("expected %d executor calls, got %d", n, len(calls))
			}
			if run.State() != StateDone {
				t.Errorf("expected state done, got %s", run.State())
			}
			if len(rec.violations) > 0 {
				t.Errorf("cursor invariant violated: %v", rec.violations)
			}
		})
	}
}

func TestSequencer_SingleStepTransitions(t *testing.T) {
	var calls []string
	rec := &recorder{}
	seq := NewSequencer(staticPlan("only"), echoExecutor(&calls), Options{Observers: []Observer{rec}})

	run, err := seq.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"planning->executing", "executing->done"}
	if fmt.Sprint(rec.transitions) != fmt.Sprint(want) {
		t.Errorf("expected transitions %v, got %v", want, rec.transitions)
	}
	if len(calls) != 1 {
		t.Errorf("expected one executor call, got %d", len(calls))
	}
	if run.Result() != "result of only" {
		t.Errorf("unexpected result %q", run.Result())
	}
}

func TestSequencer_EmptyPlanIsAnError(t *testing.T) {
	var calls []string
	ckpt := &memCheckpointer{}
	seq := NewSequencer(staticPlan(), echoExecutor(&calls), Options{Checkpointer: ckpt})

	run, err := seq.Run(context.Background(), "task")
	if !errors.Is(err, ErrEmptyPlan) {
		t.Fatalf("expected ErrEmptyPlan, got %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("executor must not be called for an empty plan, got %d calls", len(calls))
	}
	if run.State() != StateFailed {
		t.Errorf("expected failed state, got %s", run.State())
	}
	if got := ckpt.last(); got.State != StateFailed || got.Error == "" {
		t.Errorf("expected failed checkpoint with error, got %+v", got)
	}
}

func TestSequencer_BlogPostScenario(t *testing.T) {
	task := "Write a short blog post about AI agents"
	plan := []string{"Research topic", "Draft outline", "Write draft", "Edit"}

	var seenTask string
	decomposer := DecomposerFunc(func(ctx context.Context, got string) ([]string, error) {
		seenTask = got
		return plan, nil
	})

	var calls []string
	executor := ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		calls = append(calls, step)
		if task, _ := TaskFromContext(ctx); task != "Write a short blog post about AI agents" {
			t.Errorf("executor saw task %q", task)
		}
		return fmt.Sprintf("output #%d for %s", len(calls), step), nil
	})

	run, err := NewSequencer(decomposer, executor, Options{}).Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if seenTask != task {
		t.Errorf("decomposer received %q", seenTask)
	}
	if fmt.Sprint(calls) != fmt.Sprint(plan) {
		t.Errorf("expected calls in order %v, got %v", plan, calls)
	}
	if run.Result() != "output #4 for Edit" {
		t.Errorf("final result should be the output for Edit, got %q", run.Result())
	}
	if run.State() != StateDone {
		t.Errorf("expected done, got %s", run.State())
	}
}

func TestSequencer_PropagatesExecutorError(t *testing.T) {
	boom := errors.New("rate limited")
	var calls int
	executor := ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		calls++
		if step == "b" {
			return "", boom
		}
		return "ok", nil
	})

	run, err := NewSequencer(staticPlan("a", "b", "c"), executor, Options{}).Run(context.Background(), "task")
	if !errors.Is(err, boom) {
		t.Fatalf("expected delegate error to propagate, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected run to stop after the failing step, got %d calls", calls)
	}
	if run.State() != StateFailed || run.Cursor() != 1 {
		t.Errorf("expected failed at cursor 1, got %s at %d", run.State(), run.Cursor())
	}
}

func TestSequencer_PropagatesDecomposerError(t *testing.T) {
	boom := errors.New("auth failed")
	decomposer := DecomposerFunc(func(ctx context.Context, task string) ([]string, error) {
		return nil, boom
	})
	var calls []string
	_, err := NewSequencer(decomposer, echoExecutor(&calls), Options{}).Run(context.Background(), "task")
	if !errors.Is(err, boom) {
		t.Fatalf("expected decomposer error, got %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("executor should not run, got %v", calls)
	}
}

func TestSequencer_CallTimeout(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	seq := NewSequencer(staticPlan("slow"), executor, Options{CallTimeout: 10 * time.Millisecond})

	_, err := seq.Run(context.Background(), "task")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSequencer_CancelledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	executor := ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		calls++
		cancel()
		return "done", nil
	})

	run, err := NewSequencer(staticPlan("a", "b", "c"), executor, Options{}).Run(ctx, "task")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one call before cancellation, got %d", calls)
	}
	if run.State() != StateExecuting || run.Cursor() != 1 {
		t.Errorf("expected interrupted run executing at cursor 1, got %s at %d", run.State(), run.Cursor())
	}
}

func TestSequencer_ResumesAfterCancellationMidStep(t *testing.T) {
	ckpt := &memCheckpointer{}
	ctx, cancel := context.WithCancel(context.Background())
	interrupted := ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		if step == "b" {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "result of " + step, nil
	})
	seq := NewSequencer(staticPlan("a", "b", "c"), interrupted, Options{
		Checkpointer: ckpt,
		NewRunID:     func() string { return "run-9" },
	})

	if _, err := seq.Run(ctx, "task"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	stored := ckpt.last()
	if stored.State != StateExecuting || stored.Cursor != 1 || stored.Result != "result of a" {
		t.Fatalf("expected executing checkpoint at b, got %s at %d with %q", stored.State, stored.Cursor, stored.Result)
	}
	if stored.Error != "" {
		t.Errorf("interrupted run should carry no error, got %q", stored.Error)
	}

	var calls []string
	resumed := NewSequencer(staticPlan("unused"), echoExecutor(&calls), Options{Checkpointer: ckpt})
	run, err := resumed.Resume(context.Background(), stored)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if fmt.Sprint(calls) != fmt.Sprint([]string{"b", "c"}) {
		t.Errorf("expected to resume at b, got %v", calls)
	}
	if run.State() != StateDone || ckpt.last().State != StateDone {
		t.Errorf("expected done, got run %s checkpoint %s", run.State(), ckpt.last().State)
	}
}

func TestSequencer_CallTimeoutStillFails(t *testing.T) {
	ckpt := &memCheckpointer{}
	executor := ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	seq := NewSequencer(staticPlan("slow"), executor, Options{Checkpointer: ckpt, CallTimeout: 10 * time.Millisecond})

	run, err := seq.Run(context.Background(), "task")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if run.State() != StateFailed || ckpt.last().State != StateFailed {
		t.Errorf("a timed out call is a step failure, got %s", run.State())
	}
}

func TestSequencer_CheckpointsEveryStep(t *testing.T) {
	ckpt := &memCheckpointer{}
	var calls []string
	seq := NewSequencer(staticPlan("a", "b"), echoExecutor(&calls), Options{
		Checkpointer: ckpt,
		NewRunID:     func() string { return "run-1" },
	})

	if _, err := seq.Run(context.Background(), "task"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var states []State
	for _, s := range ckpt.saved {
		if s.RunID != "run-1" {
			t.Errorf("unexpected run id %q", s.RunID)
		}
		states = append(states, s.State)
	}
	// initial, ->executing, before a, before b, ->done
	want := []State{StatePlanning, StateExecuting, StateExecuting, StateExecuting, StateDone}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Errorf("expected checkpoint states %v, got %v", want, states)
	}
	if final := ckpt.last(); final.Result != "result of b" || final.Cursor != 1 {
		t.Errorf("unexpected final checkpoint %+v", final)
	}
}

func TestSequencer_ResumeFromCursor(t *testing.T) {
	var calls []string
	decomposer := DecomposerFunc(func(ctx context.Context, task string) ([]string, error) {
		t.Error("decomposer must not run when resuming an executing snapshot")
		return nil, nil
	})
	seq := NewSequencer(decomposer, echoExecutor(&calls), Options{})

	snap := Snapshot{
		RunID:  "run-7",
		Task:   "task",
		Steps:  []string{"a", "b", "c"},
		Cursor: 1,
		Result: "result of a",
		State:  StateExecuting,
	}
	run, err := seq.Resume(context.Background(), snap)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if fmt.Sprint(calls) != fmt.Sprint([]string{"b", "c"}) {
		t.Errorf("expected to resume at b, got %v", calls)
	}
	if run.State() != StateDone || run.Result() != "result of c" {
		t.Errorf("unexpected run end state %s / %q", run.State(), run.Result())
	}
}

func TestSequencer_ResumeRejectsBadCursor(t *testing.T) {
	var calls []string
	seq := NewSequencer(staticPlan("a"), echoExecutor(&calls), Options{})
	_, err := seq.Resume(context.Background(), Snapshot{Steps: []string{"a"}, Cursor: 3, State: StateExecuting})
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}

func TestSequencer_ResumeTerminalIsNoop(t *testing.T) {
	var calls []string
	seq := NewSequencer(staticPlan("a"), echoExecutor(&calls), Options{})
	run, err := seq.Resume(context.Background(), Snapshot{Steps: []string{"a"}, State: StateDone, Result: "x"})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if len(calls) != 0 || run.Result() != "x" {
		t.Errorf("terminal snapshot should be returned unchanged")
	}
}

func TestSequencer_RepeatedStepsAreIndependent(t *testing.T) {
	var n int
	executor := ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		n++
		return fmt.Sprintf("%s #%d", step, n), nil
	})
	run, err := NewSequencer(staticPlan("same", "same"), executor, Options{}).Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n != 2 || run.Result() != "same #2" {
		t.Errorf("expected two independent calls, got n=%d result=%q", n, run.Result())
	}
}

func TestSequencer_PassesTaskAndPreviousResult(t *testing.T) {
	var seen []string
	exec := ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		task, _ := TaskFromContext(ctx)
		seen = append(seen, fmt.Sprintf("%s|%s|%s", task, step, PreviousResult(ctx)))
		return step + "!", nil
	})

	seq := NewSequencer(staticPlan("a", "b"), exec, Options{})
	if _, err := seq.Run(context.Background(), "task"); err != nil {
		t.Fatal(err)
	}

	want := []string{"task|a|", "task|b|a!"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], seen[i])
		}
	}
}
