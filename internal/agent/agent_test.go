package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/agentlab/internal/governance"
	"github.com/rahul/agentlab/internal/llm"
	"github.com/rahul/agentlab/internal/llm/llmtest"
	"github.com/rahul/agentlab/internal/observability"
	"github.com/rahul/agentlab/internal/tools"
	"github.com/rahul/agentlab/internal/workflow"
)

type echoTool struct {
	calls []string
}

func (t *echoTool) Name() string               { return "echo" }
func (t *echoTool) Description() string        { return "Echo the text back." }
func (t *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (t *echoTool) Execute(ctx context.Context, input string) (string, error) {
	t.calls = append(t.calls, input)
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", err
	}
	return "echo: " + args.Text, nil
}

func newRegistry(t *echoTool) *tools.Registry {
	r := tools.NewRegistry()
	r.Register(t)
	return r
}

func TestPlanner_Decompose(t *testing.T) {
	model := llmtest.New(llmtest.Call("respond", `{"steps":[" Research topic ","","Draft outline","Write draft","Edit"]}`))
	p := NewPlanner(llm.NewClient(model, nil), NewPromptManager(""), newRegistry(&echoTool{}), 2, 3)

	steps, err := p.Decompose(context.Background(), "Write a short blog post about AI agents")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	want := []string{"Research topic", "Draft outline", "Write draft"}
	if strings.Join(steps, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, steps)
	}

	prompt, _ := model.LastPrompt()
	for _, s := range []string{"between 2 and 3", "- echo: Echo the text back.", "TASK: Write a short blog post"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("planner prompt missing %q:\n%s", s, prompt)
		}
	}
	if st := observability.Status(); st.Phase != observability.PhasePlanning || st.Step != "Write a short blog post" {
		t.Errorf("expected planning status for the task, got %+v", st)
	}
}

func TestPlanner_SchemaError(t *testing.T) {
	model := llmtest.New(llmtest.Text("1. research 2. write"))
	p := NewPlanner(llm.NewClient(model, nil), nil, nil, 1, 5)

	_, err := p.Decompose(context.Background(), "task")
	var schemaErr *llm.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Errorf("expected *llm.SchemaError, got %v", err)
	}
}

func TestExecutor_ToolLoop(t *testing.T) {
	tool := &echoTool{}
	model := llmtest.New(
		llmtest.Call("echo", `{"text":"hello"}`),
		llmtest.Text("  final answer  "),
	)
	var events bytes.Buffer
	e := NewExecutor(model, newRegistry(tool), governance.NewDefaultPolicyEngine(), nil,
		observability.NewLogger(&events, t.TempDir()), 5)

	ctx := workflow.WithTask(WithChatID(context.Background(), "chat-1"), "overall task")
	out, err := e.Execute(ctx, "say hello")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "final answer" {
		t.Errorf("unexpected answer %q", out)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(tool.calls))
	}

	// The second request must carry the tool result back to the model.
	second := model.Requests[1]
	last := second[len(second)-1]
	resp, ok := last.Parts[0].(llms.ToolCallResponse)
	if last.Role != llms.ChatMessageTypeTool || !ok || resp.Content != "echo: hello" {
		t.Errorf("tool result not fed back: %+v", last)
	}

	first := llmtest.PromptText(model.Requests[0])
	if !strings.Contains(first, "TASK: say hello") || !strings.Contains(first, "overall request: overall task") {
		t.Errorf("step context missing from prompt:\n%s", first)
	}
	if len(model.Options[0].Tools) != 1 {
		t.Errorf("expected tools offered to the model, got %d", len(model.Options[0].Tools))
	}
	for _, typ := range []string{`"type":"policy_check"`, `"type":"tool_call"`, `"type":"tool_result"`} {
		if !strings.Contains(events.String(), typ) {
			t.Errorf("missing %s event", typ)
		}
	}
}

func TestExecutor_PolicyDenies(t *testing.T) {
	tool := &echoTool{}
	model := llmtest.New(
		llmtest.Call("echo", `{"text":"secret"}`),
		llmtest.Text("could not echo"),
	)
	policy := governance.NewDefaultPolicyEngine()
	policy.DenyTool("echo")
	e := NewExecutor(model, newRegistry(tool), policy, nil, nil, 5)

	out, err := e.Execute(context.Background(), "echo secret")
	if err != nil {
		t.Fatal(err)
	}
	if out != "could not echo" || len(tool.calls) != 0 {
		t.Errorf("denied tool was executed: out=%q calls=%v", out, tool.calls)
	}
	last := model.Requests[1][len(model.Requests[1])-1]
	if resp := last.Parts[0].(llms.ToolCallResponse); !strings.Contains(resp.Content, "denied by policy") {
		t.Errorf("expected denial fed back, got %q", resp.Content)
	}
}

func TestExecutor_UnknownToolAndPreviousResult(t *testing.T) {
	model := llmtest.New(llmtest.Call("missing", `{}`), llmtest.Text("done"))
	e := NewExecutor(model, tools.NewRegistry(), nil, nil, nil, 5)

	seq := workflow.NewSequencer(
		workflow.DecomposerFunc(func(ctx context.Context, task string) ([]string, error) {
			return []string{"only step"}, nil
		}),
		e, workflow.Options{})
	run, err := seq.Run(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if run.Result() != "done" {
		t.Errorf("unexpected result %q", run.Result())
	}
	last := model.Requests[1][len(model.Requests[1])-1]
	if resp := last.Parts[0].(llms.ToolCallResponse); !strings.Contains(resp.Content, "Tool missing not found") {
		t.Errorf("unexpected tool response %q", resp.Content)
	}
}

func TestExecutor_MaxSteps(t *testing.T) {
	model := llmtest.New()
	model.Fallback = llmtest.Call("echo", `{"text":"again"}`)
	e := NewExecutor(model, newRegistry(&echoTool{}), nil, nil, nil, 3)

	_, err := e.Execute(context.Background(), "loop forever")
	if !errors.Is(err, ErrMaxToolSteps) {
		t.Errorf("expected ErrMaxToolSteps, got %v", err)
	}
	if model.Calls() != 3 {
		t.Errorf("expected 3 model calls, got %d", model.Calls())
	}
}

func TestExecutor_DelegateErrorPropagates(t *testing.T) {
	boom := errors.New("rate limited")
	e := NewExecutor(llmtest.New(llmtest.Reply{Err: boom}), nil, nil, nil, nil, 3)
	if _, err := e.Execute(context.Background(), "step"); !errors.Is(err, boom) {
		t.Errorf("expected delegate error, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(Agent{Key: "research", Description: "Answers with tools", Runner: RunnerFunc(func(ctx context.Context, in string) (string, error) {
		return "r:" + in, nil
	})})
	r.Register(Agent{Key: DefaultAgent, Description: "Plans then executes", Runner: RunnerFunc(func(ctx context.Context, in string) (string, error) {
		return "p:" + in, nil
	})})

	a, err := r.Get("")
	if err != nil || a.Key != DefaultAgent {
		t.Errorf("expected default agent, got %+v %v", a, err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
	info := r.Info()
	if len(info) != 2 || info[0].Key != DefaultAgent || info[1].Key != "research" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestPlanExecute_EndToEnd(t *testing.T) {
	model := llmtest.New(
		llmtest.Call("respond", `{"steps":["Research topic","Draft outline","Write draft","Edit"]}`),
		llmtest.Text("notes"),
		llmtest.Text("outline"),
		llmtest.Text("draft"),
		llmtest.Text("edited post"),
	)
	client := llm.NewClient(model, nil)
	seq := workflow.NewSequencer(
		NewPlanner(client, nil, nil, 3, 5),
		NewExecutor(model, nil, nil, nil, nil, 3),
		workflow.Options{Agent: DefaultAgent},
	)
	active := NewActiveRuns()
	pe := NewPlanExecute(seq, active)
	pe.NewRunID = func() string { return "run-fixed" }

	run, err := pe.Start(WithChatID(context.Background(), "chat-9"), "Write a short blog post about AI agents")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	snap := run.Snapshot()
	if snap.RunID != "run-fixed" || snap.ChatID != "chat-9" || snap.State != workflow.StateDone {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if run.Result() != "edited post" {
		t.Errorf("expected result of the last step, got %q", run.Result())
	}
	if !active.Begin("run-fixed") {
		t.Error("run should no longer be active")
	}
}

type memRunStore struct {
	mu    sync.Mutex
	runs  map[string]workflow.Snapshot
	order []string
}

func newMemRunStore(snaps ...workflow.Snapshot) *memRunStore {
	s := &memRunStore{runs: make(map[string]workflow.Snapshot)}
	for _, snap := range snaps {
		s.runs[snap.RunID] = snap
		s.order = append(s.order, snap.RunID)
	}
	return s
}

func (s *memRunStore) Save(ctx context.Context, snap workflow.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[snap.RunID] = snap
	return nil
}

func (s *memRunStore) Unfinished(ctx context.Context) ([]workflow.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []workflow.Snapshot
	for _, id := range s.order {
		if snap := s.runs[id]; !snap.State.Terminal() {
			out = append(out, snap)
		}
	}
	return out, nil
}

type recordingMessenger struct {
	sent map[string]string
}

func (m *recordingMessenger) Send(chatID, text string) error {
	m.sent[chatID] = text
	return nil
}

func TestScheduler_ResumeAll(t *testing.T) {
	store := newMemRunStore(
		workflow.Snapshot{RunID: "ok", ChatID: "c1", Task: "t", Steps: []string{"a", "b"}, Cursor: 1, State: workflow.StateExecuting},
		workflow.Snapshot{RunID: "broken", ChatID: "c2", Task: "t", Steps: []string{"a"}, Cursor: 4, State: workflow.StateExecuting},
		workflow.Snapshot{RunID: "busy", Task: "t", Steps: []string{"a"}, State: workflow.StateExecuting},
		workflow.Snapshot{RunID: "other", Agent: "marketing", Task: "t", State: workflow.StatePlanning},
	)
	var executed []string
	seq := workflow.NewSequencer(nil, workflow.ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		executed = append(executed, step)
		return "resumed " + step, nil
	}), workflow.Options{Checkpointer: store})

	active := NewActiveRuns()
	active.Begin("busy")
	gw := &recordingMessenger{sent: make(map[string]string)}
	s := NewScheduler(seq, store, gw, active, 0)

	if n := s.ResumeAll(context.Background()); n != 2 {
		t.Errorf("expected 2 runs attempted, got %d", n)
	}
	if len(executed) != 1 || executed[0] != "b" {
		t.Errorf("expected only step b re-run, got %v", executed)
	}
	if store.runs["ok"].State != workflow.StateDone {
		t.Errorf("expected ok run done, got %s", store.runs["ok"].State)
	}
	if store.runs["broken"].State != workflow.StateFailed {
		t.Errorf("expected broken run marked failed, got %s", store.runs["broken"].State)
	}
	if !strings.Contains(gw.sent["c1"], "resumed b") || !strings.Contains(gw.sent["c2"], "failed") {
		t.Errorf("unexpected notifications %v", gw.sent)
	}

	// Nothing left to resume on the next tick except the active run.
	if n := s.ResumeAll(context.Background()); n != 0 {
		t.Errorf("expected nothing to resume, got %d", n)
	}
}

func TestScheduler_ShutdownLeavesRunResumable(t *testing.T) {
	store := newMemRunStore(
		workflow.Snapshot{RunID: "long", ChatID: "c1", Task: "t", Steps: []string{"a", "b"}, State: workflow.StateExecuting},
	)
	ctx, cancel := context.WithCancel(context.Background())
	seq := workflow.NewSequencer(nil, workflow.ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		cancel()
		return "", ctx.Err()
	}), workflow.Options{Checkpointer: store})
	gw := &recordingMessenger{sent: make(map[string]string)}

	NewScheduler(seq, store, gw, NewActiveRuns(), 0).ResumeAll(ctx)

	if got := store.runs["long"]; got.State != workflow.StateExecuting || got.Cursor != 0 {
		t.Errorf("expected run left executing at step a, got %s at %d", got.State, got.Cursor)
	}
	if len(gw.sent) != 0 {
		t.Errorf("shutdown should not notify chats, got %v", gw.sent)
	}
}

func TestResearch_InvokesExecutorOnce(t *testing.T) {
	calls := 0
	r := &Research{Executor: workflow.ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		calls++
		if task, ok := workflow.TaskFromContext(ctx); !ok || task != step {
			t.Errorf("expected the question as task, got %q", task)
		}
		return "answer to " + step, nil
	})}

	out, err := r.Invoke(context.Background(), "what is flyt?")
	if err != nil || out != "answer to what is flyt?" || calls != 1 {
		t.Errorf("unexpected result %q %v after %d calls", out, err, calls)
	}
}

func TestVacationHouseSteps(t *testing.T) {
	steps := VacationHouseSteps("lake house near Asheville under $600k")
	if len(steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(steps))
	}
	for _, i := range []int{0, 1, 4} {
		if !strings.Contains(steps[i], "near Asheville under $600k") {
			t.Errorf("step %d should carry the request: %s", i+1, steps[i])
		}
	}
	if !strings.Contains(steps[2], "read_page") || !strings.Contains(steps[3], "coffee shops") {
		t.Errorf("unexpected verify/business steps: %q / %q", steps[2], steps[3])
	}
}

func TestVacationHouse_RunsFixedPipeline(t *testing.T) {
	store := newMemRunStore()
	var executed []string
	seq := workflow.NewSequencer(VacationHousePlan(), workflow.ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		executed = append(executed, step)
		if len(executed) == 2 && workflow.PreviousResult(ctx) != "out 1" {
			t.Errorf("second step should see the first result, got %q", workflow.PreviousResult(ctx))
		}
		return fmt.Sprintf("out %d", len(executed)), nil
	}), workflow.Options{Agent: VacationHouseAgent, Checkpointer: store})

	v := &VacationHouse{PlanExecute: NewPlanExecute(seq, NewActiveRuns())}
	v.NewRunID = func() string { return "vh-1" }

	out, err := v.Invoke(context.Background(), `{"query":"cabin in Vermont"}`)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "out 5" || len(executed) != 5 {
		t.Errorf("expected 5 steps and the summary as output, got %q after %d steps", out, len(executed))
	}
	if !strings.Contains(executed[0], "cabin in Vermont") {
		t.Errorf("first step should carry the query: %s", executed[0])
	}
	if snap := store.runs["vh-1"]; snap.Agent != VacationHouseAgent || snap.State != workflow.StateDone {
		t.Errorf("unexpected checkpoint %+v", snap)
	}

	if _, err := v.Invoke(context.Background(), `{"query":"  "}`); err == nil {
		t.Error("expected error for an empty query")
	}
}

func TestScheduler_RoutesRunsByAgent(t *testing.T) {
	store := newMemRunStore(
		workflow.Snapshot{RunID: "vh", Agent: VacationHouseAgent, Task: "cabin", State: workflow.StatePlanning},
		workflow.Snapshot{RunID: "mk", Agent: "marketing", Task: "t", State: workflow.StatePlanning},
	)
	var executed []string
	vacation := workflow.NewSequencer(VacationHousePlan(), workflow.ExecutorFunc(func(ctx context.Context, step string) (string, error) {
		executed = append(executed, step)
		return "done", nil
	}), workflow.Options{Agent: VacationHouseAgent, Checkpointer: store})
	planner := workflow.DecomposerFunc(func(ctx context.Context, task string) ([]string, error) {
		t.Error("default sequencer should not plan a vacation house run")
		return nil, nil
	})
	s := NewScheduler(workflow.NewSequencer(planner, nil, workflow.Options{}), store, nil, nil, 0)
	s.Handle(VacationHouseAgent, vacation)

	if n := s.ResumeAll(context.Background()); n != 1 {
		t.Errorf("expected only the vacation house run attempted, got %d", n)
	}
	if len(executed) != 5 || store.runs["vh"].State != workflow.StateDone {
		t.Errorf("expected the fixed pipeline to finish, executed %d, state %s", len(executed), store.runs["vh"].State)
	}
	if store.runs["mk"].State != workflow.StatePlanning {
		t.Errorf("runs without a sequencer must be left alone, got %s", store.runs["mk"].State)
	}
}
