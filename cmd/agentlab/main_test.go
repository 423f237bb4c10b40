package main

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/agentlab/internal/agent"
	"github.com/rahul/agentlab/internal/governance"
	"github.com/rahul/agentlab/internal/workflow"
	"github.com/rahul/agentlab/pkg/config"
)

func TestRenderConversation(t *testing.T) {
	if got := renderConversation(nil, "hi"); got != "hi" {
		t.Errorf("expected bare prompt, got %q", got)
	}

	history := []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart("what is go?")}},
		{Role: llms.ChatMessageTypeAI, Parts: []llms.ContentPart{llms.TextPart("A language.")}},
	}
	got := renderConversation(history, "who made it?")
	for _, want := range []string{"User: what is go?", "Assistant: A language.", "User: who made it?\nAssistant:"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := shorten("a much longer task description", 10); got != "a much ..." {
		t.Errorf("unexpected %q", got)
	}
}

func TestBuildPolicy(t *testing.T) {
	cfg := config.Default().Governance
	cfg.DeniedTools = []string{"workspace"}
	cfg.DeniedPatterns = []string{`(?i)password`}

	gov, err := buildPolicy(cfg)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		tool, args string
		want       governance.Effect
	}{
		{"workspace", `{}`, governance.EffectDeny},
		{"web_search", `{"query":"my Password"}`, governance.EffectDeny},
		{"read_page", `{"url":"http://169.254.169.254/latest"}`, governance.EffectDeny},
		{"read_page", `{"url":"https://go.dev"}`, governance.EffectAllow},
	}
	for _, tt := range tests {
		res, err := gov.Evaluate(context.Background(), governance.Request{Tool: tt.tool, Arguments: tt.args})
		if err != nil {
			t.Fatal(err)
		}
		if res.Effect != tt.want {
			t.Errorf("%s %s: expected %s, got %s", tt.tool, tt.args, tt.want, res.Effect)
		}
	}

	if _, err := buildPolicy(config.GovernanceConfig{DeniedPatterns: []string{"("}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"run", "resume", "runs", "extract", "search", "marketing", "colleges", "chat", "serve", "gateway", "agents", "config"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %s not registered", name)
		}
	}
}

func TestSequencerFor(t *testing.T) {
	plan := workflow.NewSequencer(nil, nil, workflow.Options{})
	vacation := workflow.NewSequencer(agent.VacationHousePlan(), nil, workflow.Options{})
	a := &app{sequencers: map[string]*workflow.Sequencer{
		agent.DefaultAgent:       plan,
		agent.VacationHouseAgent: vacation,
	}}

	tests := []struct {
		key  string
		want *workflow.Sequencer
	}{
		{"", plan},
		{agent.DefaultAgent, plan},
		{agent.VacationHouseAgent, vacation},
		{"marketing", nil},
	}
	for _, tt := range tests {
		got, err := a.sequencerFor(tt.key)
		if got != tt.want || (tt.want == nil) != (err != nil) {
			t.Errorf("sequencerFor(%q) = %p, %v", tt.key, got, err)
		}
	}
}
