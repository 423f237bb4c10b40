package marketing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/schema"

	"github.com/rahul/agentlab/internal/llm"
	"github.com/rahul/agentlab/internal/llm/llmtest"
	"github.com/rahul/agentlab/internal/search"
)

type fakeLoader struct {
	pages map[string]string
	urls  []string
}

func (l *fakeLoader) Load(ctx context.Context, rawURL string) ([]schema.Document, error) {
	l.urls = append(l.urls, rawURL)
	text, ok := l.pages[rawURL]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return []schema.Document{{PageContent: text, Metadata: map[string]any{"source": rawURL}}}, nil
}

const siteReply = `{"app_name":"Shipfast","description":"Boilerplate for SaaS","key_features":["auth","billing"],"value_proposition":"Launch in days"}`

func newAgent(model *llmtest.Model, l *fakeLoader, s search.Searcher) *Agent {
	a := New(llm.NewClient(model, nil), l, s)
	a.Wait = 0
	return a
}

func TestParseInput(t *testing.T) {
	in, err := ParseInput("https://shipfast.dev")
	if err != nil || in.AppURL != "https://shipfast.dev" || in.MaxPersonas != DefaultMaxPersonas {
		t.Errorf("bare url: %+v %v", in, err)
	}

	in, err = ParseInput(`{"app_url":"https://a.dev","competitor_hint":"boilerplates","max_personas":2}`)
	if err != nil || in.CompetitorHint != "boilerplates" || in.MaxPersonas != 2 {
		t.Errorf("json input: %+v %v", in, err)
	}

	if _, err := ParseInput(`{"competitor_hint":"x"}`); err == nil {
		t.Error("expected error without app_url")
	}
	if _, err := ParseInput(`{bad json`); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestAgent_RunWithCompetitorHint(t *testing.T) {
	model := llmtest.New(
		llmtest.Call("respond", siteReply),
		llmtest.Call("respond", `{"personas":[{"name":"Indie hacker","description":"Ships alone"},{"name":"Agency","description":"Builds for clients"},{"name":"Student","description":"Learning"}]}`),
		llmtest.Call("respond", `{"keywords":["saas boilerplate","nextjs starter"]}`),
		llmtest.Call("respond", `{"competitors":[{"name":"Supastarter","url":"https://supastarter.dev"},{"name":"Makerkit","url":"https://makerkit.dev"}]}`),
		llmtest.Call("respond", `{"competitors":[{"name":"Makerkit","url":"https://makerkit.dev","description":"SaaS kit"}]}`),
		llmtest.Call("respond", `{"strategies":["Post a launch thread on X"]}`),
		llmtest.Call("respond", `{"subreddits":["r/SaaS","r/indiehackers"]}`),
	)
	l := &fakeLoader{pages: map[string]string{
		"https://shipfast.dev":           "Shipfast is a boilerplate for SaaS apps.",
		"https://lists.example/starters": "Supastarter and Makerkit are popular kits.",
	}}
	var query string
	s := search.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		query = q
		return "Title: Best starters\nDescription: A list\nURL: https://lists.example/starters\n\n" +
			"Title: Broken\nDescription: gone\nURL: https://broken.example", nil
	})

	a := newAgent(model, l, s)
	plan, err := a.Run(context.Background(), Input{AppURL: "https://shipfast.dev", CompetitorHint: "saas boilerplates", MaxPersonas: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if model.Calls() != 7 {
		t.Errorf("expected 7 model calls, got %d", model.Calls())
	}
	if !strings.Contains(query, "saas boilerplates") {
		t.Errorf("unexpected search query %q", query)
	}
	if plan.AppName != "Shipfast" || plan.AppURL != "https://shipfast.dev" {
		t.Errorf("unexpected site fields %+v", plan)
	}
	if len(plan.Personas) != 2 {
		t.Errorf("personas not truncated to max: %d", len(plan.Personas))
	}
	if len(plan.Keywords) != 2 || len(plan.Competitors) != 1 || plan.Competitors[0].Name != "Makerkit" {
		t.Errorf("unexpected keywords/competitors %+v %+v", plan.Keywords, plan.Competitors)
	}
	if len(plan.MarketingSuggestions) != 1 || len(plan.Subreddits) != 2 {
		t.Errorf("unexpected suggestions %+v %+v", plan.MarketingSuggestions, plan.Subreddits)
	}
	if len(l.urls) != 3 {
		t.Errorf("expected the site and both hits to be loaded, got %v", l.urls)
	}

	prompt, _ := model.LastPrompt()
	if !strings.Contains(prompt, "Makerkit") {
		t.Errorf("subreddit prompt should mention competitors:\n%s", prompt)
	}
}

func TestAgent_InvokeWithoutHint(t *testing.T) {
	model := llmtest.New(
		llmtest.Call("respond", siteReply),
		llmtest.Call("respond", `{"personas":[{"name":"Indie hacker","description":"Ships alone"}]}`),
		llmtest.Call("respond", `{"keywords":["saas boilerplate"]}`),
		llmtest.Call("respond", `{"strategies":["Write a comparison post"]}`),
		llmtest.Call("respond", `{"subreddits":["r/SaaS"]}`),
	)
	l := &fakeLoader{pages: map[string]string{"https://shipfast.dev": "Shipfast is a boilerplate."}}
	s := search.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		t.Error("search should not run without a hint")
		return "", nil
	})

	out, err := newAgent(model, l, s).Invoke(context.Background(), "https://shipfast.dev")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if model.Calls() != 5 {
		t.Errorf("expected 5 model calls, got %d", model.Calls())
	}

	var plan Plan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("output is not a plan: %v", err)
	}
	if len(plan.Competitors) != 0 || plan.Subreddits[0] != "r/SaaS" {
		t.Errorf("unexpected plan %+v", plan)
	}
}

func TestAgent_AnalyzeFailureStopsFlow(t *testing.T) {
	model := llmtest.New()
	l := &fakeLoader{pages: map[string]string{}}

	a := newAgent(model, l, nil)
	_, err := a.Run(context.Background(), Input{AppURL: "https://missing.example"})
	if err == nil || !strings.Contains(err.Error(), "404 not found") {
		t.Fatalf("expected loader error, got %v", err)
	}
	if len(l.urls) != a.MaxRetries {
		t.Errorf("expected %d attempts, got %d", a.MaxRetries, len(l.urls))
	}
	if model.Calls() != 0 {
		t.Errorf("model should not be called, got %d", model.Calls())
	}
}
