package marketing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/flyt"

	"github.com/rahul/agentlab/internal/extract"
	"github.com/rahul/agentlab/internal/llm"
	"github.com/rahul/agentlab/internal/loader"
	"github.com/rahul/agentlab/internal/search"
)

// Shared store keys.
const (
	keyInput         = "input"
	keySite          = "site"
	keyPersonas      = "personas"
	keyKeywords      = "keywords"
	keySearchResults = "search_results"
	keyCompetitors   = "competitors"
	keySuggestions   = "marketing_suggestions"
	keySubreddits    = "subreddits"
	keyPlan          = "plan"
)

// Agent runs the marketing flow. A new flow is built per run, so one Agent
// may serve concurrent requests.
type Agent struct {
	LLM       llm.Structurer
	Loader    loader.Loader
	Searcher  search.Searcher
	Extractor *extract.Extractor
	// MaxRetries is the number of attempts for each model-backed node.
	MaxRetries int
	Wait       time.Duration
}

func New(s llm.Structurer, l loader.Loader, searcher search.Searcher) *Agent {
	return &Agent{
		LLM:        s,
		Loader:     l,
		Searcher:   searcher,
		Extractor:  extract.New(s),
		MaxRetries: 2,
		Wait:       time.Second,
	}
}

// Invoke parses input, runs the flow and returns the plan as JSON.
func (a *Agent) Invoke(ctx context.Context, input string) (string, error) {
	in, err := ParseInput(input)
	if err != nil {
		return "", err
	}
	plan, err := a.Run(ctx, in)
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (a *Agent) Run(ctx context.Context, in Input) (*Plan, error) {
	if in.MaxPersonas <= 0 {
		in.MaxPersonas = DefaultMaxPersonas
	}
	shared := flyt.NewSharedStore()
	shared.Set(keyInput, in)

	if err := a.flow().Run(ctx, shared); err != nil {
		return nil, fmt.Errorf("marketing: %w", err)
	}
	plan, ok := get[*Plan](shared, keyPlan)
	if !ok {
		return nil, fmt.Errorf("marketing: flow finished without a plan")
	}
	return plan, nil
}

func (a *Agent) flow() *flyt.Flow {
	analyze := a.analyzeSiteNode()
	personas := a.createPersonasNode()
	keywords := a.extractKeywordsNode()
	searchNode := a.searchCompetitorsNode()
	finalize := a.finalizeCompetitorsNode()
	suggestions := a.listNode(keySuggestions, suggestionsPrompt, func() any { return &strategyList{} },
		func(v any) []string { return v.(*strategyList).Strategies })
	subreddits := a.listNode(keySubreddits, subredditsPrompt, func() any { return &subredditList{} },
		func(v any) []string { return v.(*subredditList).Subreddits })
	end := endNode()

	flow := flyt.NewFlow(analyze)
	flow.Connect(analyze, flyt.DefaultAction, personas)
	flow.Connect(personas, flyt.DefaultAction, keywords)
	flow.Connect(keywords, flyt.DefaultAction, searchNode)
	flow.Connect(searchNode, flyt.DefaultAction, finalize)
	flow.Connect(finalize, flyt.DefaultAction, suggestions)
	flow.Connect(suggestions, flyt.DefaultAction, subreddits)
	flow.Connect(subreddits, flyt.DefaultAction, end)
	return flow
}

func (a *Agent) retryOpts() []any {
	attempts := a.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	return []any{flyt.WithMaxRetries(attempts), flyt.WithWait(a.Wait)}
}

func (a *Agent) analyzeSiteNode() flyt.Node {
	return flyt.NewNode(append(a.retryOpts(),
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			in, _ := get[Input](shared, keyInput)
			return in.AppURL, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			url := prepResult.(string)
			log.Printf("[Marketing] Analyzing site %s", url)
			var info extract.SiteInfo
			if err := a.Extractor.FromURL(ctx, a.Loader, url, extract.SiteInfoInstructions, &info); err != nil {
				return nil, fmt.Errorf("analyze %s: %w", url, err)
			}
			return info, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keySite, execResult.(extract.SiteInfo))
			return flyt.DefaultAction, nil
		}),
	)...)
}

func (a *Agent) createPersonasNode() flyt.Node {
	type prep struct {
		site extract.SiteInfo
		max  int
	}
	return flyt.NewNode(append(a.retryOpts(),
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			in, _ := get[Input](shared, keyInput)
			site, _ := get[extract.SiteInfo](shared, keySite)
			return prep{site: site, max: in.MaxPersonas}, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			p := prepResult.(prep)
			prompt := fmt.Sprintf("Create %d buyer personas for %s.\n%s\n"+
				"Describe each persona's key characteristics, needs and pain points. Give each a short name.",
				p.max, p.site.AppName, describeSite(p.site))
			var list personaList
			if err := a.LLM.Generate(ctx, prompt, &list); err != nil {
				return nil, err
			}
			if len(list.Personas) > p.max {
				list.Personas = list.Personas[:p.max]
			}
			return list.Personas, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keyPersonas, execResult.([]Persona))
			return flyt.DefaultAction, nil
		}),
	)...)
}

func (a *Agent) extractKeywordsNode() flyt.Node {
	type prep struct {
		site     extract.SiteInfo
		personas []Persona
	}
	return flyt.NewNode(append(a.retryOpts(),
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			site, _ := get[extract.SiteInfo](shared, keySite)
			personas, _ := get[[]Persona](shared, keyPersonas)
			return prep{site: site, personas: personas}, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			p := prepResult.(prep)
			var names []string
			for _, persona := range p.personas {
				names = append(names, persona.Name+" ("+persona.Description+")")
			}
			prompt := fmt.Sprintf("You manage social media for %s, whose value proposition is: %s\n"+
				"The buyer personas are: %s\n"+
				"List 5 keywords or phrases to monitor to find posts worth responding to, most relevant first. Never more than %d.",
				p.site.AppName, p.site.ValueProposition, strings.Join(names, "; "), maxKeywords)
			var list keywordList
			if err := a.LLM.Generate(ctx, prompt, &list); err != nil {
				return nil, err
			}
			if len(list.Keywords) > maxKeywords {
				list.Keywords = list.Keywords[:maxKeywords]
			}
			return list.Keywords, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keyKeywords, execResult.([]string))
			return flyt.DefaultAction, nil
		}),
	)...)
}

// searchCompetitorsNode only searches when the request carries a competitor hint.
func (a *Agent) searchCompetitorsNode() flyt.Node {
	return flyt.NewNode(append(a.retryOpts(),
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			in, _ := get[Input](shared, keyInput)
			return strings.TrimSpace(in.CompetitorHint), nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			hint := prepResult.(string)
			if hint == "" || a.Searcher == nil {
				return []search.Result{}, nil
			}
			log.Printf("[Marketing] Searching for sites similar to %s", hint)
			return search.Links(ctx, a.Searcher, "Find websites similar to "+hint)
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keySearchResults, execResult.([]search.Result))
			return flyt.DefaultAction, nil
		}),
	)...)
}

func (a *Agent) finalizeCompetitorsNode() flyt.Node {
	type prep struct {
		site    extract.SiteInfo
		results []search.Result
	}
	return flyt.NewNode(append(a.retryOpts(),
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			site, _ := get[extract.SiteInfo](shared, keySite)
			results, _ := get[[]search.Result](shared, keySearchResults)
			return prep{site: site, results: results}, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			p := prepResult.(prep)
			candidates := a.collectCompetitors(ctx, p.site, p.results)
			if len(candidates) == 0 {
				return []Competitor{}, nil
			}

			data, _ := json.Marshal(candidates)
			prompt := fmt.Sprintf("From the potential competitors below, pick the most relevant competitors (no more than %d) to %s, an app that %s\n"+
				"Order them with the most relevant first.\nPotential competitors:\n%s",
				maxCompetitors, p.site.AppName, p.site.Description, data)
			var list competitorList
			if err := a.LLM.Generate(ctx, prompt, &list); err != nil {
				return nil, err
			}
			if len(list.Competitors) > maxCompetitors {
				list.Competitors = list.Competitors[:maxCompetitors]
			}
			return list.Competitors, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keyCompetitors, execResult.([]Competitor))
			return flyt.DefaultAction, nil
		}),
	)...)
}

// collectCompetitors extracts competitor candidates from each search hit.
// Pages that fail to load or extract are skipped.
func (a *Agent) collectCompetitors(ctx context.Context, site extract.SiteInfo, results []search.Result) []Competitor {
	if len(results) > maxCompetitorPages {
		results = results[:maxCompetitorPages]
	}
	instructions := fmt.Sprintf("- Every link to a top level domain that appears to be a competitor to %s\n"+
		"- For each competitor its name and a brief description if available", site.AppName)

	var found []Competitor
	for _, r := range results {
		var list competitorList
		if err := a.Extractor.FromURL(ctx, a.Loader, r.URL, instructions, &list); err != nil {
			log.Printf("[Marketing] Error processing %s: %v", r.URL, err)
			continue
		}
		found = append(found, list.Competitors...)
	}
	return found
}

type listPrompt func(site extract.SiteInfo, competitors []Competitor) string

func suggestionsPrompt(site extract.SiteInfo, competitors []Competitor) string {
	return fmt.Sprintf("Suggest 5 specific marketing strategies to promote %s. Each strategy must name concrete actions someone can take.\n%s\nCompetitors: %s",
		site.AppName, describeSite(site), competitorNames(competitors))
}

func subredditsPrompt(site extract.SiteInfo, competitors []Competitor) string {
	return fmt.Sprintf("Suggest 5 subreddits to monitor or post on for %s.\n%s\nCompetitors: %s",
		site.AppName, describeSite(site), competitorNames(competitors))
}

// listNode asks for a list of strings built from the site and competitors.
func (a *Agent) listNode(key string, prompt listPrompt, newOut func() any, items func(any) []string) flyt.Node {
	type prep struct {
		site        extract.SiteInfo
		competitors []Competitor
	}
	return flyt.NewNode(append(a.retryOpts(),
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			site, _ := get[extract.SiteInfo](shared, keySite)
			competitors, _ := get[[]Competitor](shared, keyCompetitors)
			return prep{site: site, competitors: competitors}, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			p := prepResult.(prep)
			out := newOut()
			if err := a.LLM.Generate(ctx, prompt(p.site, p.competitors), out); err != nil {
				return nil, err
			}
			return items(out), nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(key, execResult.([]string))
			return flyt.DefaultAction, nil
		}),
	)...)
}

func endNode() flyt.Node {
	return flyt.NewNode(
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			in, _ := get[Input](shared, keyInput)
			site, _ := get[extract.SiteInfo](shared, keySite)
			plan := &Plan{
				AppURL:           in.AppURL,
				AppName:          site.AppName,
				Description:      site.Description,
				KeyFeatures:      site.KeyFeatures,
				ValueProposition: site.ValueProposition,
			}
			plan.Personas, _ = get[[]Persona](shared, keyPersonas)
			plan.Keywords, _ = get[[]string](shared, keyKeywords)
			plan.Competitors, _ = get[[]Competitor](shared, keyCompetitors)
			plan.MarketingSuggestions, _ = get[[]string](shared, keySuggestions)
			plan.Subreddits, _ = get[[]string](shared, keySubreddits)
			shared.Set(keyPlan, plan)
			return flyt.DefaultAction, nil
		}),
	)
}

func get[T any](shared *flyt.SharedStore, key string) (T, bool) {
	var zero T
	v, ok := shared.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func describeSite(site extract.SiteInfo) string {
	return fmt.Sprintf("App description: %s\nKey features: %s\nValue proposition: %s",
		site.Description, strings.Join(site.KeyFeatures, ", "), site.ValueProposition)
}

func competitorNames(competitors []Competitor) string {
	if len(competitors) == 0 {
		return "none found"
	}
	names := make([]string, 0, len(competitors))
	for _, c := range competitors {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
