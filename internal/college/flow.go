package college

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/flyt"
	"github.com/tmc/langchaingo/schema"

	"github.com/rahul/agentlab/internal/extract"
	"github.com/rahul/agentlab/internal/llm"
	"github.com/rahul/agentlab/internal/loader"
	"github.com/rahul/agentlab/internal/search"
)

// Shared store keys.
const (
	keyInput           = "input"
	keySearchResults   = "search_results"
	keyColleges        = "colleges"
	keyRecommendations = "recommendations"
	keyResult          = "result"
)

// ErrNoSearcher is returned when the finder has no web search to start from.
var ErrNoSearcher = errors.New("college: web search is not available")

// Finder runs the college search flow. A new flow is built per run.
type Finder struct {
	LLM       llm.Structurer
	Loader    loader.Loader
	Searcher  search.Searcher
	Extractor *extract.Extractor
	// MaxRetries is the number of attempts for the search and recommendation nodes.
	MaxRetries int
	Wait       time.Duration
}

func New(s llm.Structurer, l loader.Loader, searcher search.Searcher) *Finder {
	return &Finder{
		LLM:        s,
		Loader:     l,
		Searcher:   searcher,
		Extractor:  extract.New(s),
		MaxRetries: 2,
		Wait:       time.Second,
	}
}

// Invoke parses input, runs the flow and returns the result as JSON.
func (f *Finder) Invoke(ctx context.Context, input string) (string, error) {
	in, err := ParseInput(input)
	if err != nil {
		return "", err
	}
	res, err := f.Run(ctx, in)
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (f *Finder) Run(ctx context.Context, in Input) (*Result, error) {
	if f.Searcher == nil {
		return nil, ErrNoSearcher
	}
	shared := flyt.NewSharedStore()
	shared.Set(keyInput, in.withDefaults())

	if err := f.flow().Run(ctx, shared); err != nil {
		return nil, fmt.Errorf("college: %w", err)
	}
	res, ok := get[*Result](shared, keyResult)
	if !ok {
		return nil, errors.New("college: flow finished without a result")
	}
	return res, nil
}

func (f *Finder) flow() *flyt.Flow {
	searchNode := f.searchNode()
	gather := f.gatherNode()
	filter := filterNode()
	recommend := f.recommendNode()
	end := endNode()

	flow := flyt.NewFlow(searchNode)
	flow.Connect(searchNode, flyt.DefaultAction, gather)
	flow.Connect(gather, flyt.DefaultAction, filter)
	flow.Connect(filter, flyt.DefaultAction, recommend)
	flow.Connect(recommend, flyt.DefaultAction, end)
	return flow
}

func (f *Finder) retryOpts() []any {
	attempts := f.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	return []any{flyt.WithMaxRetries(attempts), flyt.WithWait(f.Wait)}
}

func (f *Finder) searchNode() flyt.Node {
	return flyt.NewNode(append(f.retryOpts(),
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			in, _ := get[Input](shared, keyInput)
			return in.Query(), nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			query := prepResult.(string)
			log.Printf("[College] Searching: %s", query)
			return search.Links(ctx, f.Searcher, query)
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keySearchResults, execResult.([]search.Result))
			return flyt.DefaultAction, nil
		}),
	)...)
}

// gatherNode extracts colleges from the top hits. Pages or chunks that fail
// are skipped, so the node only fails when ctx ends.
func (f *Finder) gatherNode() flyt.Node {
	return flyt.NewNode(
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			results, _ := get[[]search.Result](shared, keySearchResults)
			if len(results) > maxPages {
				results = results[:maxPages]
			}
			return results, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			var colleges []extract.College
			for _, r := range prepResult.([]search.Result) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				colleges = extract.MergeColleges(colleges, f.collect(ctx, r.URL))
			}
			return colleges, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keyColleges, execResult.([]extract.College))
			return flyt.DefaultAction, nil
		}),
	)
}

func (f *Finder) collect(ctx context.Context, url string) []extract.College {
	docs, err := f.Loader.Load(ctx, url)
	if err != nil {
		log.Printf("[College] Error loading %s: %v", url, err)
		return nil
	}
	chunks, err := loader.Split(docs, chunkSize, chunkOverlap)
	if err != nil {
		log.Printf("[College] Error splitting %s: %v", url, err)
		return nil
	}

	var found []extract.College
	for i, chunk := range chunks {
		var list extract.CollegeList
		if err := f.Extractor.Extract(ctx, []schema.Document{chunk}, extract.CollegeInstructions, &list); err != nil {
			log.Printf("[College] Skipping %s chunk %d/%d: %v", url, i+1, len(chunks), err)
			continue
		}
		found = extract.MergeColleges(found, list.Colleges)
	}
	return found
}

func filterNode() flyt.Node {
	type prep struct {
		in       Input
		colleges []extract.College
	}
	return flyt.NewNode(
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			in, _ := get[Input](shared, keyInput)
			colleges, _ := get[[]extract.College](shared, keyColleges)
			return prep{in: in, colleges: colleges}, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			p := prepResult.(prep)
			return Filter(p.colleges, p.in), nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keyColleges, execResult.([]extract.College))
			return flyt.DefaultAction, nil
		}),
	)
}

func (f *Finder) recommendNode() flyt.Node {
	type prep struct {
		in       Input
		colleges []extract.College
	}
	return flyt.NewNode(append(f.retryOpts(),
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			in, _ := get[Input](shared, keyInput)
			colleges, _ := get[[]extract.College](shared, keyColleges)
			return prep{in: in, colleges: colleges}, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			p := prepResult.(prep)
			if len(p.colleges) == 0 {
				return []string{}, nil
			}
			data, _ := json.Marshal(p.colleges)
			var list recommendationList
			if err := f.LLM.Generate(ctx, recommendPrompt(p.in, string(data)), &list); err != nil {
				return nil, err
			}
			return list.Recommendations, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			shared.Set(keyRecommendations, execResult.([]string))
			return flyt.DefaultAction, nil
		}),
	)...)
}

func recommendPrompt(in Input, colleges string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A student is choosing colleges.\nMajor: %s\nLocation: %s\n", in.Major, in.Location)
	if in.MaxTuition > 0 {
		fmt.Fprintf(&sb, "Tuition budget: $%d per year\n", in.MaxTuition)
	}
	if in.SATScore > 0 {
		fmt.Fprintf(&sb, "SAT score: %d\n", in.SATScore)
	}
	sb.WriteString("Give up to 5 specific recommendations about the colleges below: which fit best, " +
		"which are reach or safety schools for this student and what to check before applying.\n")
	sb.WriteString("Colleges:\n")
	sb.WriteString(colleges)
	return sb.String()
}

func endNode() flyt.Node {
	return flyt.NewNode(
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			in, _ := get[Input](shared, keyInput)
			res := &Result{Query: in.Query()}
			res.Colleges, _ = get[[]extract.College](shared, keyColleges)
			res.Recommendations, _ = get[[]string](shared, keyRecommendations)
			if res.Colleges == nil {
				res.Colleges = []extract.College{}
			}
			shared.Set(keyResult, res)
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
