package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/agentlab/internal/search"
)

type SearchTool struct {
	Searcher search.Searcher
}

func NewSearchTool(s search.Searcher) *SearchTool {
	return &SearchTool{Searcher: s}
}

func (s *SearchTool) Name() string {
	return "search"
}

func (s *SearchTool) Description() string {
	return "Search the web using DuckDuckGo for real-time information. Returns titles, descriptions and URLs."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	return s.Searcher.Search(ctx, args.Query)
}
