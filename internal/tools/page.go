package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/agentlab/internal/loader"
)

// PageTool reads a web page through a loader.
type PageTool struct {
	Loader loader.Loader
}

func NewPageTool(l loader.Loader) *PageTool {
	return &PageTool{Loader: l}
}

func (p *PageTool) Name() string {
	return "read_page"
}

func (p *PageTool) Description() string {
	return "Fetch a webpage URL and extract the main content as clean, sanitized text."
}

func (p *PageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL of the webpage to read (e.g., https://example.com/article)",
			},
		},
		"required": []string{"url"},
	}
}

func (p *PageTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	docs, err := p.Loader.Load(ctx, args.URL)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "TITLE: %v\n", d.Metadata[loader.MetaTitle])
		if desc, _ := d.Metadata[loader.MetaDescription].(string); desc != "" {
			fmt.Fprintf(&sb, "DESCRIPTION: %s\n", desc)
		}
		sb.WriteString("\n-- CONTENT --\n")
		sb.WriteString(d.PageContent)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
