// Package search answers web queries through DuckDuckGo.
package search

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher answers a query with a natural-language result string.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string) (string, error)

func (f SearcherFunc) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// DuckDuckGo searches the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	client *duckduckgo.Tool
}

func NewDuckDuckGo(maxResults int) (*DuckDuckGo, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &DuckDuckGo{client: ddg}, nil
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	res, err := d.client.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}

// Result is one hit parsed out of a search answer.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// ParseResults extracts the Title/Description/URL blocks from a search answer.
// Blocks without a URL are dropped.
func ParseResults(text string) []Result {
	var (
		results []Result
		cur     Result
	)
	flush := func() {
		if cur.URL != "" {
			results = append(results, cur)
		}
		cur = Result{}
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(key) {
		case "title":
			if cur.Title != "" || cur.URL != "" {
				flush()
			}
			cur.Title = value
		case "description":
			cur.Description = value
		case "url", "link":
			cur.URL = value
		}
	}
	flush()
	return results
}

// Links runs query and returns the parsed hits.
func Links(ctx context.Context, s Searcher, query string) ([]Result, error) {
	text, err := s.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return ParseResults(text), nil
}
