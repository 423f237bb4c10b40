// Package loader fetches web pages and turns them into text documents with
// source, title, description and language metadata.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/tmc/langchaingo/schema"
)

// Metadata keys set on every loaded document.
const (
	MetaSource      = "source"
	MetaTitle       = "title"
	MetaDescription = "description"
	MetaLanguage    = "language"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultMaxChars  = 50000

	maxBodyBytes = 10 << 20
)

// Loader loads a URL into one or more documents.
type Loader interface {
	Load(ctx context.Context, rawURL string) ([]schema.Document, error)
}

// HTTPLoader fetches pages with a plain HTTP GET.
type HTTPLoader struct {
	Client    *http.Client
	UserAgent string
	// MaxChars caps the page content. Zero means DefaultMaxChars.
	MaxChars int
}

func NewHTTPLoader(userAgent string, timeout time.Duration, maxChars int) *HTTPLoader {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPLoader{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		MaxChars:  maxChars,
	}
}

func (l *HTTPLoader) Load(ctx context.Context, rawURL string) ([]schema.Document, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status code %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	doc, err := buildDocument(body, u, l.MaxChars)
	if err != nil {
		return nil, err
	}
	return []schema.Document{doc}, nil
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL %q: scheme must be http or https", rawURL)
	}
	return u, nil
}

// buildDocument extracts metadata and readable text from a raw HTML page.
func buildDocument(page []byte, u *url.URL, maxChars int) (schema.Document, error) {
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return schema.Document{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	meta := map[string]any{
		MetaSource:      u.String(),
		MetaTitle:       strings.TrimSpace(dom.Find("title").First().Text()),
		MetaDescription: strings.TrimSpace(dom.Find(`meta[name="description"]`).AttrOr("content", "")),
		MetaLanguage:    strings.TrimSpace(dom.Find("html").AttrOr("lang", "")),
	}

	var text string
	article, err := readability.FromReader(bytes.NewReader(page), u)
	if err == nil {
		text = article.TextContent
		if meta[MetaTitle] == "" {
			meta[MetaTitle] = article.Title
		}
		if meta[MetaDescription] == "" {
			meta[MetaDescription] = article.Excerpt
		}
	}
	if strings.TrimSpace(text) == "" {
		// Not an article; fall back to the visible body text.
		dom.Find("script, style, noscript").Remove()
		text = dom.Find("body").Text()
	}

	// Sanitize output (remove any remaining HTML tags or scripts)
	text = html.UnescapeString(bluemonday.StrictPolicy().Sanitize(text))

	return schema.Document{
		PageContent: truncate(normalizeSpace(text), maxChars),
		Metadata:    meta,
	}, nil
}

// normalizeSpace collapses runs of whitespace inside lines and drops blank lines.
func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "\n... (content truncated) ..."
}
