// Package extract fills typed structs from loaded web pages with a
// schema-constrained model call.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/schema"

	"github.com/rahul/agentlab/internal/llm"
	"github.com/rahul/agentlab/internal/loader"
)

// ErrNoContent is returned when there is no page text to extract from.
var ErrNoContent = errors.New("extract: no content")

// Extractor runs extraction prompts against a Structurer.
type Extractor struct {
	LLM llm.Structurer
	// MaxChars caps the page text included in one prompt.
	MaxChars int
}

func New(s llm.Structurer) *Extractor {
	return &Extractor{LLM: s, MaxChars: loader.DefaultMaxChars}
}

// Extract asks the model to pull the fields listed in instructions out of
// docs and decodes the answer into out, which must point to a struct.
func (e *Extractor) Extract(ctx context.Context, docs []schema.Document, instructions string, out any) error {
	content := e.render(docs)
	if content == "" {
		return ErrNoContent
	}

	var sb strings.Builder
	sb.WriteString("Extract the following information from this web page content:\n")
	sb.WriteString(strings.TrimSpace(instructions))
	sb.WriteString("\n\nOnly use facts stated in the content. Leave a field empty when the content does not mention it.\n\n")
	sb.WriteString(content)

	if err := e.LLM.Generate(ctx, sb.String(), out); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	return nil
}

// FromURL loads rawURL with l and extracts from the result.
func (e *Extractor) FromURL(ctx context.Context, l loader.Loader, rawURL, instructions string, out any) error {
	docs, err := l.Load(ctx, rawURL)
	if err != nil {
		return err
	}
	return e.Extract(ctx, docs, instructions, out)
}

func (e *Extractor) render(docs []schema.Document) string {
	limit := e.MaxChars
	if limit <= 0 {
		limit = loader.DefaultMaxChars
	}

	var sb strings.Builder
	for _, d := range docs {
		text := strings.TrimSpace(d.PageContent)
		if text == "" {
			continue
		}
		if src, ok := d.Metadata[loader.MetaSource].(string); ok && src != "" {
			fmt.Fprintf(&sb, "SOURCE: %s\n", src)
		}
		if title, ok := d.Metadata[loader.MetaTitle].(string); ok && title != "" {
			fmt.Fprintf(&sb, "TITLE: %s\n", title)
		}
		sb.WriteString("-- CONTENT --\n")
		sb.WriteString(text)
		sb.WriteString("\n\n")
		if sb.Len() >= limit {
			break
		}
	}

	out := strings.TrimSpace(sb.String())
	if r := []rune(out); len(r) > limit {
		out = string(r[:limit])
	}
	return out
}
