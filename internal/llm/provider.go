// Package llm wraps langchaingo models with the three capabilities the
// agents need: plain completion, schema-constrained generation and streaming.
package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderConfig selects and configures a model backend.
type ProviderConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// NewModel builds the langchaingo model for the configured provider.
func NewModel(p ProviderConfig) (llms.Model, error) {
	switch p.Name {
	case "openai", "openrouter", "groq":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(p.APIKey),
			anthropic.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.BaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("provider %q not supported", p.Name)
	}
}
