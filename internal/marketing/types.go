// Package marketing builds a marketing plan for a web app: it reads the app's
// site, drafts buyer personas and keywords, researches competitors and
// suggests strategies and communities.
package marketing

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	DefaultMaxPersonas = 3
	maxKeywords        = 10
	maxCompetitors     = 10
	maxCompetitorPages = 5
)

// Input is the request accepted by the marketing agent.
type Input struct {
	AppURL         string `json:"app_url"`
	CompetitorHint string `json:"competitor_hint,omitempty"`
	MaxPersonas    int    `json:"max_personas,omitempty"`
}

// ParseInput accepts either a JSON Input or a bare app URL.
func ParseInput(raw string) (Input, error) {
	raw = strings.TrimSpace(raw)
	var in Input
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			return Input{}, err
		}
	} else {
		in.AppURL = raw
	}
	if in.AppURL == "" {
		return Input{}, errors.New("marketing: app_url is required")
	}
	if in.MaxPersonas <= 0 {
		in.MaxPersonas = DefaultMaxPersonas
	}
	return in, nil
}

type Persona struct {
	Name        string `json:"name" jsonschema:"description=Short persona name"`
	Description string `json:"description" jsonschema:"description=Characteristics and needs and pain points"`
}

type Competitor struct {
	Name        string `json:"name" jsonschema:"description=Competitor name"`
	URL         string `json:"url" jsonschema:"description=Top level URL of the competitor"`
	Description string `json:"description,omitempty" jsonschema:"description=Brief description if available"`
}

// Structured output roots.
type (
	personaList struct {
		Personas []Persona `json:"personas"`
	}
	competitorList struct {
		Competitors []Competitor `json:"competitors"`
	}
	keywordList struct {
		Keywords []string `json:"keywords"`
	}
	strategyList struct {
		Strategies []string `json:"strategies"`
	}
	subredditList struct {
		Subreddits []string `json:"subreddits"`
	}
)

// Plan is the final output of the marketing agent.
type Plan struct {
	AppURL               string       `json:"app_url"`
	AppName              string       `json:"app_name"`
	Description          string       `json:"description"`
	KeyFeatures          []string     `json:"key_features"`
	ValueProposition     string       `json:"value_proposition"`
	Personas             []Persona    `json:"personas"`
	Keywords             []string     `json:"keywords"`
	Competitors          []Competitor `json:"competitors"`
	MarketingSuggestions []string     `json:"marketing_suggestions"`
	Subreddits           []string     `json:"subreddits"`
}
