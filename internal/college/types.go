// Package college finds colleges that match a student's major, location,
// budget and admission chances: it searches the web, extracts colleges from
// the hits, filters them and asks for recommendations.
package college

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/agentlab/internal/extract"
)

const (
	DefaultMaxColleges = 5
	anyPreference      = "any"
	maxPages           = 3
	chunkSize          = 8000
	chunkOverlap       = 200
)

// Input is the request accepted by the college finder.
type Input struct {
	Major    string `json:"major,omitempty"`
	Location string `json:"location,omitempty"`
	// MaxTuition is a yearly budget in dollars. Zero means no limit.
	MaxTuition int `json:"max_tuition,omitempty"`
	// MinAcceptanceRate is a percentage, so 20 keeps colleges admitting at
	// least one in five applicants. Values up to 1 are read as fractions.
	MinAcceptanceRate float64 `json:"min_acceptance_rate,omitempty"`
	MaxColleges       int     `json:"max_colleges,omitempty"`
	SATScore          int     `json:"sat_score,omitempty"`
}

// ParseInput accepts a JSON Input or free text naming the major.
func ParseInput(raw string) (Input, error) {
	raw = strings.TrimSpace(raw)
	var in Input
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			return Input{}, fmt.Errorf("college: %w", err)
		}
	} else {
		in.Major = raw
	}
	return in.withDefaults(), nil
}

func (in Input) withDefaults() Input {
	if strings.TrimSpace(in.Major) == "" {
		in.Major = anyPreference
	}
	if strings.TrimSpace(in.Location) == "" {
		in.Location = anyPreference
	}
	if in.MaxColleges <= 0 {
		in.MaxColleges = DefaultMaxColleges
	}
	if in.MinAcceptanceRate > 0 && in.MinAcceptanceRate <= 1 {
		in.MinAcceptanceRate *= 100
	}
	return in
}

// Query builds the web search for in.
func (in Input) Query() string {
	var sb strings.Builder
	sb.WriteString("best colleges")
	if in.Major != anyPreference {
		fmt.Fprintf(&sb, " for %s majors", in.Major)
	}
	if in.Location != anyPreference {
		fmt.Fprintf(&sb, " in %s", in.Location)
	}
	if in.MaxTuition > 0 {
		fmt.Fprintf(&sb, " with tuition under $%d", in.MaxTuition)
	}
	if in.SATScore > 0 {
		fmt.Fprintf(&sb, " for an SAT score of %d", in.SATScore)
	}
	return sb.String()
}

type recommendationList struct {
	Recommendations []string `json:"recommendations" jsonschema:"description=Specific recommendations for the student"`
}

// Result is the final output of the college finder.
type Result struct {
	Query           string            `json:"query"`
	Colleges        []extract.College `json:"colleges"`
	Recommendations []string          `json:"recommendations"`
}

// Filter drops colleges known to be over budget or more selective than in
// allows, then keeps at most in.MaxColleges. Colleges whose tuition or
// acceptance rate could not be read are kept.
func Filter(colleges []extract.College, in Input) []extract.College {
	in = in.withDefaults()
	out := make([]extract.College, 0, len(colleges))
	for _, c := range colleges {
		if in.MaxTuition > 0 {
			if tuition, ok := parseAmount(c.Tuition); ok && tuition > float64(in.MaxTuition) {
				continue
			}
		}
		if in.MinAcceptanceRate > 0 {
			if rate, ok := parseRate(c.AcceptanceRate); ok && rate < in.MinAcceptanceRate {
				continue
			}
		}
		out = append(out, c)
		if len(out) == in.MaxColleges {
			break
		}
	}
	return out
}

var numberRE = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// parseAmount reads the first number in s, such as "$58,000 per year".
func parseAmount(s string) (float64, bool) {
	m := numberRE.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseRate reads an acceptance rate as a percentage: "7%", "7.5 percent"
// and "0.07" all give 7 or 7.5.
func parseRate(s string) (float64, bool) {
	v, ok := parseAmount(s)
	if !ok {
		return 0, false
	}
	if v <= 1 && !strings.Contains(s, "%") && !strings.Contains(strings.ToLower(s), "percent") {
		v *= 100
	}
	return v, true
}
