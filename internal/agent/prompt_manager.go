package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

const plannerFile = "planner.md"

const defaultPlannerPrompt = `You are a planner. Break the task below into between {{.MinSteps}} and {{.MaxSteps}} ordered steps.
Each step must be a short, self-contained instruction that a worker can carry out on its own.
Do not number the steps. The last step must produce the final answer for the user.
{{if .Tools}}
## Available Tools (Worker Capabilities):
{{.Tools}}
{{end}}
TASK: {{.Task}}`

const defaultExecutorPrompt = `You are a focused worker. Complete the single step you are given and reply with its result only.
Use the available tools when the step needs fresh information. Be concise and factual.`

// PlannerData is the input of the planner prompt template.
type PlannerData struct {
	Task     string
	MinSteps int
	MaxSteps int
	Tools    string
}

// PromptManager loads prompt overrides from a directory of markdown files.
// A missing directory or file falls back to the built-in prompts.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetExecutorPrompt concatenates every markdown file except planner.md in a
// fixed order: identity, capabilities, executor, user, then the rest by name.
func (pm *PromptManager) GetExecutorPrompt() (string, error) {
	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	order := map[string]int{
		"identity.md":     1,
		"capabilities.md": 2,
		"executor.md":     3,
		"user.md":         4,
	}
	sort.SliceStable(entries, func(i, j int) bool {
		oi, okI := order[entries[i].Name()]
		oj, okJ := order[entries[j].Name()]
		switch {
		case okI && okJ:
			return oi < oj
		case okI:
			return true
		case okJ:
			return false
		}
		return entries[i].Name() < entries[j].Name()
	})

	var contents []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") || e.Name() == plannerFile {
			continue
		}
		path := filepath.Join(pm.Directory, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

// ExecutorPrompt is GetExecutorPrompt with the built-in fallback.
func (pm *PromptManager) ExecutorPrompt() string {
	if pm == nil || pm.Directory == "" {
		return defaultExecutorPrompt
	}
	prompt, err := pm.GetExecutorPrompt()
	if err != nil {
		return defaultExecutorPrompt
	}
	return prompt
}

// PlannerTemplate parses planner.md, or the built-in planner prompt when the
// file does not exist.
func (pm *PromptManager) PlannerTemplate() (*template.Template, error) {
	text := defaultPlannerPrompt
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, plannerFile))
		switch {
		case err == nil:
			text = string(data)
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read planner prompt: %w", err)
		}
	}
	tmpl, err := template.New(plannerFile).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse planner prompt: %w", err)
	}
	return tmpl, nil
}
