// Package tools holds the capabilities the step executor may call.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions converts the tools into function definitions for the model.
func (r *Registry) Definitions() []llms.Tool {
	var defs []llms.Tool
	for _, name := range r.Names() {
		t := r.Tools[name]
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Describe lists the tools as "- name: description" lines.
func (r *Registry) Describe() string {
	var lines []string
	for _, name := range r.Names() {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, r.Tools[name].Description()))
	}
	return strings.Join(lines, "\n")
}
