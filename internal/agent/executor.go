package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/agentlab/internal/governance"
	"github.com/rahul/agentlab/internal/observability"
	"github.com/rahul/agentlab/internal/tools"
	"github.com/rahul/agentlab/internal/workflow"
)

// ErrMaxToolSteps is returned when the model keeps calling tools past the limit.
var ErrMaxToolSteps = errors.New("agent: reached the maximum reasoning steps")

// Executor carries out one step with a ReAct loop: the model either answers
// or calls tools, and tool results are fed back until it answers.
type Executor struct {
	Model    llms.Model
	Registry *tools.Registry
	Policy   governance.PolicyEngine
	Prompts  *PromptManager
	Logger   *observability.Logger
	MaxSteps int
}

func NewExecutor(model llms.Model, registry *tools.Registry, policy governance.PolicyEngine, prompts *PromptManager, logger *observability.Logger, maxSteps int) *Executor {
	if maxSteps <= 0 {
		maxSteps = 10
	}
	return &Executor{
		Model:    model,
		Registry: registry,
		Policy:   policy,
		Prompts:  prompts,
		Logger:   logger,
		MaxSteps: maxSteps,
	}
}

var _ workflow.Executor = (*Executor)(nil)

func (e *Executor) Execute(ctx context.Context, step string) (string, error) {
	chatID := ChatIDFromContext(ctx)

	input := step
	if task, ok := workflow.TaskFromContext(ctx); ok && task != "" && task != step {
		input = fmt.Sprintf("TASK: %s\n\nCONTEXT: This is a sub-task for the overall request: %s", step, task)
	}
	if prev := workflow.PreviousResult(ctx); prev != "" {
		input += "\n\nRESULT OF THE PREVIOUS STEP:\n" + prev
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, e.Prompts.ExecutorPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}

	var opts []llms.CallOption
	if e.Registry != nil {
		if defs := e.Registry.Definitions(); len(defs) > 0 {
			opts = append(opts, llms.WithTools(defs))
		}
	}

	for i := 0; i < e.MaxSteps; i++ {
		resp, err := e.Model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("agent: model returned no choices")
		}
		choice := resp.Choices[0]
		if e.Logger != nil {
			e.Logger.LogLLM(chatID, "", input, choice.Content, choice.ToolCalls)
		}

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: assistantParts,
		})

		// No tool calls: this is the answer for the step
		if len(choice.ToolCalls) == 0 {
			return strings.TrimSpace(choice.Content), nil
		}

		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			result := e.callTool(ctx, chatID, i+1, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    result,
					},
				},
			})
		}
	}

	return "", fmt.Errorf("%w (%d)", ErrMaxToolSteps, e.MaxSteps)
}

// callTool runs one tool call. Failures are returned as text for the model
// to read rather than as errors.
func (e *Executor) callTool(ctx context.Context, chatID string, turn int, name, args string) string {
	var tool tools.Tool
	if e.Registry != nil {
		tool = e.Registry.Get(name)
	}
	if tool == nil {
		return fmt.Sprintf("Error: Tool %s not found", name)
	}

	if e.Policy != nil {
		res, err := e.Policy.Evaluate(ctx, governance.Request{Tool: name, Arguments: args, ChatID: chatID})
		if err != nil {
			return fmt.Sprintf("Error: policy check failed: %v", err)
		}
		if e.Logger != nil {
			e.Logger.LogPolicy(chatID, name, string(res.Effect), res.Reason)
		}
		if res.Effect == governance.EffectDeny {
			log.Printf("[Turn %d] Tool %s denied: %s", turn, name, res.Reason)
			return "Error: denied by policy: " + res.Reason
		}
	}

	log.Printf("[Turn %d] Executing tool %s with args: %s", turn, name, args)
	if e.Logger != nil {
		e.Logger.LogToolCall(chatID, "", name, args)
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		result = fmt.Sprintf("Error: %v", err)
	}
	if e.Logger != nil {
		e.Logger.LogToolResult(chatID, "", name, result)
	}
	return result
}
