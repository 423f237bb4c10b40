// Package llmtest provides a scripted langchaingo model for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Reply is one scripted model answer. A non-empty ToolName produces a tool call.
type Reply struct {
	Content  string
	ToolName string
	ToolArgs string
	Err      error
}

// Text is a plain text reply.
func Text(content string) Reply { return Reply{Content: content} }

// Call is a tool-call reply.
func Call(name, args string) Reply { return Reply{ToolName: name, ToolArgs: args} }

// Model replays scripted replies in order and records every request.
// When the script runs out it answers with Fallback.
type Model struct {
	mu       sync.Mutex
	replies  []Reply
	Fallback Reply
	Requests [][]llms.MessageContent
	Options  []llms.CallOptions
}

func New(replies ...Reply) *Model {
	return &Model{replies: replies}
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	m.mu.Lock()
	m.Requests = append(m.Requests, messages)
	m.Options = append(m.Options, opts)
	reply := m.Fallback
	if len(m.replies) > 0 {
		reply = m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}
	if opts.StreamingFunc != nil && reply.Content != "" {
		if err := opts.StreamingFunc(ctx, []byte(reply.Content)); err != nil {
			return nil, err
		}
	}

	choice := &llms.ContentChoice{Content: reply.Content}
	if reply.ToolName != "" {
		choice.ToolCalls = []llms.ToolCall{{
			ID:   "call-" + reply.ToolName,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      reply.ToolName,
				Arguments: reply.ToolArgs,
			},
		}}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the number of requests served.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastPrompt returns the text of the final message of the latest request.
func (m *Model) LastPrompt() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return "", errors.New("llmtest: no requests recorded")
	}
	return PromptText(m.Requests[len(m.Requests)-1]), nil
}

// PromptText joins the text parts of every message.
func PromptText(messages []llms.MessageContent) string {
	var sb strings.Builder
	for _, msg := range messages {
		for _, p := range msg.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				sb.WriteString(tc.Text)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
