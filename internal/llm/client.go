package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Completer returns a plain text answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Structurer fills out with a value conforming to the JSON schema of its type.
// Responses that do not conform fail with *SchemaError.
type Structurer interface {
	Generate(ctx context.Context, prompt string, out any) error
}

// Streamer writes the answer to w as it is produced and returns the full text.
type Streamer interface {
	Stream(ctx context.Context, prompt string, w io.Writer) (string, error)
}

// EventLogger receives a record of every model exchange.
type EventLogger interface {
	LogLLM(chatID, taskID string, prompt any, response string, toolCalls any)
}

const respondTool = "respond"

// Client implements Completer, Structurer and Streamer over a langchaingo model.
type Client struct {
	Model  llms.Model
	Logger EventLogger
}

func NewClient(model llms.Model, logger EventLogger) *Client {
	return &Client{Model: model, Logger: logger}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.Model, prompt)
	if err != nil {
		return "", err
	}
	c.log(prompt, out, nil)
	return strings.TrimSpace(out), nil
}

func (c *Client) Stream(ctx context.Context, prompt string, w io.Writer) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.Model, prompt,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			_, err := w.Write(chunk)
			return err
		}),
	)
	if err != nil {
		return "", err
	}
	c.log(prompt, out, nil)
	return out, nil
}

// Generate asks the model to answer through a single function call whose
// parameters are the schema of out. Models that reply in plain text are
// accepted when the text holds a JSON object.
func (c *Client) Generate(ctx context.Context, prompt string, out any) error {
	s, err := SchemaFor(out)
	if err != nil {
		return err
	}

	tool := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        respondTool,
			Description: "Submit the answer in the required structure.",
			Parameters:  s.Parameters,
		},
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem,
			"Answer by calling the `respond` function exactly once. Do not answer in plain text."),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{tool}))
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return errors.New("llm: model returned no choices")
	}
	choice := resp.Choices[0]
	c.log(prompt, choice.Content, choice.ToolCalls)

	raw := ""
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == respondTool {
			raw = tc.FunctionCall.Arguments
			break
		}
	}
	if raw == "" {
		raw = extractJSON(choice.Content)
	}
	if raw == "" {
		return &SchemaError{Type: s.Name, Raw: choice.Content, Err: errors.New("no structured answer in response")}
	}
	return s.Decode(raw, out)
}

func (c *Client) log(prompt, response string, toolCalls any) {
	if c.Logger == nil {
		return
	}
	c.Logger.LogLLM("", "", prompt, response, toolCalls)
}

// extractJSON returns the outermost JSON object in text, tolerating markdown fences.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return ""
	}
	return candidate
}

// SchemaError reports a response that does not conform to the requested schema.
type SchemaError struct {
	Type string
	Raw  string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("llm: response does not match %s schema: %v", e.Type, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
