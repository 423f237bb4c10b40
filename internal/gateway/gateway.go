// Package gateway connects chat platforms to the agent registry.
package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/rahul/agentlab/internal/agent"
)

// Messenger is a chat platform connection.
type Messenger interface {
	// Start listens for messages until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat.
	Send(chatID string, text string) error
	Stop() error
}

// History records the conversation of each chat.
type History interface {
	AddMessage(chatID string, role string, content string) error
	ClearHistory(chatID string) error
}

// Handler turns an incoming chat message into a reply. Plain text goes to
// the default agent; "/<agent> text" picks another one.
type Handler struct {
	Agents  *agent.Registry
	History History
	Default string
}

func NewHandler(agents *agent.Registry, history History) *Handler {
	return &Handler{Agents: agents, History: history, Default: agent.DefaultAgent}
}

// Reply answers text sent in chatID. Agent failures are reported to the chat
// rather than returned.
func (h *Handler) Reply(ctx context.Context, chatID, text string) string {
	cmd, args := parseCommand(text)
	switch cmd {
	case "start", "help":
		return h.help()
	case "reset":
		if h.History != nil {
			if err := h.History.ClearHistory(chatID); err != nil {
				log.Printf("[Gateway] Error clearing history for %s: %v", chatID, err)
				return "I couldn't clear the conversation."
			}
		}
		return "Conversation cleared."
	}

	key := h.Default
	input := strings.TrimSpace(text)
	if cmd != "" {
		key, input = cmd, args
	}
	a, err := h.Agents.Get(key)
	if err != nil {
		return fmt.Sprintf("Unknown command /%s.\n\n%s", cmd, h.help())
	}
	if input == "" {
		return fmt.Sprintf("Usage: /%s <request>", a.Key)
	}

	h.record(chatID, "human", input)
	response, err := a.Runner.Invoke(agent.WithChatID(ctx, chatID), input)
	if err != nil {
		log.Printf("[Gateway] Agent %s failed for chat %s: %v", a.Key, chatID, err)
		return "I'm having trouble with that request right now..."
	}
	h.record(chatID, "ai", response)
	return response
}

func (h *Handler) record(chatID, role, content string) {
	if h.History == nil {
		return
	}
	if err := h.History.AddMessage(chatID, role, content); err != nil {
		log.Printf("[Gateway] Error saving %s message for %s: %v", role, chatID, err)
	}
}

func (h *Handler) help() string {
	var sb strings.Builder
	sb.WriteString("Send a task and I'll plan and carry it out.\n\nCommands:\n")
	for _, info := range h.Agents.Info() {
		fmt.Fprintf(&sb, "/%s - %s\n", info.Key, info.Description)
	}
	sb.WriteString("/reset - clear this conversation")
	return sb.String()
}

// parseCommand splits "/name@bot rest" into ("name", "rest"). Text that is
// not a command yields an empty name.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	name, rest, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// chunk splits text into pieces of at most limit bytes, preferring line
// breaks and never splitting a rune.
func chunk(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
