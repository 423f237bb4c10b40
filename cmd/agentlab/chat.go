package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
)

const (
	chatID           = "cli"
	chatHistoryLimit = 20
)

var chatReset bool

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Chat with the model, streaming the answer",
	Long: `Send a prompt to the configured model and stream the answer. The
conversation is remembered between invocations; --reset forgets it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if chatReset {
			if err := a.history.ClearHistory(chatID); err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Println("Conversation cleared.")
				return nil
			}
		}
		if len(args) == 0 {
			return fmt.Errorf("a prompt is required")
		}
		prompt := strings.Join(args, " ")

		history, err := a.history.GetHistory(chatID, chatHistoryLimit)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		answer, err := a.client.Stream(ctx, renderConversation(history, prompt), os.Stdout)
		fmt.Println()
		if err != nil {
			return err
		}

		if err := a.history.AddMessage(chatID, "human", prompt); err != nil {
			return err
		}
		return a.history.AddMessage(chatID, "ai", answer)
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatReset, "reset", false, "Forget the conversation before sending")
}

func renderConversation(history []llms.MessageContent, prompt string) string {
	if len(history) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, msg := range history {
		speaker := "User"
		if msg.Role == llms.ChatMessageTypeAI {
			speaker = "Assistant"
		}
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				fmt.Fprintf(&sb, "%s: %s\n", speaker, text.Text)
			}
		}
	}
	sb.WriteString("\nUser: ")
	sb.WriteString(prompt)
	sb.WriteString("\nAssistant:")
	return sb.String()
}
