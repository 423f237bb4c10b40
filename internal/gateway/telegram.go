package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMessage = 4096

type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Handler *Handler
}

func NewTelegramGateway(token string, handler *Handler) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("[Telegram] Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{Bot: bot, Handler: handler}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	defer tg.Bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			log.Printf("[Telegram] [%s] %s", update.Message.From.UserName, update.Message.Text)

			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			response := tg.Handler.Reply(ctx, chatID, update.Message.Text)
			if err := tg.Send(chatID, response); err != nil {
				log.Printf("[Telegram] Error replying to %s: %v", chatID, err)
			}
		}
	}
}

// Send delivers text as Markdown, falling back to plain text when Telegram
// rejects the markup.
func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, part := range chunk(text, telegramMaxMessage) {
		msg := tgbotapi.NewMessage(id, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := tg.Bot.Send(msg); err != nil {
			msg.ParseMode = ""
			if _, err := tg.Bot.Send(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}

var _ Messenger = (*TelegramGateway)(nil)
