package gateway

import (
	"context"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMessage = 2000

// DiscordGateway answers direct messages and messages that mention the bot.
type DiscordGateway struct {
	Session *discordgo.Session
	Handler *Handler
}

func NewDiscordGateway(token string, handler *Handler) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	dg := &DiscordGateway{Session: session, Handler: handler}
	session.AddHandler(dg.onMessage)
	return dg, nil
}

func (dg *DiscordGateway) Start(ctx context.Context) error {
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("[Discord] Connected as %s", dg.Session.State.User.Username)

	<-ctx.Done()
	return dg.Session.Close()
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	text, ok := addressedText(m.Content, s.State.User.ID, m.GuildID == "")
	if !ok {
		return
	}

	log.Printf("[Discord] [%s] %s", m.Author.Username, text)

	response := dg.Handler.Reply(context.Background(), m.ChannelID, text)
	if err := dg.Send(m.ChannelID, response); err != nil {
		log.Printf("[Discord] Error replying to %s: %v", m.ChannelID, err)
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, part := range chunk(text, discordMaxMessage) {
		if _, err := dg.Session.ChannelMessageSend(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}

// addressedText reports whether a message is meant for the bot and returns
// it without the mention. Direct messages are always addressed.
func addressedText(content, botID string, direct bool) (string, bool) {
	mentioned := false
	for _, tag := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if strings.Contains(content, tag) {
			mentioned = true
			content = strings.ReplaceAll(content, tag, "")
		}
	}
	content = strings.TrimSpace(content)
	return content, (direct || mentioned) && content != ""
}

var _ Messenger = (*DiscordGateway)(nil)
