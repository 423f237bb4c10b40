package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMessage = 39000

// SlackGateway uses Socket Mode, so it needs both a bot token and an
// app-level token.
type SlackGateway struct {
	Client    *slack.Client
	Socket    *socketmode.Client
	Handler   *Handler
	BotUserID string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSlackGateway(botToken, appToken string, handler *Handler) (*SlackGateway, error) {
	api := slack.New(
		botToken,
		slack.OptionDebug(false),
		slack.OptionAppLevelToken(appToken),
	)
	socket := socketmode.New(api, socketmode.OptionDebug(false))

	auth, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("auth test failed: %w", err)
	}
	log.Printf("[Slack] Authorized as %s (ID: %s)", auth.User, auth.UserID)

	return &SlackGateway{Client: api, Socket: socket, Handler: handler, BotUserID: auth.UserID}, nil
}

func (sg *SlackGateway) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	sg.mu.Lock()
	sg.cancel = cancel
	sg.mu.Unlock()
	defer cancel()

	go sg.handleEvents(ctx)
	return sg.Socket.RunContext(ctx)
}

func (sg *SlackGateway) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sg.Socket.Events:
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				log.Println("[Slack] Connecting...")
			case socketmode.EventTypeConnected:
				log.Println("[Slack] Connected")
			case socketmode.EventTypeConnectionError:
				log.Printf("[Slack] Connection error: %v", evt.Data)
			case socketmode.EventTypeEventsAPI:
				sg.handleEventsAPI(ctx, evt)
			}
		}
	}
}

func (sg *SlackGateway) handleEventsAPI(ctx context.Context, evt socketmode.Event) {
	event, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		sg.Socket.Ack(*evt.Request)
	}
	if event.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.User == sg.BotUserID || ev.BotID != "" {
			return
		}
		sg.reply(ctx, ev.Channel, ev.Text, threadOf(ev.ThreadTimeStamp, ev.TimeStamp))
	case *slackevents.MessageEvent:
		// Channel messages arrive as mentions; only direct messages are handled here.
		if ev.User == sg.BotUserID || ev.BotID != "" || ev.ChannelType != "im" {
			return
		}
		sg.reply(ctx, ev.Channel, ev.Text, ev.ThreadTimeStamp)
	}
}

func (sg *SlackGateway) reply(ctx context.Context, channel, text, threadTS string) {
	text, ok := addressedText(text, sg.BotUserID, true)
	if !ok {
		return
	}
	log.Printf("[Slack] [%s] %s", channel, text)

	response := sg.Handler.Reply(ctx, channel, text)
	if err := sg.post(channel, response, threadTS); err != nil {
		log.Printf("[Slack] Error replying to %s: %v", channel, err)
	}
}

func (sg *SlackGateway) post(channel, text, threadTS string) error {
	for _, part := range chunk(text, slackMaxMessage) {
		options := []slack.MsgOption{slack.MsgOptionText(part, false)}
		if threadTS != "" {
			options = append(options, slack.MsgOptionTS(threadTS))
		}
		if _, _, err := sg.Client.PostMessage(channel, options...); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

func (sg *SlackGateway) Send(chatID string, text string) error {
	return sg.post(chatID, text, "")
}

func (sg *SlackGateway) Stop() error {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if sg.cancel != nil {
		sg.cancel()
	}
	return nil
}

// threadOf keeps replies in the thread a mention was made in, or starts one.
func threadOf(threadTS, ts string) string {
	if threadTS != "" {
		return threadTS
	}
	return ts
}

var _ Messenger = (*SlackGateway)(nil)
