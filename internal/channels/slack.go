package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
)

// SlackChannel connects over Socket Mode. DMs always reach the agent;
// in channels the bot only answers when mentioned.
type SlackChannel struct {
	BaseChannel
	cfg       config.SlackConfig
	client    *slack.Client
	socket    *socketmode.Client
	botUserID string
	cancel    context.CancelFunc
	log       *slog.Logger
}

func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) (*SlackChannel, error) {
	if strings.TrimSpace(cfg.BotToken) == "" || strings.TrimSpace(cfg.AppToken) == "" {
		return nil, errors.New("slack bot and app tokens are required")
	}
	client := slack.New(
		strings.TrimSpace(cfg.BotToken),
		slack.OptionAppLevelToken(strings.TrimSpace(cfg.AppToken)),
	)
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus, ChannelName: "slack", AllowFrom: cfg.AllowFrom},
		cfg:         cfg,
		client:      client,
		socket:      socketmode.New(client),
		log:         slog.Default().With("channel", "slack"),
	}, nil
}

func (c *SlackChannel) Name() string { return "slack" }

// Start opens the Socket Mode connection and processes events until the
// context is cancelled.
func (c *SlackChannel) Start(ctx context.Context) error {
	auth, err := c.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = auth.UserID

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		if err := c.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("socket mode stopped", "error", err)
		}
	}()
	c.log.Info("slack channel started", "bot_user", c.botUserID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-c.socket.Events:
			if !ok {
				return nil
			}
			if event.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if event.Request != nil {
				c.socket.Ack(*event.Request)
			}
			if err := c.handleEvent(ctx, apiEvent); err != nil {
				c.log.Warn("handle event failed", "error", err)
			}
		}
	}
}

func (c *SlackChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send posts to the originating conversation, threading channel replies
// when the inbound message carried a thread timestamp.
func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}

	threadTS, channelType := slackMeta(msg.Metadata)
	if threadTS != "" && channelType != "im" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, _, err := c.client.PostMessageContext(ctx, msg.ChatID, opts...)
	return err
}

func (c *SlackChannel) handleEvent(ctx context.Context, apiEvent slackevents.EventsAPIEvent) error {
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.SubType != "" || ev.BotID != "" || ev.User == "" || ev.User == c.botUserID {
			return nil
		}
		// Mentions in channels arrive again as app_mention; let that
		// event handle them.
		if strings.Contains(ev.Text, c.mentionTag()) {
			return nil
		}
		if ev.ChannelType != "im" {
			return nil
		}
		return c.acceptMessage(ctx, ev.User, ev.Channel, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp, ev.ChannelType)
	case *slackevents.AppMentionEvent:
		if ev.User == "" || ev.User == c.botUserID {
			return nil
		}
		return c.acceptMessage(ctx, ev.User, ev.Channel, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp, "channel")
	default:
		return nil
	}
}

func (c *SlackChannel) acceptMessage(ctx context.Context, senderID, chatID, rawText, ts, threadTS, channelType string) error {
	text := strings.TrimSpace(strings.ReplaceAll(rawText, c.mentionTag(), ""))
	if text == "" {
		return nil
	}
	if threadTS == "" {
		threadTS = ts
	}

	if ts != "" && c.IsAllowed(senderID) {
		if err := c.client.AddReactionContext(ctx, "eyes", slack.NewRefToMessage(chatID, ts)); err != nil {
			c.log.Debug("reaction failed", "error", err)
		}
	}

	metadata := map[string]any{
		"slack": map[string]any{
			"thread_ts":    threadTS,
			"channel_type": channelType,
		},
	}
	return c.HandleMessage(ctx, senderID, chatID, text, nil, metadata)
}

func (c *SlackChannel) mentionTag() string {
	return "<@" + c.botUserID + ">"
}

// slackMeta extracts the thread timestamp and channel type recorded on
// the inbound message.
func slackMeta(metadata map[string]any) (threadTS, channelType string) {
	if metadata == nil {
		return "", ""
	}
	inner, ok := metadata["slack"].(map[string]any)
	if !ok {
		return "", ""
	}
	threadTS, _ = inner["thread_ts"].(string)
	channelType, _ = inner["channel_type"].(string)
	return threadTS, channelType
}
