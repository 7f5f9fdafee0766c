package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/provider"
)

const telegramPollTimeout = 30

// TelegramChannel receives updates via long polling and replies with
// HTML-formatted messages.
type TelegramChannel struct {
	BaseChannel
	cfg         config.TelegramConfig
	bot         *telego.Bot
	mediaDir    string
	transcriber provider.LLMProvider
	cancel      context.CancelFunc
	log         *slog.Logger
}

// NewTelegramChannel creates the Telegram transport. Downloaded media
// lands under <dataDir>/media.
func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus, dataDir string) (*TelegramChannel, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramChannel{
		BaseChannel: BaseChannel{Bus: messageBus, ChannelName: "telegram", AllowFrom: cfg.AllowFrom},
		cfg:         cfg,
		bot:         bot,
		mediaDir:    filepath.Join(dataDir, "media"),
		log:         slog.Default().With("channel", "telegram"),
	}, nil
}

// SetTranscriber enables voice message transcription.
func (c *TelegramChannel) SetTranscriber(p provider.LLMProvider) {
	c.transcriber = p
}

func (c *TelegramChannel) Name() string { return "telegram" }

// Start runs the long-polling loop until the context is cancelled.
func (c *TelegramChannel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{Timeout: telegramPollTimeout})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	c.log.Info("telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			if err := c.handleUpdate(ctx, update.Message); err != nil {
				c.log.Warn("handle update failed", "error", err)
			}
		}
	}
}

func (c *TelegramChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send converts the content to Telegram HTML and falls back to plain
// text when the formatted send is rejected.
func (c *TelegramChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.ChatID), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}

	formatted := tu.Message(tu.ID(chatID), markdownToTelegramHTML(msg.Content))
	formatted.ParseMode = telego.ModeHTML
	if _, err := c.bot.SendMessage(ctx, formatted); err == nil {
		return nil
	}

	_, err = c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content))
	return err
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, message *telego.Message) error {
	user := message.From
	if user == nil {
		return nil
	}
	senderID := strconv.FormatInt(user.ID, 10)
	if user.Username != "" {
		senderID = senderID + "|" + user.Username
	}
	chatID := strconv.FormatInt(message.Chat.ID, 10)

	if strings.HasPrefix(message.Text, "/") {
		if strings.HasPrefix(strings.TrimSpace(message.Text), "/start") {
			name := user.FirstName
			if name == "" {
				name = "there"
			}
			greeting := fmt.Sprintf("Hi %s! I'm goclaw.\n\nSend me a message and I'll respond!", name)
			_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(message.Chat.ID), greeting))
			return err
		}
		return nil
	}

	var contentParts []string
	var mediaPaths []string
	if message.Text != "" {
		contentParts = append(contentParts, message.Text)
	}
	if message.Caption != "" {
		contentParts = append(contentParts, message.Caption)
	}

	if len(message.Photo) > 0 {
		photo := message.Photo[len(message.Photo)-1]
		if path := c.downloadFile(ctx, photo.FileID, ".jpg"); path != "" {
			mediaPaths = append(mediaPaths, path)
			contentParts = append(contentParts, fmt.Sprintf("[image: %s]", path))
		} else {
			contentParts = append(contentParts, "[image: download failed]")
		}
	}
	if message.Voice != nil {
		contentParts = append(contentParts, c.handleAudio(ctx, message.Voice.FileID, "voice", ".ogg", &mediaPaths))
	}
	if message.Audio != nil {
		contentParts = append(contentParts, c.handleAudio(ctx, message.Audio.FileID, "audio", ".mp3", &mediaPaths))
	}
	if message.Document != nil {
		if path := c.downloadFile(ctx, message.Document.FileID, ""); path != "" {
			mediaPaths = append(mediaPaths, path)
			contentParts = append(contentParts, fmt.Sprintf("[file: %s]", path))
		} else {
			contentParts = append(contentParts, "[file: download failed]")
		}
	}

	content := strings.Join(contentParts, "\n")
	if content == "" {
		content = "[empty message]"
	}

	if err := c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(message.Chat.ID), telego.ChatActionTyping)); err != nil {
		c.log.Debug("typing indicator failed", "error", err)
	}

	metadata := map[string]any{
		"message_id": message.MessageID,
		"user_id":    user.ID,
		"username":   user.Username,
		"first_name": user.FirstName,
		"is_group":   message.Chat.Type != "private",
	}
	return c.HandleMessage(ctx, senderID, chatID, content, mediaPaths, metadata)
}

// handleAudio downloads a voice or audio file and transcribes it when a
// transcriber is configured.
func (c *TelegramChannel) handleAudio(ctx context.Context, fileID, kind, ext string, mediaPaths *[]string) string {
	path := c.downloadFile(ctx, fileID, ext)
	if path == "" {
		return fmt.Sprintf("[%s: download failed]", kind)
	}
	*mediaPaths = append(*mediaPaths, path)

	if c.transcriber != nil {
		tctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		resp, err := c.transcriber.Transcribe(tctx, &provider.AudioRequest{FilePath: path})
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return fmt.Sprintf("[transcription: %s]", resp.Text)
		}
		if err != nil {
			c.log.Warn("transcription failed", "error", err)
		}
	}
	return fmt.Sprintf("[%s: %s]", kind, path)
}

func (c *TelegramChannel) downloadFile(ctx context.Context, fileID, ext string) string {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil || file.FilePath == "" {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return ""
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ""
	}

	if err := os.MkdirAll(c.mediaDir, 0o755); err != nil {
		return ""
	}
	name := fileID
	if len(name) > 16 {
		name = name[:16]
	}
	path := filepath.Join(c.mediaDir, name+ext)
	out, err := os.Create(path)
	if err != nil {
		return ""
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(path)
		return ""
	}
	return path
}
