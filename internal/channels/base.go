// Package channels implements the chat transports that bridge external
// services onto the message bus.
package channels

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/pairing"
)

// Channel is a chat transport connected to the message bus.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel carries what every transport shares: the bus, the channel
// name, and the sender allowlist.
type BaseChannel struct {
	Bus         *bus.MessageBus
	ChannelName string
	AllowFrom   []string
}

// IsAllowed reports whether a sender passes the allowlist. An empty
// allowlist admits everyone. Sender IDs of the form "id|alias" match
// when any part is listed.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}
	sender := strings.TrimSpace(senderID)
	for _, allowed := range b.AllowFrom {
		if strings.TrimSpace(allowed) == sender {
			return true
		}
	}
	if strings.Contains(sender, "|") {
		for _, part := range strings.Split(sender, "|") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			for _, allowed := range b.AllowFrom {
				if strings.TrimSpace(allowed) == part {
					return true
				}
			}
		}
	}
	return false
}

// HandleMessage is the shared inbound path. Unauthorized senders get a
// pairing prompt on the outbound queue and never reach the agent.
func (b *BaseChannel) HandleMessage(ctx context.Context, senderID, chatID, content string, media []string, metadata map[string]any) error {
	if !b.IsAllowed(senderID) {
		issue, err := pairing.IssuePairing(b.ChannelName, senderID, chatID)
		if err != nil {
			slog.Warn("pairing issue failed", "channel", b.ChannelName, "sender", senderID, "error", err)
			return nil
		}
		slog.Info("pairing required", "channel", b.ChannelName, "sender", senderID)
		return b.Bus.PublishOutbound(ctx, &bus.OutboundMessage{
			Channel: b.ChannelName,
			ChatID:  chatID,
			Content: pairing.PairingPrompt(issue),
		})
	}

	msg := bus.NewInboundMessage(b.ChannelName, senderID, chatID, content)
	msg.Media = media
	msg.Metadata = metadata
	return b.Bus.PublishInbound(ctx, msg)
}
