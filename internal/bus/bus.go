// Package bus provides the async message bus for channel-agent communication.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Well-known metadata keys and message type constants.
const (
	MetaKeyMessageType  = "message_type"
	MessageTypeInternal = "internal"
	MessageTypeExternal = "external"
)

// ErrClosed is returned when publishing to a bus that has been closed.
var ErrClosed = errors.New("bus: closed")

const defaultCapacity = 100

// InboundMessage represents a message from a channel to the agent.
type InboundMessage struct {
	Channel   string         `json:"channel"`
	SenderID  string         `json:"sender_id"`
	ChatID    string         `json:"chat_id"`
	Content   string         `json:"content"`
	Media     []string       `json:"media,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewInboundMessage creates an inbound message with the timestamp set.
func NewInboundMessage(channel, senderID, chatID, content string) *InboundMessage {
	return &InboundMessage{
		Channel:   channel,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// SessionKey returns the conversation key for this message.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// MessageType returns the message type from metadata, defaulting to external.
func (m *InboundMessage) MessageType() string {
	if m.Metadata != nil {
		if v, ok := m.Metadata[MetaKeyMessageType].(string); ok && v != "" {
			return v
		}
	}
	return MessageTypeExternal
}

// OutboundMessage represents a message from the agent to a channel.
type OutboundMessage struct {
	Channel  string         `json:"channel"`
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	ReplyTo  string         `json:"reply_to,omitempty"`
	Media    []string       `json:"media,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MessageBus decouples channels from the agent core. Both queues are
// bounded; publishing blocks when a queue is full rather than dropping.
// Each queue supports exactly one logical consumer.
type MessageBus struct {
	inbound  chan *InboundMessage
	outbound chan *OutboundMessage

	inboundDepth  atomic.Int64
	outboundDepth atomic.Int64

	// done signals shutdown. The data channels are never closed, so a
	// publisher blocked on a full queue can always select done safely.
	done      chan struct{}
	closeOnce sync.Once

	consumeInMu  sync.Mutex
	consumeOutMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[string][]func(*OutboundMessage)
}

// NewMessageBus creates a message bus with the default queue capacity.
func NewMessageBus() *MessageBus {
	return NewMessageBusWithCapacity(defaultCapacity)
}

// NewMessageBusWithCapacity creates a message bus with bounded queues of
// the given capacity.
func NewMessageBusWithCapacity(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MessageBus{
		inbound:  make(chan *InboundMessage, capacity),
		outbound: make(chan *OutboundMessage, capacity),
		done:     make(chan struct{}),
		subs:     make(map[string][]func(*OutboundMessage)),
	}
}

// PublishInbound enqueues a message from a channel to the agent. It blocks
// while the queue is full and fails only once the bus is closed, rolling
// the depth counter back in that case.
func (b *MessageBus) PublishInbound(ctx context.Context, msg *InboundMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	b.inboundDepth.Add(1)
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		b.inboundDepth.Add(-1)
		return ctx.Err()
	case <-b.done:
		b.inboundDepth.Add(-1)
		return ErrClosed
	}
}

// ConsumeInbound blocks until a message is available, the context is
// cancelled, or the bus is closed. A closed bus yields (nil, nil).
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	b.consumeInMu.Lock()
	defer b.consumeInMu.Unlock()

	select {
	case msg := <-b.inbound:
		b.inboundDepth.Add(-1)
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		// Drain pending messages before reporting the bus closed.
		select {
		case msg := <-b.inbound:
			b.inboundDepth.Add(-1)
			return msg, nil
		default:
			return nil, nil
		}
	}
}

// PublishOutbound enqueues a message from the agent to channels.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg *OutboundMessage) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	b.outboundDepth.Add(1)
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		b.outboundDepth.Add(-1)
		return ctx.Err()
	case <-b.done:
		b.outboundDepth.Add(-1)
		return ErrClosed
	}
}

// ConsumeOutbound blocks until a message is available, the context is
// cancelled, or the bus is closed. A closed bus yields (nil, nil).
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (*OutboundMessage, error) {
	b.consumeOutMu.Lock()
	defer b.consumeOutMu.Unlock()

	select {
	case msg := <-b.outbound:
		b.outboundDepth.Add(-1)
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		select {
		case msg := <-b.outbound:
			b.outboundDepth.Add(-1)
			return msg, nil
		default:
			return nil, nil
		}
	}
}

// Subscribe registers a callback for outbound messages to a specific channel.
func (b *MessageBus) Subscribe(channel string, callback func(*OutboundMessage)) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	b.subs[channel] = append(b.subs[channel], callback)
}

// DispatchOutbound drains the outbound queue and fans each message out to
// the subscribers of its channel. This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		msg, err := b.ConsumeOutbound(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}

		b.subsMu.RLock()
		callbacks := b.subs[msg.Channel]
		b.subsMu.RUnlock()

		if len(callbacks) == 0 {
			slog.Warn("outbound message has no subscriber", "channel", msg.Channel)
			continue
		}
		for _, cb := range callbacks {
			cb(msg)
		}
	}
}

// Close shuts the bus down. Publishers blocked on a full queue unblock
// with ErrClosed. Pending messages remain consumable; once drained,
// consumers receive the nil sentinel.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// InboundSize returns the number of pending inbound messages.
func (b *MessageBus) InboundSize() int {
	return int(b.inboundDepth.Load())
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return int(b.outboundDepth.Load())
}
