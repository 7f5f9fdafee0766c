package bus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestPublishConsumeFIFO(t *testing.T) {
	b := NewMessageBus()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := NewInboundMessage("cli", "user", "direct", fmt.Sprintf("msg-%d", i))
		if err := b.PublishInbound(ctx, msg); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	if b.InboundSize() != 5 {
		t.Errorf("expected depth 5, got %d", b.InboundSize())
	}

	for i := 0; i < 5; i++ {
		msg, err := b.ConsumeInbound(ctx)
		if err != nil {
			t.Fatalf("consume failed: %v", err)
		}
		want := fmt.Sprintf("msg-%d", i)
		if msg.Content != want {
			t.Errorf("expected %q, got %q", want, msg.Content)
		}
	}

	if b.InboundSize() != 0 {
		t.Errorf("expected depth 0 after drain, got %d", b.InboundSize())
	}
}

func TestConsumeTimeout(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.ConsumeInbound(ctx)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := NewMessageBus()
	b.Close()

	err := b.PublishInbound(context.Background(), NewInboundMessage("cli", "u", "c", "hi"))
	if err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if b.InboundSize() != 0 {
		t.Errorf("depth should stay 0, got %d", b.InboundSize())
	}
}

func TestCloseUnblocksFullQueuePublisher(t *testing.T) {
	b := NewMessageBusWithCapacity(1)
	ctx := context.Background()

	if err := b.PublishInbound(ctx, NewInboundMessage("cli", "u", "c", "first")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	inErr := make(chan error, 1)
	go func() {
		inErr <- b.PublishInbound(ctx, NewInboundMessage("cli", "u", "c", "second"))
	}()
	outErr := make(chan error, 1)
	go func() {
		if err := b.PublishOutbound(ctx, &OutboundMessage{Channel: "cli", ChatID: "c", Content: "one"}); err != nil {
			outErr <- err
			return
		}
		outErr <- b.PublishOutbound(ctx, &OutboundMessage{Channel: "cli", ChatID: "c", Content: "two"})
	}()

	// Let both publishers block on the full queues.
	time.Sleep(20 * time.Millisecond)
	b.Close()

	for name, ch := range map[string]chan error{"inbound": inErr, "outbound": outErr} {
		select {
		case err := <-ch:
			if err != ErrClosed {
				t.Errorf("%s: expected ErrClosed, got %v", name, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s publisher still blocked after close", name)
		}
	}

	if b.InboundSize() != 1 {
		t.Errorf("inbound depth should reflect only the queued message, got %d", b.InboundSize())
	}
	if b.OutboundSize() != 1 {
		t.Errorf("outbound depth should reflect only the queued message, got %d", b.OutboundSize())
	}
}

func TestCloseSentinel(t *testing.T) {
	b := NewMessageBus()
	ctx := context.Background()

	if err := b.PublishInbound(ctx, NewInboundMessage("cli", "u", "c", "last")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	b.Close()

	msg, err := b.ConsumeInbound(ctx)
	if err != nil || msg == nil || msg.Content != "last" {
		t.Fatalf("expected pending message before sentinel, got %v %v", msg, err)
	}

	msg, err = b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("consume on closed bus: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil sentinel, got %+v", msg)
	}
}

func TestOutboundDispatch(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	b.Subscribe("telegram", func(msg *OutboundMessage) {
		got <- msg.Content
	})

	go b.DispatchOutbound(ctx)

	err := b.PublishOutbound(ctx, &OutboundMessage{Channel: "telegram", ChatID: "42", Content: "hello"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case content := <-got:
		if content != "hello" {
			t.Errorf("expected hello, got %q", content)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch did not deliver")
	}
}

func TestSessionKey(t *testing.T) {
	msg := NewInboundMessage("telegram", "u1", "42", "hi")
	if msg.SessionKey() != "telegram:42" {
		t.Errorf("unexpected session key %q", msg.SessionKey())
	}
}
