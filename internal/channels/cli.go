package channels

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/goclaw/goclaw/internal/bus"
)

// CLIChannel is the interactive terminal transport. Lines read from
// stdin become inbound messages; agent replies print to stdout.
type CLIChannel struct {
	BaseChannel
	In     io.Reader
	Out    io.Writer
	cancel context.CancelFunc
}

func NewCLIChannel(messageBus *bus.MessageBus) *CLIChannel {
	return &CLIChannel{
		BaseChannel: BaseChannel{Bus: messageBus, ChannelName: "cli"},
		In:          os.Stdin,
		Out:         os.Stdout,
	}
}

func (c *CLIChannel) Name() string { return "cli" }

func (c *CLIChannel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	scanner := bufio.NewScanner(c.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.HandleMessage(ctx, "user", "direct", line, nil, nil); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (c *CLIChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *CLIChannel) Send(_ context.Context, msg *bus.OutboundMessage) error {
	prompt := color.New(color.FgCyan, color.Bold).Sprint("goclaw:")
	_, err := io.WriteString(c.Out, prompt+" "+msg.Content+"\n")
	return err
}
