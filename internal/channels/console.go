package channels

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chzyer/readline"

	"github.com/omegacorp/omega/internal/gwerrors"
)

// ConsoleChannel is a local stdin/stdout transport with no credentials,
// existing purely so an operator can exercise the full pipeline (enabled
// with `[channel.console] enabled` under `omega start`) without
// configuring a real channel. SendTyping is a no-op; SendPhoto prints a
// one-line "[image: caption, N bytes]" placeholder, since stdout has no
// typing indicator or inline images.
type ConsoleChannel struct {
	senderID string
	rl       *readline.Instance
}

const consoleReplyTarget = "console"

func NewConsoleChannel(senderID string) (*ConsoleChannel, error) {
	rl, err := readline.New("> ")
	if err != nil {
		return nil, gwerrors.New(gwerrors.Channel, "console: create readline instance", err)
	}
	if senderID == "" {
		senderID = "operator"
	}
	return &ConsoleChannel{senderID: senderID, rl: rl}, nil
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Start(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message, 8)

	go func() {
		defer close(out)
		defer c.rl.Close()
		for {
			line, err := c.rl.Readline()
			if err != nil {
				if err != io.EOF && err != readline.ErrInterrupt {
					fmt.Fprintf(c.rl.Stderr(), "console: read error: %v\n", err)
				}
				return
			}
			if line == "" {
				continue
			}
			msg := Message{
				ID:          fmt.Sprintf("console-%d", time.Now().UnixNano()),
				Channel:     c.Name(),
				SenderID:    c.senderID,
				Text:        line,
				Timestamp:   time.Now(),
				ReplyTarget: consoleReplyTarget,
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (c *ConsoleChannel) Send(ctx context.Context, out Outgoing) error {
	fmt.Fprintln(c.rl.Stdout(), out.Text)
	return nil
}

func (c *ConsoleChannel) SendTyping(ctx context.Context, target string) error { return nil }

func (c *ConsoleChannel) SendPhoto(ctx context.Context, target string, data []byte, caption string) error {
	fmt.Fprintf(c.rl.Stdout(), "[image: %s, %d bytes]\n", caption, len(data))
	return nil
}

func (c *ConsoleChannel) Stop() error {
	return c.rl.Close()
}
