package channels

import (
	"bytes"
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/omegacorp/omega/internal/gwerrors"
	"github.com/omegacorp/omega/internal/logging"
)

// DiscordChannel is the enrichment channel implementation, demonstrating
// the Channel abstraction holds for a transport spec.md never names.
type DiscordChannel struct {
	session      *discordgo.Session
	allowedUsers map[string]bool
	out          chan Message
}

func NewDiscordChannel(botToken string, allowedUsers []string) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, gwerrors.New(gwerrors.Channel, "discord: create session", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	allowed := make(map[string]bool, len(allowedUsers))
	for _, u := range allowedUsers {
		allowed[u] = true
	}

	return &DiscordChannel{session: session, allowedUsers: allowed}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Start(ctx context.Context) (<-chan Message, error) {
	c.out = make(chan Message, 64)

	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, s, m)
	})

	if err := c.session.Open(); err != nil {
		return nil, gwerrors.New(gwerrors.Channel, "discord: open session", err)
	}

	go func() {
		<-ctx.Done()
		c.session.Close()
		close(c.out)
	}()

	return c.out, nil
}

func (c *DiscordChannel) handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if len(c.allowedUsers) > 0 && !c.allowedUsers[m.Author.ID] {
		logging.WarnCF("channel.discord", "dropped message from unauthorized user", map[string]interface{}{"sender_id": m.Author.ID})
		return
	}
	if m.Content == "" {
		return
	}

	select {
	case c.out <- Message{
		ID:          m.ID,
		Channel:     c.Name(),
		SenderID:    m.Author.ID,
		SenderName:  m.Author.Username,
		Text:        m.Content,
		Timestamp:   m.Timestamp,
		ReplyTarget: m.ChannelID,
	}:
	case <-ctx.Done():
	}
}

func (c *DiscordChannel) Send(ctx context.Context, out Outgoing) error {
	_, err := c.session.ChannelMessageSend(out.ReplyTarget, out.Text)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "discord: send message", err)
	}
	return nil
}

func (c *DiscordChannel) SendTyping(ctx context.Context, target string) error {
	if err := c.session.ChannelTyping(target); err != nil {
		return gwerrors.New(gwerrors.Channel, "discord: send typing", err)
	}
	return nil
}

func (c *DiscordChannel) SendPhoto(ctx context.Context, target string, data []byte, caption string) error {
	_, err := c.session.ChannelFileSendWithMessage(target, caption, "photo.png", bytes.NewReader(data))
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "discord: send photo", err)
	}
	return nil
}

func (c *DiscordChannel) Stop() error {
	return c.session.Close()
}
