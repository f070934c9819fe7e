package channels

import (
	"bytes"
	"context"
	"strconv"
	"sync"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/omegacorp/omega/internal/gwerrors"
	"github.com/omegacorp/omega/internal/logging"
)

// TelegramChannel implements Channel over the Bot API via long polling.
type TelegramChannel struct {
	bot          *telego.Bot
	allowedUsers map[int64]bool
	handler      *th.BotHandler
	mu           sync.Mutex
	cancel       context.CancelFunc
}

func NewTelegramChannel(token string, allowedUsers []int64) (*TelegramChannel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, gwerrors.New(gwerrors.Channel, "telegram: create bot", err)
	}

	allowed := make(map[int64]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}

	return &TelegramChannel{bot: bot, allowedUsers: allowed}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Start(ctx context.Context) (<-chan Message, error) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	updates, err := c.bot.UpdatesViaLongPolling(runCtx, nil)
	if err != nil {
		cancel()
		return nil, gwerrors.New(gwerrors.Channel, "telegram: start long polling", err)
	}

	handler, err := th.NewBotHandler(c.bot, updates)
	if err != nil {
		cancel()
		return nil, gwerrors.New(gwerrors.Channel, "telegram: create handler", err)
	}
	c.handler = handler

	out := make(chan Message, 64)
	handler.HandleMessage(func(botCtx *th.Context, msg telego.Message) error {
		m, ok := c.toMessage(msg)
		if !ok {
			return nil
		}
		select {
		case out <- m:
		case <-runCtx.Done():
		}
		return nil
	})

	go func() {
		handler.Start()
		close(out)
	}()

	return out, nil
}

func (c *TelegramChannel) toMessage(msg telego.Message) (Message, bool) {
	if msg.From == nil || msg.Text == "" {
		return Message{}, false
	}

	senderID := msg.From.ID
	if len(c.allowedUsers) > 0 && !c.allowedUsers[senderID] {
		logging.WarnCF("channel.telegram", "dropped message from unauthorized user", map[string]interface{}{"sender_id": senderID})
		return Message{}, false
	}

	return Message{
		ID:          strconv.Itoa(msg.MessageID),
		Channel:     c.Name(),
		SenderID:    strconv.FormatInt(senderID, 10),
		SenderName:  msg.From.Username,
		Text:        msg.Text,
		Timestamp:   msg.Time(),
		ReplyTarget: strconv.FormatInt(msg.Chat.ID, 10),
	}, true
}

func (c *TelegramChannel) Send(ctx context.Context, out Outgoing) error {
	chatID, err := strconv.ParseInt(out.ReplyTarget, 10, 64)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "telegram: parse chat id", err)
	}
	_, err = c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), out.Text))
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "telegram: send message", err)
	}
	return nil
}

func (c *TelegramChannel) SendTyping(ctx context.Context, target string) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "telegram: parse chat id", err)
	}
	return c.bot.SendChatAction(ctx, &telego.SendChatActionParams{
		ChatID: tu.ID(chatID),
		Action: telego.ChatActionTyping,
	})
}

func (c *TelegramChannel) SendPhoto(ctx context.Context, target string, data []byte, caption string) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "telegram: parse chat id", err)
	}
	photo := tu.FileFromReader(bytes.NewReader(data), "photo.jpg")
	_, err = c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID:  tu.ID(chatID),
		Photo:   photo,
		Caption: caption,
	})
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "telegram: send photo", err)
	}
	return nil
}

func (c *TelegramChannel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		c.handler.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}
