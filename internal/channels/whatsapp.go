package channels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	qrterminal "github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/omegacorp/omega/internal/gwerrors"
	"github.com/omegacorp/omega/internal/logging"
)

// WhatsAppChannel implements Channel over whatsmeow's multi-device
// protocol. Pairing is driven by the WHATSAPP_QR marker: the gateway
// invokes BeginPairing, which renders a QR code both to the console (via
// qrterminal) and, when the session has an operator-facing channel that
// supports images, as a PNG through SendPhoto.
type WhatsAppChannel struct {
	client       *whatsmeow.Client
	allowedUsers map[string]bool
	out          chan Message

	typingMu   sync.Mutex
	typingStop map[string]chan struct{}
}

func waLogger() waLog.Logger { return waLogAdapter{} }

type waLogAdapter struct{}

func (waLogAdapter) Errorf(msg string, args ...interface{}) {
	logging.ErrorCF("channel.whatsapp", fmt.Sprintf(msg, args...), nil)
}
func (waLogAdapter) Warnf(msg string, args ...interface{}) {
	logging.WarnCF("channel.whatsapp", fmt.Sprintf(msg, args...), nil)
}
func (waLogAdapter) Infof(msg string, args ...interface{}) {
	logging.InfoCF("channel.whatsapp", fmt.Sprintf(msg, args...), nil)
}
func (waLogAdapter) Debugf(msg string, args ...interface{}) {
	logging.DebugCF("channel.whatsapp", fmt.Sprintf(msg, args...), nil)
}
func (l waLogAdapter) Sub(string) waLog.Logger { return l }

// NewWhatsAppChannel opens (or creates) the whatsmeow device store at
// dbPath. The device is expected to already be paired; use BeginPairing
// for first-time onboarding.
func NewWhatsAppChannel(ctx context.Context, dbPath string, allowedUsers []string) (*WhatsAppChannel, error) {
	if dbPath == "" {
		return nil, gwerrors.New(gwerrors.Config, "whatsapp: database path not configured", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, gwerrors.New(gwerrors.IO, "whatsapp: create db directory", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3", "file:"+dbPath+"?_foreign_keys=on", waLogger())
	if err != nil {
		return nil, gwerrors.New(gwerrors.Memory, "whatsapp: open device store", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, gwerrors.New(gwerrors.Memory, "whatsapp: get device", err)
	}

	allowed := make(map[string]bool, len(allowedUsers))
	for _, u := range allowedUsers {
		allowed[u] = true
	}

	return &WhatsAppChannel{
		client:       whatsmeow.NewClient(device, waLogger()),
		allowedUsers: allowed,
		typingStop:   make(map[string]chan struct{}),
	}, nil
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

// IsPaired reports whether the underlying device store already holds a
// linked session.
func (c *WhatsAppChannel) IsPaired() bool { return c.client.Store.ID != nil }

// BeginPairing renders a QR pairing code, invoked by the gateway when it
// sees the WHATSAPP_QR marker. qrImage, if non-nil, receives the PNG bytes
// for channels that can deliver an inline image alongside the console
// rendering.
func (c *WhatsAppChannel) BeginPairing(ctx context.Context, qrImage func([]byte)) error {
	if c.IsPaired() {
		return nil
	}

	qrChan, err := c.client.GetQRChannel(ctx)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "whatsapp: get QR channel", err)
	}
	if err := c.client.Connect(); err != nil {
		return gwerrors.New(gwerrors.Channel, "whatsapp: connect for pairing", err)
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			if qrImage != nil {
				if png, err := renderQRPNG(evt.Code); err == nil {
					qrImage(png)
				}
			}
		case "success":
			logging.InfoCF("channel.whatsapp", "pairing successful", nil)
			return nil
		case "timeout":
			return gwerrors.New(gwerrors.Channel, "whatsapp: QR pairing timed out", nil)
		}
	}
	return nil
}

func (c *WhatsAppChannel) Start(ctx context.Context) (<-chan Message, error) {
	if !c.IsPaired() {
		return nil, gwerrors.New(gwerrors.Config, "whatsapp: device not paired, send WHATSAPP_QR first", nil)
	}

	c.out = make(chan Message, 64)
	c.client.AddEventHandler(func(evt interface{}) {
		c.handleEvent(ctx, evt)
	})

	if err := c.client.Connect(); err != nil {
		return nil, gwerrors.New(gwerrors.Channel, "whatsapp: connect", err)
	}

	go func() {
		<-ctx.Done()
		c.stopAllTyping()
		c.client.Disconnect()
		close(c.out)
	}()

	return c.out, nil
}

func (c *WhatsAppChannel) handleEvent(ctx context.Context, evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		if err := c.client.SendPresence(ctx, types.PresenceAvailable); err != nil {
			logging.WarnCF("channel.whatsapp", "failed to send available presence", map[string]interface{}{"error": err.Error()})
		}
	case *events.Message:
		c.handleMessage(ctx, v)
	}
}

func (c *WhatsAppChannel) handleMessage(ctx context.Context, msg *events.Message) {
	if msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}

	senderID := msg.Info.Sender.User
	if len(c.allowedUsers) > 0 && !c.allowedUsers[senderID] {
		logging.WarnCF("channel.whatsapp", "dropped message from unauthorized user", map[string]interface{}{"sender_id": senderID})
		return
	}

	text := ""
	if msg.Message.Conversation != nil {
		text = *msg.Message.Conversation
	} else if msg.Message.ExtendedTextMessage != nil && msg.Message.ExtendedTextMessage.Text != nil {
		text = *msg.Message.ExtendedTextMessage.Text
	}

	var attachments []Attachment
	if img := msg.Message.ImageMessage; img != nil {
		if img.Caption != nil {
			text = *img.Caption
		}
		if data, err := c.client.Download(ctx, img); err == nil {
			attachments = append(attachments, Attachment{Filename: "image.jpg", MIMEType: img.GetMimetype(), Data: data})
		}
	}

	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return
	}

	_ = c.client.MarkRead(ctx, []types.MessageID{msg.Info.ID}, msg.Info.Timestamp, msg.Info.Chat, msg.Info.Sender)
	c.startTyping(ctx, msg.Info.Chat)

	select {
	case c.out <- Message{
		ID:          msg.Info.ID,
		Channel:     c.Name(),
		SenderID:    senderID,
		Text:        text,
		Timestamp:   msg.Info.Timestamp,
		Attachments: attachments,
		ReplyTarget: msg.Info.Chat.String(),
	}:
	case <-ctx.Done():
	}
}

func (c *WhatsAppChannel) Send(ctx context.Context, out Outgoing) error {
	recipient, err := types.ParseJID(out.ReplyTarget)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "whatsapp: parse recipient", err)
	}
	c.stopTyping(out.ReplyTarget)

	text := out.Text
	_, err = c.client.SendMessage(ctx, recipient, &waProto.Message{Conversation: &text})
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "whatsapp: send message", err)
	}
	return nil
}

func (c *WhatsAppChannel) SendTyping(ctx context.Context, target string) error {
	jid, err := types.ParseJID(target)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "whatsapp: parse target", err)
	}
	return c.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

func (c *WhatsAppChannel) SendPhoto(ctx context.Context, target string, data []byte, caption string) error {
	recipient, err := types.ParseJID(target)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "whatsapp: parse recipient", err)
	}
	uploaded, err := c.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "whatsapp: upload photo", err)
	}
	mimetype := "image/png"
	_, err = c.client.SendMessage(ctx, recipient, &waProto.Message{
		ImageMessage: &waProto.ImageMessage{
			Caption:       &caption,
			Mimetype:      &mimetype,
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		},
	})
	if err != nil {
		return gwerrors.New(gwerrors.Channel, "whatsapp: send photo", err)
	}
	return nil
}

func (c *WhatsAppChannel) Stop() error {
	c.stopAllTyping()
	c.client.Disconnect()
	return nil
}

// startTyping begins a continuous composing presence for a chat,
// refreshed every 8s, stopping automatically after 5 minutes.
func (c *WhatsAppChannel) startTyping(ctx context.Context, jid types.JID) {
	key := jid.String()
	c.typingMu.Lock()
	if stop, ok := c.typingStop[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	c.typingStop[key] = stop
	c.typingMu.Unlock()

	go func() {
		_ = c.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()

		for {
			select {
			case <-stop:
				return
			case <-timeout.C:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
			}
		}
	}()
}

func (c *WhatsAppChannel) stopTyping(target string) {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if stop, ok := c.typingStop[target]; ok {
		close(stop)
		delete(c.typingStop, target)
	}
}

func (c *WhatsAppChannel) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	for _, stop := range c.typingStop {
		close(stop)
	}
	c.typingStop = make(map[string]chan struct{})
}

func renderQRPNG(code string) ([]byte, error) {
	return qrcode.Encode(code, qrcode.Medium, 256)
}
