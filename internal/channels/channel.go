// Package channels implements the Channel abstraction spec.md §4.5 names:
// a uniform five-operation surface (start, send, send_typing, send_photo,
// stop) over Telegram and WhatsApp (spec-mandated) plus Discord and a
// local console (enrichment, demonstrating the abstraction holds beyond
// the two named channels).
package channels

import (
	"context"
	"time"
)

// Message is one inbound message from a channel, in the shape the
// gateway pipeline consumes regardless of origin.
type Message struct {
	ID          string
	Channel     string
	SenderID    string
	SenderName  string
	Text        string
	Timestamp   time.Time
	ReplyTo     string
	Attachments []Attachment
	ReplyTarget string
}

// Attachment is a single inbound file, already read into memory — callers
// decide persistence (the gateway's inbox-save pipeline step).
type Attachment struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Outgoing is a reply the gateway hands back to a channel for delivery.
type Outgoing struct {
	Text        string
	Metadata    map[string]string
	ReplyTarget string
}

// Channel is the polymorphic capability every transport satisfies. Start
// returns a receive-only stream of inbound messages and must not block.
// A channel with no typing or image concept makes SendTyping a no-op and
// SendPhoto a no-op or a text stand-in (the console prints a placeholder).
type Channel interface {
	Name() string
	Start(ctx context.Context) (<-chan Message, error)
	Send(ctx context.Context, out Outgoing) error
	SendTyping(ctx context.Context, target string) error
	SendPhoto(ctx context.Context, target string, data []byte, caption string) error
	Stop() error
}
