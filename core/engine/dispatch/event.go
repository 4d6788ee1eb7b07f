// Package dispatch routes inbound chat events to handlers keyed by envelope action and
// gated by predicates.
package dispatch

import (
	"context"

	"github.com/m3rciful/ocipanel/core/engine/envelope"
)

// Kind distinguishes button presses from ordinary messages.
type Kind int

const (
	// KindCallback is an inline button press.
	KindCallback Kind = iota + 1
	// KindMessage is a text or document message, possibly a reply.
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindCallback:
		return "callback"
	case KindMessage:
		return "message"
	}
	return "unknown"
}

// Document describes an attachment on an inbound message.
type Document struct {
	FileID   string
	FileName string
	MIME     string
	Size     int64
}

// Event is the transport-neutral view of one inbound update.
type Event struct {
	Kind      Kind
	UpdateID  int
	ChatID    int64
	UserID    int64
	Username  string
	MessageID int
	// ReplyToID is the id of the message this one replies to, 0 when it is not a reply.
	ReplyToID int

	// Data is the raw button payload; Code is the reference code decoded from it.
	Data     string
	Code     string
	Envelope envelope.Envelope
	Resolved bool

	Text     string
	Document *Document
}

// Action returns the resolved envelope action, or "" when nothing was resolved.
func (e *Event) Action() string {
	if e == nil || !e.Resolved {
		return ""
	}
	return e.Envelope.Action()
}

// Button is one inline keyboard button. Data is the wire payload sent back on press.
type Button struct {
	Text string
	Data string
}

// Message is an outbound message or edit.
type Message struct {
	Text       string
	Markdown   bool
	Keyboard   [][]Button
	ForceReply bool
	// Placeholder is shown in the input field while a force-reply is pending.
	Placeholder string
}

// Responder is the outbound side of the chat transport.
type Responder interface {
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, msg Message) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	// Notify answers the pending button press, optionally as an alert.
	Notify(ctx context.Context, text string, alert bool) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Request pairs an event with the responder able to answer it.
type Request struct {
	Event *Event
	Out   Responder
}

// Reply edits the message carrying the pressed button, or sends a new message for other events.
// It returns the id of the message now showing msg.
func (r *Request) Reply(ctx context.Context, msg Message) (int, error) {
	ev := r.Event
	if ev.Kind == KindCallback && ev.MessageID != 0 && !msg.ForceReply {
		if err := r.Out.Edit(ctx, ev.ChatID, ev.MessageID, msg); err != nil {
			return 0, err
		}
		return ev.MessageID, nil
	}
	return r.Out.Send(ctx, ev.ChatID, msg)
}

// Send posts a new message to the event's chat.
func (r *Request) Send(ctx context.Context, msg Message) (int, error) {
	return r.Out.Send(ctx, r.Event.ChatID, msg)
}
