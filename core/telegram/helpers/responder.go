package helpers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/telegram/keyboard"
	"github.com/m3rciful/ocipanel/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// MaxDownloadBytes caps file downloads; the Bot API serves at most 20 MB.
const MaxDownloadBytes = 20 << 20

// Responder answers one update through the bot API. It satisfies dispatch.Responder.
// Calls go through the outbound dispatcher when one is set so transient network errors are retried.
type Responder struct {
	c        tele.Context
	disp     *sender.Dispatcher
	answered bool
}

var _ dispatch.Responder = (*Responder)(nil)

// NewResponder binds a responder to the update in c. disp may be nil.
func NewResponder(c tele.Context, disp *sender.Dispatcher) *Responder {
	return &Responder{c: c, disp: disp}
}

func (r *Responder) do(ctx context.Context, action, endpoint string, run func() error) error {
	if r.disp == nil {
		return run()
	}
	return r.disp.Do(ctx, action, endpoint, run)
}

func sendOptions(msg dispatch.Message) *tele.SendOptions {
	opts := &tele.SendOptions{ReplyMarkup: keyboard.Markup(msg)}
	if msg.Markdown {
		opts.ParseMode = tele.ModeMarkdown
	}
	return opts
}

func hasButtons(msg dispatch.Message) bool {
	return len(msg.Keyboard) > 0 || msg.ForceReply
}

// Send posts msg to chatID and returns the new message id.
func (r *Responder) Send(ctx context.Context, chatID int64, msg dispatch.Message) (int, error) {
	var id int
	err := r.do(ctx, "send.message", "sendMessage", func() error {
		m, err := r.c.Bot().Send(tele.ChatID(chatID), msg.Text, sendOptions(msg))
		if err != nil {
			return err
		}
		id = m.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	CountMessage(r.c, hasButtons(msg))
	return id, nil
}

// Edit replaces text and keyboard of an existing message. Unchanged content is not an error.
func (r *Responder) Edit(ctx context.Context, chatID int64, messageID int, msg dispatch.Message) error {
	stored := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	err := r.do(ctx, "edit.message", "editMessageText", func() error {
		_, err := r.c.Bot().Edit(stored, msg.Text, sendOptions(msg))
		if notModified(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	CountMessage(r.c, hasButtons(msg))
	return nil
}

func notModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// Delete removes a message. With a dispatcher the call is queued and the handler does not wait
// for it; a full queue falls back to an inline call.
func (r *Responder) Delete(ctx context.Context, chatID int64, messageID int) error {
	stored := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	bot := r.c.Bot()
	run := func() error { return bot.Delete(stored) }
	if r.disp == nil {
		return run()
	}
	err := r.disp.Enqueue(ctx, "delete.message", "deleteMessage", run)
	if errors.Is(err, sender.ErrQueueFull) {
		return r.disp.Do(ctx, "delete.message", "deleteMessage", run)
	}
	return err
}

// Notify answers the pending button press once. Without a press a non-empty text is sent as a message.
func (r *Responder) Notify(ctx context.Context, text string, alert bool) error {
	if r.c.Callback() == nil {
		chat := r.c.Chat()
		if text == "" || chat == nil {
			return nil
		}
		_, err := r.Send(ctx, chat.ID, dispatch.Message{Text: text})
		return err
	}
	if r.answered {
		return nil
	}
	r.answered = true
	return r.c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: alert})
}

// Answer acknowledges a press nothing has answered yet so the client stops its spinner.
func (r *Responder) Answer() error {
	if r.answered || r.c.Callback() == nil {
		return nil
	}
	r.answered = true
	return r.c.Respond()
}

// Download fetches a file sent to the bot.
func (r *Responder) Download(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "download.file", "getFile", func() error {
		rc, err := r.c.Bot().File(&tele.File{FileID: fileID})
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err = io.ReadAll(io.LimitReader(rc, MaxDownloadBytes+1))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, fmt.Errorf("telegram: file %s exceeds %d bytes", fileID, MaxDownloadBytes)
	}
	return data, nil
}
