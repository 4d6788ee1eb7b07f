package helpers

import (
	"github.com/m3rciful/ocipanel/core/engine/dispatch"

	tele "gopkg.in/telebot.v4"
)

// EventFrom converts a telebot update into a dispatch event. Callback events leave the
// envelope unresolved.
func EventFrom(c tele.Context) *dispatch.Event {
	ev := &dispatch.Event{UpdateID: c.Update().ID}
	if u := c.Sender(); u != nil {
		ev.UserID = u.ID
		ev.Username = u.Username
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}

	if cb := c.Callback(); cb != nil {
		ev.Kind = dispatch.KindCallback
		ev.Data = cb.Data
		if cb.Unique != "" {
			ev.Data = "\f" + cb.Unique + "|" + cb.Data
		}
		if cb.Message != nil {
			ev.MessageID = cb.Message.ID
			if ev.ChatID == 0 && cb.Message.Chat != nil {
				ev.ChatID = cb.Message.Chat.ID
			}
		}
		return ev
	}

	ev.Kind = dispatch.KindMessage
	m := c.Message()
	if m == nil {
		return ev
	}
	ev.MessageID = m.ID
	ev.Text = m.Text
	if m.ReplyTo != nil {
		ev.ReplyToID = m.ReplyTo.ID
	}
	if d := m.Document; d != nil {
		ev.Text = m.Caption
		ev.Document = &dispatch.Document{
			FileID:   d.FileID,
			FileName: d.FileName,
			MIME:     d.MIME,
			Size:     d.FileSize,
		}
	}
	return ev
}
