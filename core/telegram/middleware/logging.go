package middleware

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/m3rciful/ocipanel/core/logger"
	"github.com/m3rciful/ocipanel/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/ocipanel/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenWindow is how many recent update ids are remembered for receipt dedup.
const seenWindow = 256

// seen is a ring of recent update ids. Routes wrap LoggerMiddleware themselves and the bot
// chain applies it again, so the same update passes through it more than once.
type seen struct {
	mu   sync.Mutex
	ids  [seenWindow]int
	set  map[int]struct{}
	next int
}

var receipts = &seen{set: make(map[int]struct{}, seenWindow)}

// add records id and reports whether it was new.
func (s *seen) add(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[id]; ok {
		return false
	}
	if old := s.ids[s.next]; old != 0 {
		delete(s.set, old)
	}
	s.ids[s.next] = id
	s.set[id] = struct{}{}
	s.next = (s.next + 1) % seenWindow
	return true
}

// LoggerMiddleware creates the request context of the update and logs one sampled
// update.received line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if !receipts.add(upd.ID) || !logger.ShouldSampleDebug() {
			return next(c)
		}

		attrs := []slog.Attr{slog.String("status", "ok")}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
		}
		if u := c.Sender(); u != nil {
			if u.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
			}
			if u.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", u.LanguageCode))
			}
		}
		attrs = append(attrs, receiptAttrs(c)...)
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	if cb := c.Callback(); cb != nil {
		if code, err := callbacks.Decode(cb.Data); err == nil {
			return []slog.Attr{slog.String("kind", "callback"), slog.String("cb_code", code)}
		}
		return []slog.Attr{slog.String("kind", "callback"), slog.String("payload", logger.SanitizeLimit(cb.Data, 64))}
	}
	m := c.Message()
	if m == nil {
		return nil
	}
	attrs := []slog.Attr{slog.String("kind", "message")}
	if m.ReplyTo != nil {
		attrs = append(attrs, slog.Int("reply_to", m.ReplyTo.ID))
	}
	switch {
	case m.Document != nil:
		attrs = append(attrs, slog.String("document", logger.SanitizeLimit(m.Document.FileName, 128)))
	case strings.HasPrefix(m.Text, "/"):
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(m.Text, 256)))
	}
	return attrs
}
