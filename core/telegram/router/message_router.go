package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/ocipanel/core/telegram"
	tghelpers "github.com/m3rciful/ocipanel/core/telegram/helpers"
	"github.com/m3rciful/ocipanel/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// reply offers the update to the reply-flow engine. It reports true once a flow consumed it.
func (e *Engine) reply(c tele.Context, start time.Time) (bool, error) {
	if e.Flows == nil {
		return false, nil
	}
	req, _ := e.request(c)
	if req.Event.ReplyToID == 0 {
		return false, nil
	}
	ctx := tghelpers.WithHandler(c, "replyflow")
	handled, err := e.Flows.HandleReply(ctx, req)
	if !handled && err == nil {
		return false, nil
	}
	newSummary("replyflow", start).log(c, err)
	return true, err
}

// commandName extracts "/name" from "/name@bot args".
func commandName(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name, len(name) > 1
}

// TextRoutes builds handlers for text and document routing: pending reply flows first,
// then commands typed with a bot suffix or alias, then the fallbacks.
func TextRoutes(eng *Engine, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if handled, err := eng.reply(c, start); handled {
			return err
		}

		if reg != nil {
			if name, ok := commandName(c.Text()); ok {
				if key, cmd, ok := reg.LookupCommand(name); ok && cmd.Handler != nil {
					h := cmd.Handler
					if cmd.AdminOnly {
						h = middleware.AdminOnlyMiddleware(middleware.AdminOptions{AdminID: reg.AdminID()})(h)
					}
					return newSummary(normalizeHandlerName(key), start).run(c, func() error {
						return h(c)
					})
				}
			}
			if fb := reg.TextFallback(); fb != nil {
				return newSummary("fallback", start).run(c, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return newSummary("unknown_text", start).run(c, func() error {
				return opts.UnknownText(c)
			})
		}

		sum := newSummary("unknown_text", start)
		sum.skip = true
		sum.log(c, nil)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if handled, err := eng.reply(c, start); handled {
			return err
		}
		if opts.UnknownDocument != nil {
			return newSummary("unexpected_document", start).run(c, func() error {
				return opts.UnknownDocument(c)
			})
		}
		sum := newSummary("unexpected_document", start)
		sum.skip = true
		sum.log(c, nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  guard(handler),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  guard(docHandler),
		},
	}
}
