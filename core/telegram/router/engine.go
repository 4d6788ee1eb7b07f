package router

import (
	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/replyflow"
	tghelpers "github.com/m3rciful/ocipanel/core/telegram/helpers"
	"github.com/m3rciful/ocipanel/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// DefaultExpiredText is the alert shown for buttons whose reference no longer resolves.
const DefaultExpiredText = "This menu has expired, please retry."

// DefaultFailureText is the alert shown when a button handler fails unexpectedly.
const DefaultFailureText = "Something went wrong, please retry."

// Engine adapts telebot updates to the dispatch table and the reply-flow engine.
type Engine struct {
	Table      *dispatch.Table
	Resolver   dispatch.Resolver
	Flows      *replyflow.Engine
	Dispatcher *sender.Dispatcher

	ExpiredText string
	FailureText string
}

func (e *Engine) request(c tele.Context) (*dispatch.Request, *tghelpers.Responder) {
	out := tghelpers.NewResponder(c, e.Dispatcher)
	return &dispatch.Request{Event: tghelpers.EventFrom(c), Out: out}, out
}

func (e *Engine) expiredText() string {
	if e.ExpiredText != "" {
		return e.ExpiredText
	}
	return DefaultExpiredText
}

func (e *Engine) failureText() string {
	if e.FailureText != "" {
		return e.FailureText
	}
	return DefaultFailureText
}

// Command adapts a dispatch handler into a telebot handler for a slash command.
func (e *Engine) Command(h dispatch.Handler) tele.HandlerFunc {
	return func(c tele.Context) error {
		req, _ := e.request(c)
		return h(tghelpers.BuildContext(c), req)
	}
}
