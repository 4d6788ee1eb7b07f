package helpers

import (
	"context"

	"github.com/m3rciful/ocipanel/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	ctxKey = "ctx"
	ridKey = "rid"
)

// StoreContext replaces the request context kept on the update.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// BuildContext returns the request context of the update, creating it on first use. It carries
// the request id and the update, user and chat ids so engine and provider logs can be joined
// back to the update.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	updateID, userID, chatID := ids(c)
	rid, _ := c.Get(ridKey).(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
		c.Set(ridKey, rid)
	}
	ctx := logger.WithLogger(context.Background(), logger.TG)
	ctx = logger.WithRID(ctx, rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	c.Set(ctxKey, ctx)
	return ctx
}

// WithHandler names the handler serving the update in every later log line.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		c.Set(ctxKey, ctx)
	}
	return ctx
}

func ids(c tele.Context) (updateID int, userID, chatID int64) {
	updateID = c.Update().ID
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	return updateID, userID, chatID
}
