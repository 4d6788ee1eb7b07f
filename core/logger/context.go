package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	ctxMeta ctxKey = iota
	ctxLogger
)

// meta is the per-update correlation data carried in a context. It is copied on every
// change so contexts handed to concurrent goroutines never share a mutable value.
type meta struct {
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
	action   string
	rcode    string
}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(ctxMeta).(meta)
	return m
}

func withMeta(ctx context.Context, fn func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	fn(&m)
	return context.WithValue(ctx, ctxMeta, m)
}

// WithLogger stores log in ctx for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithUpdateMeta attaches the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// WithHandler names the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

// HandlerFrom returns the handler name, if any.
func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// WithAction records the envelope action and the reference code of a button press.
func WithAction(ctx context.Context, action, rcode string) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.action = action
		m.rcode = rcode
	})
}

// ActionFrom returns the action and reference code recorded by WithAction.
func ActionFrom(ctx context.Context) (action, rcode string) {
	m := metaFrom(ctx)
	return m.action, m.rcode
}

// UserIDFrom returns the Telegram user id.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// ChatIDFrom returns the chat id.
func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// UpdateIDFrom returns the update id.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// contextFields adds the correlation data of ctx to fields without overriding explicit attrs.
func contextFields(ctx context.Context, fields map[string]any) {
	m := metaFrom(ctx)
	put := func(key string, v any, empty bool) {
		if empty {
			return
		}
		if _, ok := fields[key]; !ok {
			fields[key] = v
		}
	}
	put("rid", m.rid, m.rid == "")
	put("update_id", m.updateID, m.updateID == 0)
	put("user_id", m.userID, m.userID == 0)
	put("chat_id", m.chatID, m.chatID == 0)
	put("handler", m.handler, m.handler == "")
	put("action", m.action, m.action == "")
	put("rcode", m.rcode, m.rcode == "")
}
