package router

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/ocipanel/core/engine/refcache"
	"github.com/m3rciful/ocipanel/core/engine/session"
	"github.com/m3rciful/ocipanel/core/logger"
	tghelpers "github.com/m3rciful/ocipanel/core/telegram/helpers"
	"github.com/m3rciful/ocipanel/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summary collects what one handler did for the handler.handled line.
type summary struct {
	name  string
	start time.Time
	// skip marks updates the handler looked at but left alone.
	skip   bool
	extras []slog.Attr
}

func newSummary(name string, start time.Time, extras ...slog.Attr) *summary {
	return &summary{name: name, start: start, extras: extras}
}

// run calls fn under the summary's handler name and logs the outcome.
func (s *summary) run(c tele.Context, fn func() error) error {
	tghelpers.WithHandler(c, s.name)
	err := fn()
	s.log(c, err)
	return err
}

func (s *summary) log(c tele.Context, err error) {
	ctx := tghelpers.WithHandler(c, s.name)
	msgs, kb := middleware.GetCounters(c)

	status, outcome := "ok", "ok"
	switch {
	case err != nil:
		status, outcome = "fail", "fail"
	case s.skip:
		status = "skip"
	}
	attrs := make([]slog.Attr, 0, 8+len(s.extras))
	attrs = append(attrs,
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.RoundMS(time.Since(s.start))),
	)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	attrs = append(attrs, s.extras...)
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// errorCode maps err to a stable upper-case code for log queries.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, refcache.ErrExpired):
		return "CALLBACK_EXPIRED"
	case errors.Is(err, session.ErrSchemaMismatch):
		return "SESSION_SCHEMA"
	case errors.Is(err, session.ErrNotFound):
		return "SESSION_NOT_FOUND"
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return "TELEGRAM_API"
	}
	return "INTERNAL"
}
