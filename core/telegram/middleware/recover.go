package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/ocipanel/core/logger"
	tghelpers "github.com/m3rciful/ocipanel/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware turns a handler panic into an error log and an error return. A pending
// button press is answered so the client does not spin until its own timeout.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err = fmt.Errorf("telegram: handler panic: %v", r)
			ctx := tghelpers.BuildContext(c)
			logger.LogEvent(ctx, logger.TG, slog.LevelError, "handler.panic",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(fmt.Sprint(r), 256)),
				slog.String("stack", string(debug.Stack())),
			)
			if c.Callback() != nil {
				_ = c.Respond()
			}
		}()
		return next(c)
	}
}
