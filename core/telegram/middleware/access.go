package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/ocipanel/core/logger"
	tghelpers "github.com/m3rciful/ocipanel/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.AdminID != 0 && (c.Sender() == nil || c.Sender().ID != opts.AdminID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}

// AllowListOptions gates the bot to the admin and allow-listed users.
type AllowListOptions struct {
	AdminID   int64
	IsAllowed func(ctx context.Context, telegramUserID int64) (bool, error)
	OnDenied  tele.HandlerFunc
}

// AllowListMiddleware drops updates from users that are neither the admin nor on the list.
// A lookup failure denies the update.
func AllowListMiddleware(opts AllowListOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if opts.IsAllowed == nil || user == nil {
				return next(c)
			}
			if opts.AdminID != 0 && user.ID == opts.AdminID {
				return next(c)
			}
			ctx := tghelpers.BuildContext(c)
			ok, err := opts.IsAllowed(ctx, user.ID)
			if err != nil {
				logger.Error(ctx, "tg", "access.lookup_failed",
					slog.Int64("user_id", user.ID),
					slog.String("err", err.Error()),
				)
			}
			if ok {
				return next(c)
			}
			logger.Info(ctx, "tg", "access.denied", slog.Int64("user_id", user.ID))
			if opts.OnDenied != nil {
				return opts.OnDenied(c)
			}
			return nil
		}
	}
}
