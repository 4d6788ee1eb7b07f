package telegram

import (
	"context"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/ocipanel/core/config"
	"github.com/m3rciful/ocipanel/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareOptions supplies the callbacks of the shared chain. All fields are optional.
type MiddlewareOptions struct {
	OnLimited tele.HandlerFunc
	// IsAllowed backs the allow list; it is consulted only when access.allow_list_enabled is set.
	IsAllowed func(ctx context.Context, telegramUserID int64) (bool, error)
	OnDenied  tele.HandlerFunc
}

// DefaultMiddlewares builds the shared middleware chain for bots.
func DefaultMiddlewares(cfg *coreconfig.Config, opts MiddlewareOptions) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			mws = append(mws, Middleware{
				Name: "rate_limit",
				Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
					Interval:  interval,
					Burst:     cfg.RateLimit.Burst,
					Exclude:   ex,
					OnLimited: opts.OnLimited,
				}),
			})
		}
	}

	mws = append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)

	if cfg != nil && cfg.Access.AllowListEnabled && opts.IsAllowed != nil {
		mws = append(mws, Middleware{
			Name: "access",
			Use: middleware.AllowListMiddleware(middleware.AllowListOptions{
				AdminID:   cfg.Telegram.AdminID,
				IsAllowed: opts.IsAllowed,
				OnDenied:  opts.OnDenied,
			}),
		})
	}

	return mws
}
