package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/ocipanel/core/logger"
	"golang.org/x/time/rate"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
// Interval is the refill period of one token and Burst the bucket size.
type RateLimitOptions struct {
	Interval  time.Duration
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// userLimiters keeps one token bucket per user. Buckets idle for longer than a full refill
// are dropped on the next sweep.
type userLimiters struct {
	mu        sync.Mutex
	every     rate.Limit
	burst     int
	idle      time.Duration
	buckets   map[int64]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newUserLimiters(interval time.Duration, burst int) *userLimiters {
	if burst <= 0 {
		burst = 1
	}
	return &userLimiters{
		every:   rate.Every(interval),
		burst:   burst,
		idle:    interval * time.Duration(burst) * 2,
		buckets: make(map[int64]*bucket),
	}
}

func (u *userLimiters) allow(userID int64, now time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if now.Sub(u.lastSweep) > u.idle {
		for id, b := range u.buckets {
			if now.Sub(b.seen) > u.idle {
				delete(u.buckets, id)
			}
		}
		u.lastSweep = now
	}
	b, ok := u.buckets[userID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(u.every, u.burst)}
		u.buckets[userID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimitMiddleware returns a middleware that enforces a per-user token bucket.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiters := newUserLimiters(opts.Interval, opts.Burst)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[updateKind(c.Update())]; skip {
				return next(c)
			}
			if limiters.allow(user.ID, time.Now()) {
				return next(c)
			}

			attrs := []any{
				slog.String("event", "tg.rate_limit"),
				slog.Int64("user_id", user.ID),
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.Int64("chat_id", chat.ID))
			}
			logger.TG.Warn("rate limit", attrs...)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
