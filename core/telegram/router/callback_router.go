package router

import (
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/ocipanel/core/engine/refcache"
	"github.com/m3rciful/ocipanel/core/logger"
	tg "github.com/m3rciful/ocipanel/core/telegram"
	tghelpers "github.com/m3rciful/ocipanel/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute resolves button presses through the reference cache and dispatches them
// on the engine's table. Presses nothing matches are acknowledged silently.
func CallbackRoute(eng *Engine) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}
		req, out := eng.request(c)
		defer func() { _ = out.Answer() }()

		if err := eng.Resolver.Resolve(req.Event); err != nil {
			reason := "malformed"
			if errors.Is(err, refcache.ErrExpired) {
				reason = "expired"
			}
			sum := newSummary("callback.unresolved", start, slog.String("reason", reason))
			sum.skip = true
			ctx := tghelpers.WithHandler(c, sum.name)
			sum.log(c, out.Notify(ctx, eng.expiredText(), true))
			return nil
		}

		action := req.Event.Action()
		name := "callback." + normalizeHandlerName(action)
		ctx := logger.WithAction(tghelpers.WithHandler(c, name), action, req.Event.Code)
		tghelpers.StoreContext(c, ctx)
		sum := newSummary(name, start)
		matched, err := eng.Table.Dispatch(ctx, req)
		switch {
		case err != nil:
			_ = out.Notify(ctx, eng.failureText(), true)
		case !matched:
			sum.skip = true
			sum.extras = append(sum.extras, slog.String("reason", "no_route"))
		}
		sum.log(c, err)
		return err
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  guard(handler),
	}
}
