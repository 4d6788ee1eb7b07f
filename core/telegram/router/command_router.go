package router

import (
	"log/slog"
	"slices"
	"time"

	"github.com/m3rciful/ocipanel/core/logger"
	tg "github.com/m3rciful/ocipanel/core/telegram"
	"github.com/m3rciful/ocipanel/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	OnAdminReject tele.HandlerFunc
}

// guard is the per-route chain: panics are recovered and the update gets its request context
// before anything else runs.
func guard(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}

// CommandRoutes binds every registered command to its slash endpoint. Admin-only commands are
// gated before the summary line is written.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	admin := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  reg.AdminID(),
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	slices.Sort(names)

	routes := make([]tg.Route, 0, len(names))
	adminOnly := 0
	for _, name := range names {
		def := cmds[name]
		summaryName := normalizeHandlerName(name)
		h := func(c tele.Context) error {
			return newSummary(summaryName, time.Now()).run(c, func() error { return def.Handler(c) })
		}
		if def.AdminOnly {
			h = admin(h)
			adminOnly++
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: guard(h)})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "commands"),
		slog.Int("count", len(routes)),
		slog.Int("admin_only", adminOnly),
	)
	return routes
}
