// Package app composes the control panel: database, engine services, the cloud provider and
// the Telegram routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/ocipanel/core/bootstrap"
	"github.com/m3rciful/ocipanel/core/cmd"
	coreconfig "github.com/m3rciful/ocipanel/core/config"
	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/refcache"
	"github.com/m3rciful/ocipanel/core/engine/replyflow"
	"github.com/m3rciful/ocipanel/core/engine/session"
	"github.com/m3rciful/ocipanel/core/logger"
	coretelegram "github.com/m3rciful/ocipanel/core/telegram"
	"github.com/m3rciful/ocipanel/core/telegram/callbacks"
	"github.com/m3rciful/ocipanel/core/telegram/commands"
	"github.com/m3rciful/ocipanel/core/telegram/router"
	"github.com/m3rciful/ocipanel/internal/accounts"
	"github.com/m3rciful/ocipanel/internal/janitor"
	"github.com/m3rciful/ocipanel/internal/panel"
	"github.com/m3rciful/ocipanel/internal/provider"
	"github.com/m3rciful/ocipanel/internal/provider/memory"
	"github.com/m3rciful/ocipanel/internal/provider/oci"
	"github.com/m3rciful/ocipanel/internal/wizard"
	"github.com/m3rciful/ocipanel/migrations"

	tele "gopkg.in/telebot.v4"
)

const (
	limitedText = "Too many requests, slow down a little."
	deniedText  = "You are not allowed to use this bot."
	unknownText = "Unknown command. Send /help to see what the panel can do."
)

// App holds the wired services between bootstrap and shutdown.
type App struct {
	cfg *Config
	db  *sqlx.DB

	cache    *refcache.Cache
	backend  session.Backend
	flows    *replyflow.Engine
	table    *dispatch.Table
	dir      *accounts.Directory
	panel    *panel.Panel
	janitor  *janitor.Janitor
	registry *coretelegram.Registry
}

// Options lets tests replace the bootstrap pipeline.
type Options struct {
	Bootstrap func(context.Context, bootstrap.Options) (*bootstrap.Result, error)
}

// New runs the bootstrap pipeline and builds every service.
func New(ctx context.Context, cfg *Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	run := opts.Bootstrap
	if run == nil {
		run = bootstrap.Run
	}
	res, err := run(ctx, bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: migrations.FS,
		Modules: bootstrap.Modules{Seeders: []bootstrap.Seeder{
			bootstrap.SeederFunc(accounts.SeedAdmin(cfg.Telegram.AdminID)),
		}},
	})
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, res.DB)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *Config, db *sqlx.DB) (*App, error) {
	eng := cfg.Engine
	a := &App{
		cfg:   cfg,
		db:    db,
		cache: refcache.New(refcache.Options{TTL: eng.CallbackTTL, MaxEntries: eng.CallbackMaxEntries}),
		table: dispatch.NewTable(),
		dir:   accounts.NewDirectory(db),
	}
	switch eng.SessionBackend {
	case coreconfig.SessionBackendMemory:
		a.backend = session.NewMemoryBackend()
	default:
		a.backend = session.NewSQLBackend(db)
	}

	flows, err := replyflow.New(a.backend)
	if err != nil {
		return nil, fmt.Errorf("app: reply flows: %w", err)
	}
	a.flows = flows
	options, err := wizard.NewStore(a.backend, session.NewKeyedMutex())
	if err != nil {
		return nil, fmt.Errorf("app: wizard store: %w", err)
	}

	p, err := panel.New(panel.Deps{
		Cache:    a.cache,
		Flows:    flows,
		Accounts: a.dir,
		Cloud:    cloudFactory(cfg.Provider),
		Options:  options,
	})
	if err != nil {
		return nil, err
	}
	if err := p.Register(a.table); err != nil {
		return nil, fmt.Errorf("app: register actions: %w", err)
	}
	a.panel = p

	j, err := janitor.New(janitor.Options{
		Schedule:  eng.SweepSchedule,
		Retention: eng.SessionRetention,
		Cache:     a.cache,
		Sessions:  a.backend,
		Keys:      a.dir,
	})
	if err != nil {
		return nil, err
	}
	a.janitor = j

	logger.ENG.Info("engine ready",
		slog.String("event", "wire"),
		slog.Int("actions", len(a.table.Actions())),
		slog.String("session_backend", eng.SessionBackend),
		slog.String("provider", cfg.Provider.Kind),
		slog.Duration("callback_ttl", a.cache.TTL()),
	)
	return a, nil
}

func cloudFactory(cfg coreconfig.ProviderConfig) provider.Factory {
	if cfg.Kind == coreconfig.ProviderMemory {
		return memory.NewDemo()
	}
	return oci.NewFactory(oci.Options{Timeout: cfg.Timeout})
}

// Table exposes the dispatch table, mainly for tests.
func (a *App) Table() *dispatch.Table { return a.table }

// Registry returns the command registry, building it on first use.
func (a *App) Registry(eng *router.Engine) (*coretelegram.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	reg := coretelegram.NewRegistry(a.cfg.Telegram.AdminID)
	var errs []error
	for _, c := range a.panel.Commands() {
		errs = append(errs, reg.RegisterCommand(c.Name, commands.Command{
			Handler:     eng.Command(c.Handler),
			Description: c.Description,
			AdminOnly:   c.AdminOnly,
		}))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("app: commands: %w", err)
	}
	a.registry = reg
	return reg, nil
}

// TelegramRunOptions satisfies cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	eng := &router.Engine{
		Table:    a.table,
		Resolver: dispatch.Resolver{Cache: a.cache, Decode: callbacks.Decode},
		Flows:    a.flows,
	}
	reg, err := a.Registry(eng)
	if err != nil {
		return coretelegram.RunOptions{}, err
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{})
	routes = append(routes, router.CallbackRoute(eng))
	routes = append(routes, router.TextRoutes(eng, reg, router.TextOptions{
		UnknownText: func(c tele.Context) error {
			if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
				return nil
			}
			return c.Send(unknownText)
		},
	})...)

	mws := coretelegram.DefaultMiddlewares(&a.cfg.Config, coretelegram.MiddlewareOptions{
		OnLimited: func(c tele.Context) error {
			if c.Callback() != nil {
				return c.Respond(&tele.CallbackResponse{Text: limitedText})
			}
			return nil
		},
		IsAllowed: a.dir.IsAllowed,
		OnDenied: func(c tele.Context) error {
			if c.Callback() != nil {
				return c.Respond(&tele.CallbackResponse{Text: deniedText, ShowAlert: true})
			}
			return c.Send(deniedText)
		},
	})

	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    reg,
		Middlewares: mws,
		Routes:      routes,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			eng.Dispatcher = rt.Dispatcher
			a.janitor.Start()
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			return a.Close(ctx)
		},
	}, nil
}

// Close stops the janitor and releases the database.
func (a *App) Close(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.janitor.Stop(stopCtx); err != nil {
		logger.ENG.Warn("janitor stop timed out", slog.String("err", err.Error()))
	}
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Bootstrap adapts New to cmd.Options.Bootstrap.
func Bootstrap(cfg cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	c, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", cfg)
	}
	return New(context.Background(), c, Options{})
}

// Load adapts LoadConfig to cmd.Options.LoadConfig.
func Load(path string) (cmd.ConfigCarrier, error) {
	return LoadConfig(path)
}
