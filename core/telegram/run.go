package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/ocipanel/core/config"
	"github.com/m3rciful/ocipanel/core/logger"
	tgsender "github.com/m3rciful/ocipanel/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a bot-wide middleware registered with bot.Use in slice order.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint: a command string or a tele.On* constant.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions configures RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	// Dispatcher overrides the one built from DispatcherOptions.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to see of the running bot.
type Runtime struct {
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// allowedUpdates lists the update kinds routes handle; everything else is not delivered.
var allowedUpdates = []string{"message", "callback_query"}

// RunTelegram builds the bot, runs it until ctx is done and then calls OnStop.
// A cancelled ctx is a clean shutdown and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry(cfg.Telegram.AdminID)
	}

	pollerOpts := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
		AllowedUpdates: allowedUpdates,
	}
	started := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  BuildPoller(pollerOpts),
		Client:  BuildHTTPClient(pollerOpts.LongPollTimeout()),
		OnError: logHandlerError,
	})
	if err != nil {
		return fmt.Errorf("telegram: new bot: %w", err)
	}
	logMode(ctx, bot.Poller, pollerOpts, time.Since(started))
	if _, webhook := bot.Poller.(*tele.Webhook); !webhook && !opts.DisableWebhookCleanup {
		dropWebhook(ctx, bot)
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	InitBotCommands(bot, reg)

	rt := Runtime{Dispatcher: opts.Dispatcher, Registry: reg}
	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer rt.Dispatcher.Close()

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, bot)
	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	return runErr
}

// serve runs the poller until ctx is done or the bot stops on its own.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		bot.Start()
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			bot.Stop()
		case <-done:
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logHandlerError(err error, c tele.Context) {
	attrs := []slog.Attr{slog.String("err", logger.SanitizeLimit(err.Error(), 256))}
	if c != nil {
		attrs = append(attrs, slog.Int("update_id", c.Update().ID))
	}
	logger.TG.LogAttrs(context.Background(), slog.LevelError, "handler.error", attrs...)
}

func logMode(ctx context.Context, p tele.Poller, opts PollerOptions, took time.Duration) {
	if wh, ok := p.(*tele.Webhook); ok {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "polling mode",
		slog.String("event", "mode"),
		slog.String("mode", coreconfig.RunModeLongpoll),
		slog.Duration("poll_timeout", opts.LongPollTimeout()),
		slog.Duration("duration", logger.RoundMS(took)),
	)
}

// dropWebhook clears a webhook left by an earlier deployment; long polling fails while one is set.
func dropWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "webhook delete failed",
			slog.String("event", "delete_webhook"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook deleted", slog.String("event", "delete_webhook"))
}
