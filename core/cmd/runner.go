// Package cmd is the shared entry point of bot binaries: resolve the config file, bootstrap the
// application and run the Telegram runtime until SIGINT or SIGTERM.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/ocipanel/core/buildinfo"
	coreconfig "github.com/m3rciful/ocipanel/core/config"
	"github.com/m3rciful/ocipanel/core/logger"
	coretelegram "github.com/m3rciful/ocipanel/core/telegram"
)

// ConfigCarrier exposes the core sections of an application config.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp builds the runtime options once bootstrap is done.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wires a binary to Run.
type Options struct {
	// ConfigEnvVar names the variable holding the config path; CONFIG_PATH when empty.
	ConfigEnvVar      string
	DefaultConfigPath string
	// Args are the command-line arguments without the program name; os.Args[1:] when nil.
	Args []string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ErrVersion is returned after -version printed the build metadata.
var ErrVersion = errors.New("cmd: version requested")

// Run loads the config, bootstraps the application and blocks in the Telegram runtime.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	path, err := configPath(opts, args, os.Stdout)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: config has no core section")
	}
	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	hookLifecycle(&runOpts, startedAt)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

// configPath resolves the config file: -config flag, then the env variable, then the default.
func configPath(opts Options, args []string, out io.Writer) (string, error) {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	fs := flag.NewFlagSet("ocipanel", flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("config", "", "path to the YAML config file (overrides $"+env+")")
	version := fs.Bool("version", false, "print build information and exit")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("cmd: %w", err)
	}
	if *version {
		fmt.Fprintln(out, buildinfo.String())
		return "", ErrVersion
	}
	if *path == "" {
		*path = os.Getenv(env)
	}
	if *path == "" {
		*path = opts.DefaultConfigPath
	}
	if *path == "" {
		return "", fmt.Errorf("cmd: no config path: pass -config or set %s", env)
	}
	return *path, nil
}

// hookLifecycle logs readiness after the application's own start hook and the shutdown before
// its stop hook.
func hookLifecycle(runOpts *coretelegram.RunOptions, startedAt time.Time) {
	app := logger.Component("app")
	start, stop := runOpts.OnStart, runOpts.OnStop
	runOpts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if start != nil {
			if err := start(ctx, rt); err != nil {
				return err
			}
		}
		app.Info("app ready",
			slog.String("event", "ready"),
			slog.String("version", buildinfo.String()),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}
	runOpts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		app.Info("shutting down", slog.String("event", "shutdown"))
		if stop != nil {
			return stop(ctx, rt)
		}
		return nil
	}
}
