// Package bootstrap brings up the infrastructure every bot needs before its services are built:
// logging, the database connection, the schema and seed data.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/ocipanel/core/config"
	coredatabase "github.com/m3rciful/ocipanel/core/database"
	"github.com/m3rciful/ocipanel/core/logger"
)

// Options configures Run. The function fields replace the default steps in tests.
type Options struct {
	Config     *coreconfig.Config
	Database   coredatabase.Config
	Migrations fs.FS
	Modules    Modules

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(*sqlx.DB, coredatabase.Config, fs.FS) error
}

// Result is the infrastructure handed to the application.
type Result struct {
	DB *sqlx.DB
}

// Run executes the steps in order: logger, connect, migrate, seed. On failure the database
// connection, if any, is closed.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	initLogger, connect, migrate := opts.LoggerInit, opts.Connect, opts.Migrate
	if initLogger == nil {
		initLogger = logger.InitLogger
	}
	if connect == nil {
		connect = coredatabase.Connect
	}
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}

	if err := initLogger(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}

	var db *sqlx.DB
	steps := []struct {
		name string
		run  func() error
	}{
		{"connect", func() (err error) {
			db, err = connect(opts.Database)
			return err
		}},
		{"migrate", func() error { return migrate(db, opts.Database, opts.Migrations) }},
		{"seed", func() error { return opts.Modules.seed(ctx, db) }},
	}
	for _, s := range steps {
		start := time.Now()
		if err := s.run(); err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, fmt.Errorf("bootstrap: %s: %w", s.name, err)
		}
		logger.Component("app").LogAttrs(ctx, slog.LevelDebug, "bootstrap",
			slog.String("event", "bootstrap."+s.name),
			slog.String("status", "ok"),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
	return &Result{DB: db}, nil
}
