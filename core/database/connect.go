package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/ocipanel/core/logger"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect opens the database connection, configures the pool, and verifies connectivity.
func Connect(cfg Config) (*sqlx.DB, error) {
	driver := cfg.DriverName()
	var dsn string
	switch driver {
	case DriverPostgres:
		dsn = cfg.postgresDSN()
		if err := WaitForPostgres(dsn, 30*time.Second); err != nil {
			logger.DB.Error("db not ready",
				slog.String("event", "db.connect"),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("database not ready: %w", err)
		}
	case DriverSQLite:
		dsn = cfg.sqliteDSN()
	default:
		return nil, fmt.Errorf("db connect: unsupported driver %q", driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	sqlxDB, err := sqlx.ConnectContext(ctx, driver, dsn)
	took := time.Since(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("driver", driver),
			slog.String("host", cfg.Host),
			slog.String("db", dbLabel(cfg)),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if pingErr := sqlxDB.PingContext(ctx); pingErr != nil {
		logger.DB.Error("db ping failed",
			slog.String("event", "db.ping"),
			slog.String("driver", driver),
			slog.String("db", dbLabel(cfg)),
			slog.String("err", pingErr.Error()),
		)
		_ = sqlxDB.Close()
		return nil, fmt.Errorf("db ping: %w", pingErr)
	}

	pool := cfg.MaxConnections
	if driver == DriverSQLite {
		// Single writer; an in-memory database also lives on exactly one connection.
		pool = 1
	}
	if pool > 0 {
		sqlxDB.SetMaxOpenConns(pool)
		sqlxDB.SetMaxIdleConns(pool)
	}
	logger.DB.Debug("db pool configured",
		slog.String("event", "db.pool"),
		slog.Int("pool_open", pool),
	)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", driver),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", dbLabel(cfg)),
		slog.Int("pool_open", pool),
		slog.Duration("duration", logger.RoundMS(took)),
	)

	return sqlxDB, nil
}

func dbLabel(cfg Config) string {
	if cfg.DriverName() == DriverSQLite {
		if cfg.Path == "" {
			return ":memory:"
		}
		return cfg.Path
	}
	return cfg.Name
}

// WaitForPostgres tries to connect to the DB until it is ready or timeout is reached.
func WaitForPostgres(dsn string, timeout time.Duration) error {
	start := time.Now()
	var lastErr error
	for {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				_ = db.Close()
				return nil
			}
			_ = db.Close()
		}
		lastErr = err
		if time.Since(start) > timeout {
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		}
		time.Sleep(2 * time.Second)
	}
}
