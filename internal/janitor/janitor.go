// Package janitor runs the periodic housekeeping of the engine: idle callback references,
// stale wizard and reply-flow records, and access keys no account points at.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/ocipanel/core/logger"
)

// DefaultKeySchedule runs the access-key cleanup.
const DefaultKeySchedule = "@hourly"

// Sweeper drops idle entries; *refcache.Cache satisfies it.
type Sweeper interface {
	Sweep() int
}

// Purger deletes records last written before a cutoff; session backends satisfy it.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int, error)
}

// KeyCleaner removes unreferenced access keys; *accounts.Directory satisfies it.
type KeyCleaner interface {
	CleanUnusedKeys(ctx context.Context) (int, error)
}

// Options configures a Janitor. Nil collaborators are skipped.
type Options struct {
	Schedule    string
	KeySchedule string
	Retention   time.Duration

	Cache    Sweeper
	Sessions Purger
	Keys     KeyCleaner

	Now func() time.Time
}

// Janitor owns a cron scheduler. Start and Stop bracket its lifetime.
type Janitor struct {
	opts Options
	cron *cron.Cron
}

// New validates the schedules and registers the jobs.
func New(opts Options) (*Janitor, error) {
	if opts.Schedule == "" {
		return nil, errors.New("janitor: empty schedule")
	}
	if opts.KeySchedule == "" {
		opts.KeySchedule = DefaultKeySchedule
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	j := &Janitor{opts: opts, cron: cron.New(cron.WithChain(cron.Recover(cronLogger{})))}
	if _, err := j.cron.AddFunc(opts.Schedule, func() { j.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("janitor: schedule %q: %w", opts.Schedule, err)
	}
	if opts.Keys != nil {
		if _, err := j.cron.AddFunc(opts.KeySchedule, func() { j.CleanKeys(context.Background()) }); err != nil {
			return nil, fmt.Errorf("janitor: key schedule %q: %w", opts.KeySchedule, err)
		}
	}
	return j, nil
}

// Start runs the scheduler in its own goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep drops idle callback references and purges sessions older than the retention window.
func (j *Janitor) Sweep(ctx context.Context) {
	start := time.Now()
	attrs := make([]slog.Attr, 0, 4)
	if j.opts.Cache != nil {
		attrs = append(attrs, slog.Int("callbacks", j.opts.Cache.Sweep()))
	}
	if j.opts.Sessions != nil && j.opts.Retention > 0 {
		n, err := j.opts.Sessions.Purge(ctx, j.opts.Now().Add(-j.opts.Retention))
		if err != nil {
			logger.ENG.LogAttrs(ctx, slog.LevelWarn, "janitor.purge_failed",
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
		attrs = append(attrs, slog.Int("sessions", n))
	}
	attrs = append(attrs, slog.Duration("duration", logger.RoundMS(time.Since(start))))
	logger.ENG.LogAttrs(ctx, slog.LevelDebug, "cache.sweep", attrs...)
}

// CleanKeys removes access keys that no account references.
func (j *Janitor) CleanKeys(ctx context.Context) {
	if j.opts.Keys == nil {
		return
	}
	n, err := j.opts.Keys.CleanUnusedKeys(ctx)
	if err != nil {
		logger.ACC.LogAttrs(ctx, slog.LevelWarn, "janitor.keys_failed",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	if n > 0 {
		logger.ACC.LogAttrs(ctx, slog.LevelInfo, "janitor.keys_removed", slog.Int("count", n))
	}
}

// cronLogger routes scheduler panics and errors into the engine log.
type cronLogger struct{}

func (cronLogger) Info(string, ...any) {}

func (cronLogger) Error(err error, msg string, kv ...any) {
	logger.ENG.Error("janitor."+msg, append([]any{slog.String("err", err.Error())}, kv...)...)
}
