// Package logger is the structured logging layer: a slog handler with a fixed key order and
// kv or json lines, an async writer fanning out to stdout and log files, component loggers and
// request metadata carried in context.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/ocipanel/core/buildinfo"
	coreconfig "github.com/m3rciful/ocipanel/core/config"
)

var (
	initOnce sync.Once

	closeMu sync.Mutex
	closed  bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler = newRatioSampler(defaultSampleNum, defaultSampleDen)
	traceForced  bool

	components sync.Map

	// L is the base logger; it discards output until InitLogger runs.
	L *slog.Logger

	// DB logs database events.
	DB *slog.Logger
	// MIG logs migration events.
	MIG *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// ENG logs callback engine events (cache, dispatch, reply flows).
	ENG *slog.Logger
	// SES logs session store events.
	SES *slog.Logger
	// OCI logs cloud provider calls.
	OCI *slog.Logger
	// ACC logs account directory activity.
	ACC *slog.Logger
)

func init() {
	setBase(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// InitLogger installs the structured handler as the process logger. Later calls are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sampleNum, s.sampleDen)
		traceForced = traceFromEnv()

		outputs, closers := openOutputs(cfg)
		logClosers = closers
		logWriter = newAsyncWriter(outputs, 64*1024)

		base := slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(base)
		setBase(base)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build", buildinfo.String()),
			slog.String("cfg_profile", s.profile),
		)
	})
	return nil
}

func setBase(base *slog.Logger) {
	L = base
	components.Clear()
	DB = Component("db")
	MIG = Component("db.migrate")
	TG = Component("tg")
	TWire = Component("tg.wire")
	ENG = Component("engine")
	SES = Component("engine.session")
	OCI = Component("provider.oci")
	ACC = Component("accounts")
}

// Component returns the logger tagged with component name, cached per name.
func Component(name string) *slog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return L
	}
	if l, ok := components.Load(name); ok {
		return l.(*slog.Logger)
	}
	l, _ := components.LoadOrStore(name, L.With("component", name))
	return l.(*slog.Logger)
}

// Shutdown flushes buffered lines and closes the log files. Safe to call more than once.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// LogEvent logs with the event attribute first, using the context logger when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		logg = L
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Debug logs an event for component at debug level.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Info logs an event for component at info level.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

// Warn logs an event for component at warn level.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

// Error logs an event for component at error level.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be written. TRACE=1 in the
// environment disables sampling.
func ShouldSampleDebug() bool {
	return traceForced || debugSampler.Allow()
}
