// Package sender runs outbound Bot API calls under one retry and pacing policy. Calls either
// block the handler (Do) or are queued for background workers (Enqueue).
package sender

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/ocipanel/core/logger"
	"github.com/m3rciful/ocipanel/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when every slot is taken.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilCall = errors.New("telegram sender: nil call")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options tunes a Dispatcher. Zero values fall back to the defaults below.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one call including its retries.
	MaxDuration time.Duration
	// PerSecond paces attempts across the whole bot; the Bot API allows about 30 per second.
	PerSecond float64
	Burst     int
}

const (
	defaultQueueSize    = 256
	defaultWorkers      = 4
	defaultRetryBackoff = 2 * time.Second
	defaultMaxDuration  = 12 * time.Second
	defaultPerSecond    = 25
	defaultBurst        = 5
)

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = defaultMaxDuration
	}
	if o.PerSecond <= 0 {
		o.PerSecond = defaultPerSecond
	}
	if o.Burst <= 0 {
		o.Burst = defaultBurst
	}
	return o
}

type call struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (c call) attrs(extra ...slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, 2+len(extra))
	out = append(out, slog.String("call", c.action))
	if c.endpoint != "" {
		out = append(out, slog.String("endpoint", c.endpoint))
	}
	return append(out, extra...)
}

// Dispatcher owns the worker pool and the shared pacing limiter.
type Dispatcher struct {
	opts  Options
	queue chan call
	pace  *rate.Limiter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts:  opts,
		queue: make(chan call, opts.QueueSize),
		pace:  rate.NewLimiter(rate.Limit(opts.PerSecond), opts.Burst),
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for c := range d.queue {
				_ = d.execute(c)
			}
		}()
	}
	return d
}

// Do runs fn on the caller's goroutine and returns the last error once retries are spent.
func (d *Dispatcher) Do(ctx context.Context, action, endpoint string, fn func() error) error {
	if fn == nil {
		return errNilCall
	}
	return d.execute(call{ctx: ctx, action: action, endpoint: endpoint, run: fn})
}

// Enqueue hands fn to a worker and returns immediately. The caller's cancellation is
// detached so the call outlives the handler; its log fields are kept. fn must be safe to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, fn func() error) error {
	if fn == nil {
		return errNilCall
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- call{ctx: context.WithoutCancel(ctx), action: action, endpoint: endpoint, run: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount reports calls that failed after their last attempt.
func (d *Dispatcher) ErrorCount() uint64 { return d.errs.Load() }

// Close drains the queue and waits for the workers. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) execute(c call) error {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(c.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = d.pace.Wait(ctx); err != nil {
			break
		}
		if err = c.run(); err == nil {
			lvl := slog.LevelDebug
			if attempt > 1 {
				lvl = slog.LevelInfo
			}
			logger.TG.LogAttrs(c.ctx, lvl, "send.ok", c.attrs(
				slog.Int("attempt", attempt),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
			)...)
			return nil
		}
		if attempt == attempts || !netutil.ShouldRetry(err) {
			break
		}
		delay := max(d.opts.RetryBackoff*time.Duration(attempt), netutil.RetryAfter(err))
		logger.TG.LogAttrs(c.ctx, slog.LevelDebug, "send.retry", c.attrs(
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("kind", netutil.Classify(err)),
		)...)
		if waitErr := sleep(ctx, delay); waitErr != nil {
			err = waitErr
			break
		}
	}

	d.errs.Add(1)
	logger.TG.LogAttrs(c.ctx, slog.LevelError, "send.fail", c.attrs(
		slog.String("err", redact(err)),
		slog.String("kind", netutil.Classify(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)...)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// redact strips bot tokens that transport errors embed in request URLs.
func redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
