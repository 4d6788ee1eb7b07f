package janitor

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingSweeper struct{ calls int }

func (s *countingSweeper) Sweep() int { s.calls++; return 3 }

type recordingPurger struct {
	before time.Time
	err    error
}

func (p *recordingPurger) Purge(_ context.Context, before time.Time) (int, error) {
	p.before = before
	return 1, p.err
}

type keyCleaner struct {
	calls int
	err   error
}

func (k *keyCleaner) CleanUnusedKeys(context.Context) (int, error) {
	k.calls++
	return 2, k.err
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error for empty schedule")
	}
	if _, err := New(Options{Schedule: "every now and then"}); err == nil {
		t.Fatalf("expected error for unparsable schedule")
	}
	if _, err := New(Options{Schedule: "@every 1m", KeySchedule: "nope", Keys: &keyCleaner{}}); err == nil {
		t.Fatalf("expected error for unparsable key schedule")
	}
}

func TestSweepUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	cache := &countingSweeper{}
	sessions := &recordingPurger{}
	j, err := New(Options{
		Schedule:  "@every 1m",
		Retention: 48 * time.Hour,
		Cache:     cache,
		Sessions:  sessions,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	j.Sweep(context.Background())
	if cache.calls != 1 {
		t.Fatalf("cache sweeps = %d", cache.calls)
	}
	if want := now.Add(-48 * time.Hour); !sessions.before.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", sessions.before, want)
	}
}

func TestSweepSurvivesPurgeFailure(t *testing.T) {
	cache := &countingSweeper{}
	j, err := New(Options{
		Schedule:  "@every 1m",
		Retention: time.Hour,
		Cache:     cache,
		Sessions:  &recordingPurger{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	j.Sweep(context.Background())
	j.Sweep(context.Background())
	if cache.calls != 2 {
		t.Fatalf("cache sweeps = %d", cache.calls)
	}
}

func TestCleanKeys(t *testing.T) {
	keys := &keyCleaner{}
	j, err := New(Options{Schedule: "@every 1m", Keys: keys})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	j.CleanKeys(context.Background())
	keys.err = errors.New("boom")
	j.CleanKeys(context.Background())
	if keys.calls != 2 {
		t.Fatalf("clean calls = %d", keys.calls)
	}
}

func TestStartStop(t *testing.T) {
	j, err := New(Options{Schedule: "@every 1h"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := j.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
