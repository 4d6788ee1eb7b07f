package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(t *testing.T, format logFormat, outputs ...Output) (*slog.Logger, *asyncWriter) {
	t.Helper()
	aw := newAsyncWriter(outputs, 1024)
	h := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: format,
	})
	return slog.New(h).With("component", "engine"), aw
}

func drain(t *testing.T, aw *asyncWriter) {
	t.Helper()
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestHandlerKVOrderWithEngineContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log, aw := newTestHandler(t, formatKV, Output{W: buf})

	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithAction(ctx, "wizard.region", "AbC123")
	LogEvent(ctx, log, slog.LevelInfo, "handler.handled", slog.String("status", "OK"))
	drain(t, aw)

	tokens := strings.Fields(buf.String())
	want := []string{"ts=", "level=INFO", "component=engine", "event=handler.handled", "status=ok", "rid=rid-123"}
	if len(tokens) < len(want) {
		t.Fatalf("line too short: %q", buf.String())
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, want prefix %s", i, tokens[i], prefix)
		}
	}
	line := buf.String()
	for _, kv := range []string{"update_id=42", "user_id=7", "chat_id=9", "action=wizard.region", "rcode=AbC123"} {
		if !strings.Contains(line, kv) {
			t.Fatalf("missing %s in %q", kv, line)
		}
	}
	if strings.Index(line, "action=") > strings.Index(line, "rcode=") {
		t.Fatalf("action should precede rcode: %q", line)
	}
}

func TestHandlerExplicitAttrWinsOverContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log, aw := newTestHandler(t, formatKV, Output{W: buf})
	ctx := WithAction(context.Background(), "from.ctx", "")
	LogEvent(ctx, log, slog.LevelInfo, "dispatch.drop", slog.String("action", "explicit"))
	drain(t, aw)
	if !strings.Contains(buf.String(), "action=explicit") {
		t.Fatalf("explicit attr lost: %q", buf.String())
	}
}

func TestHandlerJSONCompactRIDAndDurations(t *testing.T) {
	buf := &bytes.Buffer{}
	log, aw := newTestHandler(t, formatJSON, Output{W: buf})
	ctx := WithRID(context.Background(), "12:34:56")
	LogEvent(ctx, log, slog.LevelError, "provider.call",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("backoff", 2*time.Second),
		slog.String("outcome", "weird"),
	)
	drain(t, aw)
	line := buf.String()
	for _, want := range []string{
		`"rid":"` + CompactRID("12:34:56") + `"`,
		`"rid_full":"12:34:56"`,
		`"duration_ms":2`,
		`"backoff_ms":2000`,
		`"ts_unix_nano"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
	if strings.Contains(line, "outcome") {
		t.Fatalf("unknown outcome should be dropped: %s", line)
	}
}

func TestErrorsOutputGetsWarnAndAbove(t *testing.T) {
	all, errs := &bytes.Buffer{}, &bytes.Buffer{}
	log, aw := newTestHandler(t, formatKV, Output{W: all, Min: slog.LevelDebug}, Output{W: errs, Min: slog.LevelWarn})
	log.Info("cache.put")
	log.Warn("cache.miss")
	log.Error("session.schema_rejected")
	drain(t, aw)
	if n := strings.Count(all.String(), "\n"); n != 3 {
		t.Fatalf("main output lines = %d", n)
	}
	if strings.Contains(errs.String(), "cache.put") || strings.Count(errs.String(), "\n") != 2 {
		t.Fatalf("errors output = %q", errs.String())
	}
}

func TestContextHelpersDoNotLeakBetweenBranches(t *testing.T) {
	base := WithUpdateMeta(context.Background(), 1, 2, 3)
	a := WithHandler(base, "callback.a")
	b := WithHandler(base, "callback.b")
	if HandlerFrom(a) != "callback.a" || HandlerFrom(b) != "callback.b" || HandlerFrom(base) != "" {
		t.Fatalf("handlers: %q %q %q", HandlerFrom(a), HandlerFrom(b), HandlerFrom(base))
	}
	if UserIDFrom(a) != 2 || ChatIDFrom(b) != 3 || UpdateIDFrom(a) != 1 {
		t.Fatalf("update meta lost")
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var passed int
	for range 9 {
		if s.Allow() {
			passed++
		}
	}
	if passed != 3 {
		t.Fatalf("passed = %d, want 3", passed)
	}
	s.Set(0, 0)
	if !s.Allow() {
		t.Fatalf("disabled sampler must pass everything")
	}
	if n, d := parseRatioSpec("2/5"); n != 2 || d != 5 {
		t.Fatalf("parse 2/5 = %d/%d", n, d)
	}
	if n, d := parseRatioSpec("10"); n != 1 || d != 10 {
		t.Fatalf("parse 10 = %d/%d", n, d)
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\x00b\u200bc\nd", 10); got != "abc\nd" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("привет", 3); got != "при" {
		t.Fatalf("SanitizeLimit runes = %q", got)
	}
}
