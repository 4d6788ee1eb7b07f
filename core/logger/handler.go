package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler flattens every record into one map of fields, fills in the request
// metadata from the context, normalizes the enumerated fields and writes a single line.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	jsonOut := h.cfg.format == formatJSON

	f := make(fields, 16)
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	f["level"] = normalizeLevel(r.Level.String())
	if jsonOut {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		f.add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	contextFields(ctx, f)

	if rid := f.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != "" && compact != rid {
			if _, ok := f["rid_full"]; jsonOut && !ok {
				f["rid_full"] = rid
			}
			f["rid"] = compact
		}
	}
	f.fallback("event", r.Message, "unknown")
	f.fallback("component", "app")
	f.normalize()

	var line []byte
	if jsonOut {
		var err error
		if line, err = encodeJSON(f, h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = encodeKV(f, h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(r.Level, append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: join(h.prefix, a.Key), Value: a.Value})
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = join(h.prefix, name)
	return &clone
}

func join(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// fields is one log line before encoding.
type fields map[string]any

// add stores a under prefix.key, flattening groups. Attrs bound by WithAttrs carry their
// prefix already.
func (f fields) add(prefix string, a slog.Attr) {
	key := join(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := plain(key, v); ok {
		f[k] = val
	}
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// fallback sets key to the first non-empty candidate when it is missing or empty.
func (f fields) fallback(key string, candidates ...string) {
	if f.str(key) != "" {
		return
	}
	for _, c := range candidates {
		if c != "" {
			f[key] = c
			return
		}
	}
}

// normalize maps the enumerated fields onto their vocabularies and drops empty values.
func (f fields) normalize() {
	f["level"] = normalizeLevel(f.str("level"))
	for _, e := range enumFields {
		raw := f.str(e.key)
		if raw == "" {
			continue
		}
		switch v, ok := e.words.normalize(raw); {
		case ok:
			f[e.key] = v
		case !e.keepBad:
			delete(f, e.key)
		}
	}
	for k, v := range f {
		switch val := v.(type) {
		case nil:
			delete(f, k)
		case string:
			if val == "" {
				delete(f, k)
			}
		}
	}
}

// plain converts a slog value to a JSON-friendly Go value. Durations become whole
// milliseconds under a key ending in _ms.
func plain(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey puts the unit in the key: duration -> duration_ms, delay -> delay_ms.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}
