package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	coreconfig "github.com/m3rciful/ocipanel/core/config"
)

// settings is the logging section resolved to the values the handler needs.
type settings struct {
	format   logFormat
	level    slog.Level
	keyOrder []string
	profile  string
	// sampleNum/sampleDen is the debug sampling ratio; 0/0 turns sampling off and every line passes.
	sampleNum, sampleDen int
}

const (
	defaultSampleNum = 1
	defaultSampleDen = 50
)

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format:    formatJSON,
		level:     slog.LevelInfo,
		keyOrder:  append([]string(nil), defaultKeyOrder...),
		profile:   "prod",
		sampleNum: defaultSampleNum,
		sampleDen: defaultSampleDen,
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if err := s.level.UnmarshalText([]byte(strings.TrimSpace(lc.Level))); err != nil {
		if strings.EqualFold(strings.TrimSpace(lc.Level), "warning") {
			s.level = slog.LevelWarn
		} else {
			s.level = slog.LevelInfo
		}
	}
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		s.keyOrder = order
	}
	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		num, den := parseRatioSpec(spec)
		switch {
		case num == 0 && den == 0:
			s.sampleNum, s.sampleDen = 0, 0
		case num > 0 && den > 0:
			s.sampleNum, s.sampleDen = num, den
		}
	}
	return s
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// openOutputs returns stdout plus the configured files: the bot file gets every line, the
// errors file WARN and above. A file that cannot be opened is reported and skipped.
func openOutputs(cfg *coreconfig.Config) ([]Output, []io.Closer) {
	outputs := []Output{{W: os.Stdout, Min: slog.LevelDebug}}
	if cfg == nil || strings.TrimSpace(cfg.Logging.Dir) == "" {
		return outputs, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: create log dir %s: %v", dir, err)
		return outputs, nil
	}
	var closers []io.Closer
	for _, f := range []struct {
		name string
		min  slog.Level
	}{
		{cfg.Logging.BotFile, slog.LevelDebug},
		{cfg.Logging.ErrorsFile, slog.LevelWarn},
	} {
		name := strings.TrimSpace(f.name)
		if name == "" {
			continue
		}
		path := filepath.Join(dir, name)
		fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("logger: open log file %s: %v", path, err)
			continue
		}
		outputs = append(outputs, Output{W: fh, Min: f.min})
		closers = append(closers, fh)
	}
	return outputs, closers
}

func traceFromEnv() bool {
	for _, key := range []string{"TRACE", "LOG_TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}
