package logger

import (
	"log/slog"
	"testing"

	coreconfig "github.com/m3rciful/ocipanel/core/config"
)

func TestSettingsDefaults(t *testing.T) {
	s := settingsFrom(nil)
	if s.format != formatJSON || s.level != slog.LevelInfo || s.profile != "prod" {
		t.Fatalf("defaults = %+v", s)
	}
	if s.sampleNum != defaultSampleNum || s.sampleDen != defaultSampleDen {
		t.Fatalf("sample = %d/%d", s.sampleNum, s.sampleDen)
	}
	if len(s.keyOrder) != len(defaultKeyOrder) {
		t.Fatalf("key order = %v", s.keyOrder)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:       "warning",
		Profile:     "Dev",
		KeysOrder:   "ts, level, ,event",
		DebugSample: "0",
	}}
	s := settingsFrom(cfg)
	if s.format != formatKV {
		t.Fatalf("dev profile should default to kv, got %q", s.format)
	}
	if s.level != slog.LevelWarn {
		t.Fatalf("level = %v", s.level)
	}
	if len(s.keyOrder) != 3 || s.keyOrder[2] != "event" {
		t.Fatalf("key order = %v", s.keyOrder)
	}

	cfg.Logging = coreconfig.LoggingConfig{Level: "debug", Format: "json", Profile: "debug"}
	s = settingsFrom(cfg)
	if s.format != formatJSON || s.level != slog.LevelDebug {
		t.Fatalf("explicit json/debug = %+v", s)
	}
}
