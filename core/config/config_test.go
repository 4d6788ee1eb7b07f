package config

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.Engine.SweepSchedule != "@every 1m" || cfg.Engine.SessionRetention != 7*24*time.Hour {
		t.Fatalf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Engine.SessionBackend != SessionBackendSQL || cfg.Provider.Kind != ProviderOCI {
		t.Fatalf("backend=%q provider=%q", cfg.Engine.SessionBackend, cfg.Provider.Kind)
	}
	if cfg.RateLimit.Burst != 1 {
		t.Fatalf("burst = %d", cfg.RateLimit.Burst)
	}
}

func TestNormalizeRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t"}, Provider: ProviderConfig{Kind: "aws"}}
	err := Normalize(cfg)
	if err == nil || !strings.Contains(err.Error(), "provider.kind") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestDecodeDurations(t *testing.T) {
	var cfg Config
	data := []byte("telegram:\n  token: abc\nengine:\n  callback_ttl: 15m\n  session_backend: Memory\n")
	if err := Decode(data, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Engine.CallbackTTL != 15*time.Minute || cfg.Engine.SessionBackend != SessionBackendMemory {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
}
