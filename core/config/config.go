package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for the per-user token bucket.
// IntervalMS is the refill interval of one token, Burst the bucket size.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// SessionBackendMemory keeps wizard and reply-flow state in process memory.
	SessionBackendMemory = "memory"
	// SessionBackendSQL persists state in the engine_sessions table.
	SessionBackendSQL = "sql"
)

// EngineConfig tunes the callback cache and the session store.
type EngineConfig struct {
	CallbackTTL        time.Duration `yaml:"callback_ttl" envconfig:"ENGINE_CALLBACK_TTL"`
	CallbackMaxEntries int           `yaml:"callback_max_entries" envconfig:"ENGINE_CALLBACK_MAX_ENTRIES"`
	SweepSchedule      string        `yaml:"sweep_schedule" envconfig:"ENGINE_SWEEP_SCHEDULE"`
	SessionBackend     string        `yaml:"session_backend" envconfig:"ENGINE_SESSION_BACKEND"`
	SessionRetention   time.Duration `yaml:"session_retention" envconfig:"ENGINE_SESSION_RETENTION"`
}

const (
	// ProviderOCI talks to Oracle Cloud through the SDK.
	ProviderOCI = "oci"
	// ProviderMemory serves a fake in-process tenancy.
	ProviderMemory = "memory"
)

// ProviderConfig selects the cloud backend.
type ProviderConfig struct {
	Kind    string        `yaml:"kind" envconfig:"PROVIDER_KIND"`
	Timeout time.Duration `yaml:"timeout" envconfig:"PROVIDER_TIMEOUT"`
}

// AccessConfig gates who may talk to the bot besides the admin.
type AccessConfig struct {
	AllowListEnabled bool `yaml:"allow_list_enabled" envconfig:"ACCESS_ALLOW_LIST_ENABLED"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Engine    EngineConfig    `yaml:"engine"`
	Provider  ProviderConfig  `yaml:"provider"`
	Access    AccessConfig    `yaml:"access"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Decode(data, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode parses YAML into dst and applies environment overrides on top.
// dst may be any struct embedding the core sections.
func Decode(data []byte, dst any) error {
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}
	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}

	if err := normalizeEngine(&cfg.Engine); err != nil {
		return err
	}
	return normalizeProvider(&cfg.Provider)
}

func normalizeEngine(e *EngineConfig) error {
	if e.CallbackTTL < 0 {
		return fmt.Errorf("engine.callback_ttl must be >= 0")
	}
	if e.CallbackMaxEntries < 0 {
		return fmt.Errorf("engine.callback_max_entries must be >= 0")
	}
	if strings.TrimSpace(e.SweepSchedule) == "" {
		e.SweepSchedule = "@every 1m"
	}
	if e.SessionRetention <= 0 {
		e.SessionRetention = 7 * 24 * time.Hour
	}
	backend := strings.ToLower(strings.TrimSpace(e.SessionBackend))
	switch backend {
	case "":
		backend = SessionBackendSQL
	case SessionBackendSQL, SessionBackendMemory:
	default:
		return fmt.Errorf("invalid engine.session_backend %q; allowed: sql, memory", e.SessionBackend)
	}
	e.SessionBackend = backend
	return nil
}

func normalizeProvider(p *ProviderConfig) error {
	kind := strings.ToLower(strings.TrimSpace(p.Kind))
	switch kind {
	case "":
		kind = ProviderOCI
	case ProviderOCI, ProviderMemory:
	default:
		return fmt.Errorf("invalid provider.kind %q; allowed: oci, memory", p.Kind)
	}
	p.Kind = kind
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return nil
}
