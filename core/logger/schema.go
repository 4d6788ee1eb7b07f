package logger

import "strings"

// Level names written in the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if name, ok := levelNames[strings.ToLower(level)]; ok {
		return name
	}
	return strings.ToUpper(level)
}

// vocab is the closed set of values a field may take, matched case-insensitively.
type vocab map[string]struct{}

func newVocab(words ...string) vocab {
	v := make(vocab, len(words))
	for _, w := range words {
		v[w] = struct{}{}
	}
	return v
}

func (v vocab) normalize(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	_, ok := v[raw]
	return raw, ok
}

// enumFields lists the fields restricted to a vocabulary. Unknown status values are kept as
// written; unknown cache and outcome values are dropped.
var enumFields = []struct {
	key     string
	words   vocab
	keepBad bool
}{
	{"status", newVocab("ok", "fail", "skip", "retry", "rate_limited", "denied", "cancelled", "error", "dropped", "expired"), true},
	{"cache", newVocab("hit", "miss", "evict"), false},
	{"outcome", newVocab("ok", "fail", "cancelled", "rate_limited"), false},
}

// defaultKeyOrder puts correlation fields first, then what happened, then the details.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"action", "rcode", "flow", "stage", "token", "session_key",
	"outcome", "duration_ms", "messages", "kb", "count",
	"call", "endpoint", "attempt", "delay_ms", "kind", "cache",
	"payload", "cb_code", "reply_to", "document", "lang", "username",
	"mode", "listen", "public_url", "poll_timeout_ms",
	"db", "driver", "host", "port",
	"account_id", "tenancy_id", "region", "opc_request_id", "resource_id",
	"err", "err_code", "retryable", "attempts",
	"callbacks", "sessions", "evicted",
}
