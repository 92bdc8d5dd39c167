package logger

import "strings"

// Canonical level names.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// enumeration maps accepted spellings of a field value to its canonical form.
type enumeration map[string]string

func newEnumeration(values ...string) enumeration {
	e := make(enumeration, len(values))
	for _, v := range values {
		e[v] = v
	}
	return e
}

// normalize returns the canonical value and whether s was recognised.
// Unrecognised input comes back lower-cased and trimmed.
func (e enumeration) normalize(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := e[s]; ok {
		return v, true
	}
	return s, false
}

var (
	levelValues = enumeration{
		"debug": LevelDebug, "info": LevelInfo, "warn": LevelWarn, "warning": LevelWarn,
		"error": LevelError, "fatal": LevelFatal,
	}

	statusValues = newEnumeration("ok", "fail", "skip", "retry", "rate_limited", "cancelled")

	cacheValues = newEnumeration("hit", "miss", "refresh")

	// outcomeValues are the results a conversation step or provider call can report.
	outcomeValues = newEnumeration(
		"ok", "fail", "cancelled", "rate_limited",
		"prompt", "saved", "not_saved",
		"not_found", "invalid", "unavailable", "expired", "timeout",
	)
)

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if v, ok := levelValues.normalize(level); ok {
		return v
	}
	return strings.ToUpper(level)
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"operation",
	"op",
	"cb_key",
	"kind",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"count",
	"state",
	"city",
	"weather",
	"http_status",
	"cache",
	"payload",
	"lang",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"tier",
	"class",
	"failures",
	"max_failures",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"offset",
	"batch",
	"pending_count",
}
