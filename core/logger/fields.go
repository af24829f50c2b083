package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// Outcomes outside this set are dropped.
var knownOutcome = map[string]bool{
	"ok": true, "fail": true, "cancelled": true, "rate_limited": true,
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnums(fields map[string]any) {
	if s, ok := stringField(fields, "status"); ok {
		fields["status"] = strings.ToLower(strings.TrimSpace(s))
	}
	if o, ok := stringField(fields, "outcome"); ok {
		o = strings.ToLower(strings.TrimSpace(o))
		if knownOutcome[o] {
			fields["outcome"] = o
		} else {
			delete(fields, "outcome")
		}
	}
}

// defaultKeyOrder puts correlation fields first and payment fields before
// transport details. Keys not listed follow in lexical order.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"session_id",
	"operator",
	"state",
	"outcome",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"method",
	"path",
	"route",
	"http_code",
	"cb_key",
	"duration_ms",
	"messages",
	"kb",
	"count",
	"limit",
	"payload",
	"mode",
	"listen",
	"public_url",
	"driver",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"attempt",
	"attempts",
	"backoff_ms",
}
