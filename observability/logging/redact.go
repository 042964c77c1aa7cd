package logging

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"
)

// RedactedValue is the placeholder written in place of sensitive values.
const RedactedValue = "[REDACTED]"

// Keys the handler masks no matter how the caller logged them.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"authorization": {},
	"password":      {},
	"secret":        {},
	"hmac_secret":   {},
}

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"operation": {},
	"asset":     {},
	"bond":      {},
	"feed":      {},
	"account":   {},
	"method":    {},
	"path":      {},
	"status":    {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether key may be logged verbatim by MaskField.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[normalizeKey(key)]
	return ok
}

// IsSensitive reports whether key always carries a credential.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[normalizeKey(key)]
	return ok
}

// RedactionAllowlist returns the allowlisted keys in sorted order.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns RedactedValue for non-empty values. Empty values are
// returned unchanged.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute that hides value unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskReference hides an identity-provider reference except for its last four
// characters, enough to match it against the provider's case record.
func MaskReference(ref string) string {
	runes := []rune(strings.TrimSpace(ref))
	if len(runes) == 0 {
		return ""
	}
	if len(runes) <= 4 {
		return RedactedValue
	}
	return "***" + string(runes[len(runes)-4:])
}

// RedactDSN masks credentials in a database connection string. URL DSNs lose
// their password and sensitive query parameters; key=value DSNs lose their
// sensitive values. Plain file paths are returned unchanged.
func RedactDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsn
	}
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return RedactedValue
		}
		query := u.Query()
		masked := false
		for key := range query {
			if IsSensitive(key) {
				query.Set(key, "xxxxx")
				masked = true
			}
		}
		if masked {
			u.RawQuery = query.Encode()
		}
		return u.Redacted()
	}
	fields := strings.Fields(trimmed)
	masked := false
	for i, field := range fields {
		key, _, ok := strings.Cut(field, "=")
		if ok && IsSensitive(key) {
			fields[i] = key + "=" + RedactedValue
			masked = true
		}
	}
	if !masked {
		return dsn
	}
	return strings.Join(fields, " ")
}

// redactAttr is installed as the handler's ReplaceAttr backstop.
func redactAttr(attr slog.Attr) slog.Attr {
	switch {
	case IsSensitive(attr.Key):
		if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
			return attr
		}
		return slog.String(attr.Key, RedactedValue)
	case normalizeKey(attr.Key) == "dsn" && attr.Value.Kind() == slog.KindString:
		return slog.String(attr.Key, RedactDSN(attr.Value.String()))
	}
	return attr
}
