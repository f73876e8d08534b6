package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// MaskDSN hides the password of a URL style connection string. Values that do
// not parse as URLs are masked entirely.
func MaskDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" {
		if strings.ContainsAny(trimmed, "@=") {
			return RedactedValue
		}
		return trimmed
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
		}
	}
	return parsed.String()
}

// DSN returns a log attribute carrying a masked connection string.
func DSN(key, dsn string) slog.Attr {
	return slog.String(key, MaskDSN(dsn))
}
