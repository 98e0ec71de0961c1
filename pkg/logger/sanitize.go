package logger

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// SanitizedUsername masks a username for logging (e.g., "a****"). Email-shaped
// usernames keep the TLD as well ("u***@*******.com").
func SanitizedUsername(username string) string {
	if username == "" {
		return "[empty]"
	}

	if local, domain, ok := strings.Cut(username, "@"); ok {
		domainParts := strings.Split(domain, ".")
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", utf8.RuneCountInString(domainParts[i]))
		}
		return maskTail(local) + "@" + strings.Join(domainParts, ".")
	}

	return maskTail(username)
}

func maskTail(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return ""
	}
	return string(first) + strings.Repeat("*", utf8.RuneCountInString(s)-1)
}

// RedactedAttr returns "[REDACTED]" in production and the actual value elsewhere
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString reports whether a query string carries values that must not be logged
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password", "token", "secret", "username", "user", "email", "auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
