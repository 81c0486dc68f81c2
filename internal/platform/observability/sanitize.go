package observability

import (
	"strings"
	"unicode"
)

const maxLoggedFieldRunes = 256

// scrub drops control runes and truncates, so a client cannot smuggle
// newlines or terminal escapes into a log line through a path or header.
func scrub(value string, limit int) string {
	if limit <= 0 || limit > maxLoggedFieldRunes {
		limit = maxLoggedFieldRunes
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	runes := []rune(cleaned)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}

// SanitizeRoute returns a route pattern safe to log.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return scrub(route, 180)
}

// SanitizeMethod returns an HTTP method safe to log.
func SanitizeMethod(method string) string {
	return scrub(method, 10)
}

// SanitizeUserID caps identifiers before they reach the request log.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return scrub(uid, 64)
}
