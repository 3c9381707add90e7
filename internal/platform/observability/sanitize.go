package observability

import (
	"strings"
	"unicode"
)

// Log field limits. Anything longer is user-controlled garbage.
const (
	routeLimit  = 180
	methodLimit = 10
	userLimit   = 64
)

// sanitizeString strips control characters (except common whitespace) and caps
// the length so attacker-supplied values cannot forge log lines.
func sanitizeString(value string, limit int) string {
	var b strings.Builder
	b.Grow(len(value))
	count := 0
	for _, r := range value {
		if count >= limit {
			break
		}
		switch r {
		case '\n', '\r', '\t':
		default:
			if unicode.IsControl(r) {
				continue
			}
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeLimit)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, methodLimit)
}

// SanitizeUserID limits potential identifiers to reduce PII leakage in logs.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, userLimit)
}
