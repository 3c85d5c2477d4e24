package observability

import (
	"strings"
	"unicode"
)

// sanitizeString drops control characters and truncates to limit runes so request data cannot
// forge log lines.
func sanitizeString(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func SanitizeRoute(route string) string {
	if route = sanitizeString(route, 180); route == "" {
		return "/"
	}
	return route
}

func SanitizeMethod(method string) string { return sanitizeString(method, 10) }

// SanitizeUserID truncates admin usernames before they reach log fields.
func SanitizeUserID(uid string) string { return sanitizeString(uid, 64) }
