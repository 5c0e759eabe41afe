package util

import "strings"

// Preview renders a single-line excerpt for logs, capped at maxRunes.
func Preview(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 120
	}
	s = normalizeWhitespace(SanitizeText(s))
	if RuneLen(s) <= maxRunes {
		return s
	}
	return strings.TrimSpace(TruncateRunes(s, maxRunes)) + "..."
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
